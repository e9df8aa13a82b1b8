package entity

type TenantAccount struct {
	ID uint64

	TenantID        uint64
	IntegrationID   uint64
	ReferencePrefix string
	IsEnabled       bool
}

package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentRequestStatus string

const (
	RequestStatusPending    PaymentRequestStatus = "pending"
	RequestStatusProcessing PaymentRequestStatus = "processing"
	RequestStatusConfirmed  PaymentRequestStatus = "confirmed"
	RequestStatusFailed     PaymentRequestStatus = "failed"
)

func (s PaymentRequestStatus) Terminal() bool {
	return s == RequestStatusConfirmed || s == RequestStatusFailed
}

type PaymentRequest struct {
	ID uint64

	RequestUID    string
	TenantID      uint64
	InstitutionID uint64
	InvoiceID     uint64
	IntegrationID uint64

	PhoneNumber      string
	Amount           decimal.Decimal
	AccountReference string
	TransactionDesc  string

	Status                PaymentRequestStatus
	ProviderCorrelationID *string
	ResultCode            *int32
	ResultDescription     string
	ConfirmedEventID      *uint64

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

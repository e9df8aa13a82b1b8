package entity

import "github.com/shopspring/decimal"

const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusCancelled = "cancelled"
)

type Invoice struct {
	ID uint64

	TenantID    uint64
	Status      string
	TotalAmount decimal.Decimal
	PaidAmount  decimal.Decimal
}

func (i *Invoice) Balance() decimal.Decimal {
	return i.TotalAmount.Sub(i.PaidAmount)
}

func (i *Invoice) Payable() bool {
	return i.Status != InvoiceStatusDraft && i.Status != InvoiceStatusCancelled
}

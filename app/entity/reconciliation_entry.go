package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type MatchStatus string

const (
	MatchStatusMatched   MatchStatus = "matched"
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusUnmatched MatchStatus = "unmatched"
)

const (
	MatchedByAccountReference = "account_reference"
	MatchedByPaymentRequest   = "payment_request"
)

type ReconciliationEntry struct {
	ID uint64

	EventID       uint64
	IntegrationID uint64

	TenantID        *uint64
	TenantAccountID *uint64

	MatchStatus     MatchStatus
	MatchConfidence int32
	MatchedBy       string

	Amount            decimal.Decimal
	Currency          string
	ExternalReference string
	ProviderReference string

	PublishedAt *time.Time
	CreatedAt   time.Time
}

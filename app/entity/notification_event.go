package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventTypePayment           EventType = "payment"
	EventTypeReversal          EventType = "reversal"
	EventTypeTimeout           EventType = "timeout"
	EventTypeValidationFailure EventType = "validation_failure"
)

type EventStatus string

const (
	EventStatusReceived  EventStatus = "received"
	EventStatusValidated EventStatus = "validated"
	EventStatusDuplicate EventStatus = "duplicate"
	EventStatusFailed    EventStatus = "failed"
	EventStatusQueued    EventStatus = "queued"
)

var eventTransitions = map[EventStatus][]EventStatus{
	EventStatusReceived:  {EventStatusValidated, EventStatusDuplicate, EventStatusFailed},
	EventStatusValidated: {EventStatusQueued},
}

// CanTransition reports whether the event status machine allows from -> to.
func (s EventStatus) CanTransition(to EventStatus) bool {
	for _, next := range eventTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// NormalizedPayload is the provider-agnostic canonical event.
type NormalizedPayload struct {
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	SenderPhone       string          `json:"sender_phone"`
	SenderName        string          `json:"sender_name"`
	SenderAccount     string          `json:"sender_account"`
	ExternalReference string          `json:"external_reference"`
	ProviderReference string          `json:"provider_reference"`
	TransactionDate   string          `json:"transaction_date"`
	EventType         EventType       `json:"event_type"`

	CorrelationID     string `json:"correlation_id"`
	ResultCode        int    `json:"result_code"`
	ResultDescription string `json:"result_description"`

	// Problems are field-level defects found while normalizing; they become validation errors.
	Problems []string `json:"-"`
}

type PaymentNotificationEvent struct {
	ID uint64

	IntegrationID uint64

	RawPayload        string
	NormalizedPayload NormalizedPayload
	EventType         EventType

	ExternalReference string
	ProviderReference *string
	DedupReference    *string
	CorrelationID     *string

	Amount        decimal.Decimal
	Currency      string
	SenderPhone   string
	SenderName    string
	SenderAccount string

	Status           EventStatus
	ValidationErrors []string
	SourceIP         string

	ReceivedAt  time.Time
	ProcessedAt *time.Time
}

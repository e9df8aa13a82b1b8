package provider

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

// Normalizer maps one provider family's callback JSON into the canonical payload.
type Normalizer interface {
	Family() entity.ProviderFamily
	Normalize(payload []byte) (*entity.NormalizedPayload, error)
}

type PushInput struct {
	PhoneNumber      string
	Amount           decimal.Decimal
	AccountReference string
	TransactionDesc  string
	CallbackURL      string
}

type PushOutput struct {
	CorrelationID       string
	MerchantRequestID   string
	ResponseDescription string
	CustomerMessage     string
}

// PushProvider initiates a customer push prompt. Implementations issue the push call exactly once.
type PushProvider interface {
	InitiatePush(ctx context.Context, input *PushInput) (*PushOutput, error)
}

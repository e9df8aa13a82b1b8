package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/provider"
)

const (
	msgAmountNotPositive = "amount must be greater than zero"
	msgReferenceMissing  = "external_reference or provider_reference is required"

	currencyCodeLength = 3
)

// maxStoredAmount is the largest value payment_notification_events.amount (DECIMAL(18,2)) holds.
var maxStoredAmount = decimal.RequireFromString("9999999999999999.99")

// storedFieldLimits mirrors the character widths of the event columns.
var storedFieldLimits = []struct {
	name  string
	limit int
	value func(p *entity.NormalizedPayload) *string
}{
	{"external_reference", 128, func(p *entity.NormalizedPayload) *string { return &p.ExternalReference }},
	{"provider_reference", 128, func(p *entity.NormalizedPayload) *string { return &p.ProviderReference }},
	{"correlation_id", 128, func(p *entity.NormalizedPayload) *string { return &p.CorrelationID }},
	{"sender_phone", 32, func(p *entity.NormalizedPayload) *string { return &p.SenderPhone }},
	{"sender_name", 255, func(p *entity.NormalizedPayload) *string { return &p.SenderName }},
	{"sender_account", 128, func(p *entity.NormalizedPayload) *string { return &p.SenderAccount }},
}

// normalizePayload runs the family normalizer and never fails: errors and panics degrade to
// an all-empty validation_failure payload with the problem recorded.
func normalizePayload(normalizer provider.Normalizer, payload []byte, defaultCurrency string) (out *entity.NormalizedPayload, problems []string) {
	defer func() {
		if r := recover(); r != nil {
			out = emptyFailurePayload(defaultCurrency)
			problems = []string{fmt.Sprintf("normalization failed: %v", r)}
		}
	}()

	out, err := normalizer.Normalize(payload)
	if err != nil {
		return emptyFailurePayload(defaultCurrency), []string{fmt.Sprintf("normalization failed: %v", err)}
	}
	if out == nil {
		return emptyFailurePayload(defaultCurrency), []string{"normalization failed: empty result"}
	}

	problems = append(problems, out.Problems...)
	out.Problems = nil

	if out.Amount.IsNegative() {
		problems = append(problems, fmt.Sprintf("amount must not be negative: %s", out.Amount.String()))
		out.Amount = decimal.Zero
	}
	if strings.TrimSpace(out.Currency) == "" {
		out.Currency = defaultCurrency
	}
	if out.EventType == "" {
		out.EventType = entity.EventTypePayment
	}
	problems = append(problems, fitStoredFields(out, defaultCurrency)...)
	return out, problems
}

// fitStoredFields brings every field within its column bounds, reporting each value it had to change.
func fitStoredFields(p *entity.NormalizedPayload, defaultCurrency string) []string {
	var problems []string

	if p.Amount.Abs().GreaterThan(maxStoredAmount) {
		problems = append(problems, fmt.Sprintf("amount is out of range: %s", p.Amount.String()))
		p.Amount = decimal.Zero
	}
	if utf8.RuneCountInString(p.Currency) != currencyCodeLength {
		problems = append(problems, fmt.Sprintf("currency must be a %d-letter code: %q", currencyCodeLength, truncate(p.Currency, 16)))
		p.Currency = defaultCurrency
	}
	for _, field := range storedFieldLimits {
		value := field.value(p)
		if utf8.RuneCountInString(*value) > field.limit {
			problems = append(problems, fmt.Sprintf("%s exceeds %d characters", field.name, field.limit))
			*value = truncate(*value, field.limit)
		}
	}
	return problems
}

func emptyFailurePayload(defaultCurrency string) *entity.NormalizedPayload {
	return &entity.NormalizedPayload{
		Currency:  defaultCurrency,
		EventType: entity.EventTypeValidationFailure,
	}
}

// validateNormalized accumulates every violation instead of stopping at the first.
func validateNormalized(p *entity.NormalizedPayload) []string {
	problems := make([]string, 0, 2)
	if !p.Amount.IsPositive() {
		problems = append(problems, msgAmountNotPositive)
	}
	if strings.TrimSpace(p.ExternalReference) == "" && strings.TrimSpace(p.ProviderReference) == "" {
		problems = append(problems, msgReferenceMissing)
	}
	return problems
}

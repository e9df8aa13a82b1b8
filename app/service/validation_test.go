package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/provider"
)

type panickingNormalizer struct{}

func (panickingNormalizer) Family() entity.ProviderFamily { return entity.FamilyBank }

func (panickingNormalizer) Normalize([]byte) (*entity.NormalizedPayload, error) {
	panic("index out of range")
}

type failingNormalizer struct{}

func (failingNormalizer) Family() entity.ProviderFamily { return entity.FamilyBank }

func (failingNormalizer) Normalize([]byte) (*entity.NormalizedPayload, error) {
	return nil, errors.New("unexpected shape")
}

func TestNormalizePayloadNeverPanics(t *testing.T) {
	for _, normalizer := range []provider.Normalizer{panickingNormalizer{}, failingNormalizer{}} {
		out, problems := normalizePayload(normalizer, []byte(`{}`), "KES")
		if out == nil {
			t.Fatalf("expected a payload")
		}
		if out.EventType != entity.EventTypeValidationFailure || out.Currency != "KES" || !out.Amount.IsZero() {
			t.Fatalf("unexpected degraded payload: %+v", out)
		}
		if len(problems) != 1 || !strings.HasPrefix(problems[0], "normalization failed") {
			t.Fatalf("unexpected problems: %v", problems)
		}
	}
}

func TestNormalizePayloadClampsNegativeAmount(t *testing.T) {
	normalizer := provider.NewGenericNormalizer(entity.FamilyBank, "KES")

	out, problems := normalizePayload(normalizer, []byte(`{"amount":"-10.50","reference":"R"}`), "KES")
	if !out.Amount.IsZero() {
		t.Fatalf("expected clamped amount, got %s", out.Amount)
	}
	if len(problems) != 1 || problems[0] != "amount must not be negative: -10.5" {
		t.Fatalf("unexpected problems: %v", problems)
	}
}

func TestValidateNormalizedAccumulates(t *testing.T) {
	problems := validateNormalized(&entity.NormalizedPayload{})
	if len(problems) != 2 || problems[0] != msgAmountNotPositive || problems[1] != msgReferenceMissing {
		t.Fatalf("unexpected problems: %v", problems)
	}

	if got := validateNormalized(&entity.NormalizedPayload{Amount: mustDecimal("1"), ProviderReference: "X"}); len(got) != 0 {
		t.Fatalf("expected no problems, got %v", got)
	}
}

func TestNormalizePayloadFitsStoredColumns(t *testing.T) {
	normalizer := provider.NewGenericNormalizer(entity.FamilyBank, "KES")
	longReference := strings.Repeat("R", 200)
	payload := `{"amount":1e30,"currency":"USDT","reference":"` + longReference + `","transaction_id":"` + longReference + `","phone":"` + strings.Repeat("7", 40) + `"}`

	out, problems := normalizePayload(normalizer, []byte(payload), "KES")

	if !out.Amount.IsZero() || out.Currency != "KES" {
		t.Fatalf("expected amount zeroed and default currency, got %s %s", out.Amount, out.Currency)
	}
	if len(out.ExternalReference) != 128 || len(out.ProviderReference) != 128 || len(out.SenderPhone) != 32 {
		t.Fatalf("expected truncated fields, got %d %d %d", len(out.ExternalReference), len(out.ProviderReference), len(out.SenderPhone))
	}
	want := []string{
		"amount is out of range: 1000000000000000000000000000000",
		`currency must be a 3-letter code: "USDT"`,
		"external_reference exceeds 128 characters",
		"provider_reference exceeds 128 characters",
		"sender_phone exceeds 32 characters",
	}
	if strings.Join(problems, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected problems: %v", problems)
	}
}

func TestTruncateKeepsWholeCharacters(t *testing.T) {
	if got := truncate("Wanjikũ", 7); got != "Wanjikũ" {
		t.Fatalf("expected untouched value, got %q", got)
	}
	if got := truncate("ũũũ", 2); got != "ũũ" {
		t.Fatalf("expected two characters, got %q", got)
	}
}

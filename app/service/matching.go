package service

import (
	"context"
	"strings"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

const fullConfidence int32 = 100

type tenantAccountRepository interface {
	ListEnabledByIntegration(ctx context.Context, integrationID uint64) ([]*entity.TenantAccount, error)
}

type correlatedRequestLookup interface {
	FindByCorrelationID(ctx context.Context, correlationID string) (*entity.PaymentRequest, error)
}

type MatchResult struct {
	Status          entity.MatchStatus
	TenantID        *uint64
	TenantAccountID *uint64
	Confidence      int32
	MatchedBy       string
}

// MatchingEngine attributes events to tenants by exact reference rules only.
type MatchingEngine struct {
	accounts tenantAccountRepository
	requests correlatedRequestLookup
}

func NewMatchingEngine(accounts tenantAccountRepository, requests correlatedRequestLookup) *MatchingEngine {
	return &MatchingEngine{accounts: accounts, requests: requests}
}

// Match prefers the tenant of a correlated outbound request, then the longest matching account prefix.
func (m *MatchingEngine) Match(ctx context.Context, event *entity.PaymentNotificationEvent) (MatchResult, error) {
	accounts, err := m.accounts.ListEnabledByIntegration(ctx, event.IntegrationID)
	if err != nil {
		return MatchResult{}, err
	}

	if event.CorrelationID != nil && m.requests != nil {
		req, err := m.requests.FindByCorrelationID(ctx, *event.CorrelationID)
		if err != nil {
			return MatchResult{}, err
		}
		if req != nil {
			tenantID := req.TenantID
			result := MatchResult{
				Status:     entity.MatchStatusMatched,
				TenantID:   &tenantID,
				Confidence: fullConfidence,
				MatchedBy:  entity.MatchedByPaymentRequest,
			}
			for _, account := range accounts {
				if account.TenantID == tenantID {
					accountID := account.ID
					result.TenantAccountID = &accountID
					break
				}
			}
			return result, nil
		}
	}

	if account := MatchAccountByPrefix(accounts, event.ExternalReference); account != nil {
		tenantID, accountID := account.TenantID, account.ID
		return MatchResult{
			Status:          entity.MatchStatusMatched,
			TenantID:        &tenantID,
			TenantAccountID: &accountID,
			Confidence:      fullConfidence,
			MatchedBy:       entity.MatchedByAccountReference,
		}, nil
	}

	return MatchResult{Status: entity.MatchStatusPending}, nil
}

// MatchAccountByPrefix returns the enabled account with the longest reference prefix of externalReference.
// Equal-length prefixes resolve to the lowest account id. Empty references and empty prefixes never match.
func MatchAccountByPrefix(accounts []*entity.TenantAccount, externalReference string) *entity.TenantAccount {
	externalReference = strings.TrimSpace(externalReference)
	if externalReference == "" {
		return nil
	}

	var best *entity.TenantAccount
	for _, account := range accounts {
		if account == nil || !account.IsEnabled {
			continue
		}
		prefix := strings.TrimSpace(account.ReferencePrefix)
		if prefix == "" || !strings.HasPrefix(externalReference, prefix) {
			continue
		}
		if best == nil {
			best = account
			continue
		}
		bestLen := len(strings.TrimSpace(best.ReferencePrefix))
		if len(prefix) > bestLen || (len(prefix) == bestLen && account.ID < best.ID) {
			best = account
		}
	}
	return best
}

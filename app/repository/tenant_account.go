package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

type TenantAccountRepository struct {
	db DBTX
}

func NewTenantAccountRepository(db DBTX) *TenantAccountRepository {
	return &TenantAccountRepository{db: db}
}

// ListEnabledByIntegration returns enabled accounts ordered by id so prefix ties resolve deterministically.
func (r *TenantAccountRepository) ListEnabledByIntegration(ctx context.Context, integrationID uint64) ([]*entity.TenantAccount, error) {
	query := `
		SELECT id, tenant_id, integration_id, reference_prefix, is_enabled
		FROM tenant_accounts
		WHERE integration_id = ? AND is_enabled = 1
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, integrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.TenantAccount, 0)
	for rows.Next() {
		item := &entity.TenantAccount{}
		if err := rows.Scan(&item.ID, &item.TenantID, &item.IntegrationID, &item.ReferencePrefix, &item.IsEnabled); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

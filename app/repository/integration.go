package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

var ErrIntegrationNotFound = errors.New("integration not found")

type IntegrationRepository struct {
	db DBTX
}

func NewIntegrationRepository(db DBTX) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

const integrationColumns = `id, provider_code, display_name, family, is_active, webhook_config, health_status, created_at, updated_at`

func (r *IntegrationRepository) FindByCode(ctx context.Context, providerCode string) (*entity.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE provider_code = ? LIMIT 1`

	item := &entity.Integration{}
	if err := scanIntegration(r.db.QueryRowContext(ctx, query, providerCode), item); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *IntegrationRepository) FindByID(ctx context.Context, id uint64) (*entity.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE id = ?`

	item := &entity.Integration{}
	if err := scanIntegration(r.db.QueryRowContext(ctx, query, id), item); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *IntegrationRepository) ListActive(ctx context.Context) ([]*entity.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE is_active = 1 ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Integration, 0)
	for rows.Next() {
		item := &entity.Integration{}
		if err := scanIntegration(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *IntegrationRepository) UpdateHealthStatus(ctx context.Context, id uint64, status entity.HealthStatus) error {
	result, err := r.db.ExecContext(ctx, `UPDATE integrations SET health_status = ?, updated_at = UTC_TIMESTAMP(6) WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrIntegrationNotFound
	}
	return nil
}

func scanIntegration(scan rowScanner, item *entity.Integration) error {
	var family, healthStatus string
	var webhookConfig []byte

	err := scan.Scan(
		&item.ID,
		&item.ProviderCode,
		&item.DisplayName,
		&family,
		&item.IsActive,
		&webhookConfig,
		&healthStatus,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return err
	}

	item.Family = entity.ProviderFamily(family)
	item.HealthStatus = entity.HealthStatus(healthStatus)

	cfg, err := entity.ParseWebhookConfig(webhookConfig)
	if err != nil {
		return err
	}
	item.WebhookConfig = cfg
	return nil
}

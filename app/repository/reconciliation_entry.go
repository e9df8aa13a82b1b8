package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

var (
	ErrReconciliationEntryExists   = errors.New("reconciliation entry already exists for event")
	ErrReconciliationEntryNotFound = errors.New("reconciliation entry not found")
)

type ReconciliationEntryRepository struct {
	db DBTX
}

func NewReconciliationEntryRepository(db DBTX) *ReconciliationEntryRepository {
	return &ReconciliationEntryRepository{db: db}
}

const reconciliationEntryColumns = `id, event_id, integration_id, tenant_id, tenant_account_id,
	match_status, match_confidence, matched_by, amount, currency,
	external_reference, provider_reference, published_at, created_at`

func (r *ReconciliationEntryRepository) Create(ctx context.Context, entry *entity.ReconciliationEntry) error {
	query := `
		INSERT INTO reconciliation_queue (
			event_id, integration_id, tenant_id, tenant_account_id,
			match_status, match_confidence, matched_by, amount, currency,
			external_reference, provider_reference, published_at, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		entry.EventID,
		entry.IntegrationID,
		nullableUint64Value(entry.TenantID),
		nullableUint64Value(entry.TenantAccountID),
		string(entry.MatchStatus),
		entry.MatchConfidence,
		entry.MatchedBy,
		entry.Amount,
		entry.Currency,
		entry.ExternalReference,
		entry.ProviderReference,
		nullableTimeValue(entry.PublishedAt),
		entry.CreatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrReconciliationEntryExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = uint64(id)
	return nil
}

func (r *ReconciliationEntryRepository) MarkPublished(ctx context.Context, id uint64, publishedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE reconciliation_queue SET published_at = ? WHERE id = ? AND published_at IS NULL`, publishedAt, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrReconciliationEntryNotFound
	}
	return nil
}

func (r *ReconciliationEntryRepository) FindByEventID(ctx context.Context, eventID uint64) (*entity.ReconciliationEntry, error) {
	query := `SELECT ` + reconciliationEntryColumns + ` FROM reconciliation_queue WHERE event_id = ?`

	item := &entity.ReconciliationEntry{}
	if err := scanReconciliationEntry(r.db.QueryRowContext(ctx, query, eventID), item); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *ReconciliationEntryRepository) ListUnpublished(ctx context.Context, limit int32) ([]*entity.ReconciliationEntry, error) {
	query := `SELECT ` + reconciliationEntryColumns + `
		FROM reconciliation_queue
		WHERE published_at IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.ReconciliationEntry, 0)
	for rows.Next() {
		item := &entity.ReconciliationEntry{}
		if err := scanReconciliationEntry(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// BacklogByIntegration counts unpublished entries created before cutoff, per integration.
func (r *ReconciliationEntryRepository) BacklogByIntegration(ctx context.Context, cutoff time.Time) (map[uint64]int64, error) {
	query := `
		SELECT integration_id, COUNT(*)
		FROM reconciliation_queue
		WHERE published_at IS NULL AND created_at <= ?
		GROUP BY integration_id
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	backlog := make(map[uint64]int64)
	for rows.Next() {
		var integrationID uint64
		var count int64
		if err := rows.Scan(&integrationID, &count); err != nil {
			return nil, err
		}
		backlog[integrationID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return backlog, nil
}

func scanReconciliationEntry(scan rowScanner, item *entity.ReconciliationEntry) error {
	var (
		tenantID        sql.NullInt64
		tenantAccountID sql.NullInt64
		matchStatus     string
		publishedAt     sql.NullTime
	)

	err := scan.Scan(
		&item.ID,
		&item.EventID,
		&item.IntegrationID,
		&tenantID,
		&tenantAccountID,
		&matchStatus,
		&item.MatchConfidence,
		&item.MatchedBy,
		&item.Amount,
		&item.Currency,
		&item.ExternalReference,
		&item.ProviderReference,
		&publishedAt,
		&item.CreatedAt,
	)
	if err != nil {
		return err
	}

	item.TenantID = uint64PtrFromNull(tenantID)
	item.TenantAccountID = uint64PtrFromNull(tenantAccountID)
	item.MatchStatus = entity.MatchStatus(matchStatus)
	item.PublishedAt = timePtrFromNull(publishedAt)
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

var ErrAlertNotFound = errors.New("alert not found")

type AlertFilter struct {
	IntegrationID uint64
	OpenOnly      bool
	Limit         int32
}

type AlertRepository struct {
	db DBTX
}

func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, integration_id, alert_type, severity, message,
	is_acknowledged, acknowledged_at, acknowledged_by, resolved_at, created_at`

func (r *AlertRepository) Create(ctx context.Context, alert *entity.Alert) error {
	query := `
		INSERT INTO integration_alerts (
			integration_id, alert_type, severity, message,
			is_acknowledged, acknowledged_at, acknowledged_by, resolved_at, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		alert.IntegrationID,
		string(alert.AlertType),
		string(alert.Severity),
		alert.Message,
		alert.IsAcknowledged,
		nullableTimeValue(alert.AcknowledgedAt),
		nullableStringValue(alert.AcknowledgedBy),
		nullableTimeValue(alert.ResolvedAt),
		alert.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	alert.ID = uint64(id)
	return nil
}

func (r *AlertRepository) FindByID(ctx context.Context, id uint64) (*entity.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM integration_alerts WHERE id = ?`

	item := &entity.Alert{}
	if err := scanAlert(r.db.QueryRowContext(ctx, query, id), item); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return item, nil
}

// FindOpen returns the newest unresolved alert of the type for the integration.
func (r *AlertRepository) FindOpen(ctx context.Context, integrationID uint64, alertType entity.AlertType) (*entity.Alert, error) {
	query := `SELECT ` + alertColumns + `
		FROM integration_alerts
		WHERE integration_id = ? AND alert_type = ? AND resolved_at IS NULL
		ORDER BY id DESC
		LIMIT 1`

	item := &entity.Alert{}
	if err := scanAlert(r.db.QueryRowContext(ctx, query, integrationID, string(alertType)), item); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return item, nil
}

// Acknowledge sets the acknowledgement fields once; repeated calls leave the first acknowledgement intact.
func (r *AlertRepository) Acknowledge(ctx context.Context, id uint64, by string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE integration_alerts
		SET is_acknowledged = 1, acknowledged_at = ?, acknowledged_by = ?
		WHERE id = ? AND is_acknowledged = 0
	`, at, by, id)
	return err
}

// Resolve sets resolved_at once.
func (r *AlertRepository) Resolve(ctx context.Context, id uint64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE integration_alerts
		SET resolved_at = ?
		WHERE id = ? AND resolved_at IS NULL
	`, at, id)
	return err
}

func (r *AlertRepository) CountOpenBySeverity(ctx context.Context, integrationID uint64) (map[entity.AlertSeverity]int64, error) {
	query := `
		SELECT severity, COUNT(*)
		FROM integration_alerts
		WHERE integration_id = ? AND resolved_at IS NULL
		GROUP BY severity
	`

	rows, err := r.db.QueryContext(ctx, query, integrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[entity.AlertSeverity]int64)
	for rows.Next() {
		var severity string
		var count int64
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, err
		}
		counts[entity.AlertSeverity(severity)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *AlertRepository) List(ctx context.Context, filter AlertFilter) ([]*entity.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM integration_alerts WHERE integration_id = ?`
	args := []interface{}{filter.IntegrationID}
	if filter.OpenOnly {
		query += " AND resolved_at IS NULL"
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Alert, 0)
	for rows.Next() {
		item := &entity.Alert{}
		if err := scanAlert(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanAlert(scan rowScanner, item *entity.Alert) error {
	var (
		alertType      string
		severity       string
		acknowledgedAt sql.NullTime
		acknowledgedBy sql.NullString
		resolvedAt     sql.NullTime
	)

	err := scan.Scan(
		&item.ID,
		&item.IntegrationID,
		&alertType,
		&severity,
		&item.Message,
		&item.IsAcknowledged,
		&acknowledgedAt,
		&acknowledgedBy,
		&resolvedAt,
		&item.CreatedAt,
	)
	if err != nil {
		return err
	}

	item.AlertType = entity.AlertType(alertType)
	item.Severity = entity.AlertSeverity(severity)
	item.AcknowledgedAt = timePtrFromNull(acknowledgedAt)
	item.AcknowledgedBy = stringPtrFromNull(acknowledgedBy)
	item.ResolvedAt = timePtrFromNull(resolvedAt)
	return nil
}

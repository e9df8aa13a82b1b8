package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

type HealthWindowStats struct {
	Total         int64
	Successful    int64
	AvgResponseMS float64
}

type HealthLogRepository struct {
	db DBTX
}

func NewHealthLogRepository(db DBTX) *HealthLogRepository {
	return &HealthLogRepository{db: db}
}

func (r *HealthLogRepository) Create(ctx context.Context, entry *entity.HealthLogEntry) error {
	query := `
		INSERT INTO integration_health_logs (
			integration_id, check_type, status, response_time_ms, error_message, checked_at
		)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		entry.IntegrationID,
		string(entry.CheckType),
		string(entry.Status),
		entry.ResponseTimeMS,
		nullableStringValue(entry.ErrorMessage),
		entry.CheckedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = uint64(id)
	return nil
}

func (r *HealthLogRepository) WindowStats(ctx context.Context, integrationID uint64, since time.Time) (HealthWindowStats, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			AVG(response_time_ms)
		FROM integration_health_logs
		WHERE integration_id = ? AND checked_at >= ?
	`

	var stats HealthWindowStats
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, query, string(entity.CheckStatusSuccess), integrationID, since).
		Scan(&stats.Total, &stats.Successful, &avg)
	if err != nil {
		return HealthWindowStats{}, err
	}
	if avg.Valid {
		stats.AvgResponseMS = avg.Float64
	}
	return stats, nil
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

var (
	ErrEventNotFound          = errors.New("notification event not found")
	ErrDedupReferenceConflict = errors.New("dedup reference already claimed")
)

type NotificationEventFilter struct {
	IntegrationID uint64
	Status        entity.EventStatus
	Limit         int32
	Offset        int32
}

type NotificationEventRepository struct {
	db DBTX
}

func NewNotificationEventRepository(db DBTX) *NotificationEventRepository {
	return &NotificationEventRepository{db: db}
}

const notificationEventColumns = `id, integration_id, raw_payload, normalized_payload, event_type,
	external_reference, provider_reference, dedup_reference, correlation_id,
	amount, currency, sender_phone, sender_name, sender_account,
	status, validation_errors, source_ip, received_at, processed_at`

// Create inserts the event. A unique-key collision on (integration_id, dedup_reference)
// is reported as ErrDedupReferenceConflict and nothing is stored.
func (r *NotificationEventRepository) Create(ctx context.Context, event *entity.PaymentNotificationEvent) error {
	normalized, err := json.Marshal(event.NormalizedPayload)
	if err != nil {
		return err
	}
	validationErrors, err := serializeStrings(event.ValidationErrors)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payment_notification_events (
			integration_id, raw_payload, normalized_payload, event_type,
			external_reference, provider_reference, dedup_reference, correlation_id,
			amount, currency, sender_phone, sender_name, sender_account,
			status, validation_errors, source_ip, received_at, processed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		event.IntegrationID,
		event.RawPayload,
		string(normalized),
		string(event.EventType),
		event.ExternalReference,
		nullableStringValue(event.ProviderReference),
		nullableStringValue(event.DedupReference),
		nullableStringValue(event.CorrelationID),
		event.Amount,
		event.Currency,
		event.SenderPhone,
		event.SenderName,
		event.SenderAccount,
		string(event.Status),
		validationErrors,
		event.SourceIP,
		event.ReceivedAt,
		nullableTimeValue(event.ProcessedAt),
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrDedupReferenceConflict
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)
	return nil
}

// UpdateStatus moves the event to status, guarded by the expected current status.
func (r *NotificationEventRepository) UpdateStatus(ctx context.Context, id uint64, from, to entity.EventStatus, validationErrors []string, processedAt *time.Time) error {
	errorsJSON, err := serializeStrings(validationErrors)
	if err != nil {
		return err
	}

	query := `
		UPDATE payment_notification_events
		SET status = ?, validation_errors = ?, processed_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query, string(to), errorsJSON, nullableTimeValue(processedAt), id, string(from))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *NotificationEventRepository) FindByID(ctx context.Context, id uint64) (*entity.PaymentNotificationEvent, error) {
	query := `SELECT ` + notificationEventColumns + ` FROM payment_notification_events WHERE id = ?`

	item := &entity.PaymentNotificationEvent{}
	if err := scanNotificationEvent(r.db.QueryRowContext(ctx, query, id), item); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *NotificationEventRepository) List(ctx context.Context, filter NotificationEventFilter) ([]*entity.PaymentNotificationEvent, error) {
	query := `SELECT ` + notificationEventColumns + ` FROM payment_notification_events`

	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 4)

	if filter.IntegrationID > 0 {
		conditions = append(conditions, "integration_id = ?")
		args = append(args, filter.IntegrationID)
	}
	if strings.TrimSpace(string(filter.Status)) != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.PaymentNotificationEvent, 0)
	for rows.Next() {
		item := &entity.PaymentNotificationEvent{}
		if err := scanNotificationEvent(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanNotificationEvent(scan rowScanner, item *entity.PaymentNotificationEvent) error {
	var (
		normalized        []byte
		eventType         string
		status            string
		validationErrors  string
		providerReference sql.NullString
		dedupReference    sql.NullString
		correlationID     sql.NullString
		processedAt       sql.NullTime
	)

	err := scan.Scan(
		&item.ID,
		&item.IntegrationID,
		&item.RawPayload,
		&normalized,
		&eventType,
		&item.ExternalReference,
		&providerReference,
		&dedupReference,
		&correlationID,
		&item.Amount,
		&item.Currency,
		&item.SenderPhone,
		&item.SenderName,
		&item.SenderAccount,
		&status,
		&validationErrors,
		&item.SourceIP,
		&item.ReceivedAt,
		&processedAt,
	)
	if err != nil {
		return err
	}

	if len(normalized) > 0 {
		if err := json.Unmarshal(normalized, &item.NormalizedPayload); err != nil {
			return err
		}
	}
	parsedErrors, err := parseStrings(validationErrors)
	if err != nil {
		return err
	}

	item.EventType = entity.EventType(eventType)
	item.Status = entity.EventStatus(status)
	item.ValidationErrors = parsedErrors
	item.ProviderReference = stringPtrFromNull(providerReference)
	item.DedupReference = stringPtrFromNull(dedupReference)
	item.CorrelationID = stringPtrFromNull(correlationID)
	item.ProcessedAt = timePtrFromNull(processedAt)
	return nil
}

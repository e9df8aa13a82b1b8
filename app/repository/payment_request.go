package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

var (
	ErrPaymentRequestNotFound      = errors.New("payment request not found")
	ErrPaymentRequestAlreadyExists = errors.New("payment request already exists")
)

type PaymentRequestRepository struct {
	db DBTX
}

func NewPaymentRequestRepository(db DBTX) *PaymentRequestRepository {
	return &PaymentRequestRepository{db: db}
}

const paymentRequestColumns = `id, request_uid, tenant_id, institution_id, invoice_id, integration_id,
	phone_number, amount, account_reference, transaction_desc,
	status, provider_correlation_id, result_code, result_description, confirmed_event_id,
	created_at, updated_at, completed_at`

func (r *PaymentRequestRepository) Create(ctx context.Context, req *entity.PaymentRequest) error {
	query := `
		INSERT INTO payment_requests (
			request_uid, tenant_id, institution_id, invoice_id, integration_id,
			phone_number, amount, account_reference, transaction_desc,
			status, provider_correlation_id, result_code, result_description, confirmed_event_id,
			created_at, updated_at, completed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		req.RequestUID,
		req.TenantID,
		req.InstitutionID,
		req.InvoiceID,
		req.IntegrationID,
		req.PhoneNumber,
		req.Amount,
		req.AccountReference,
		req.TransactionDesc,
		string(req.Status),
		nullableStringValue(req.ProviderCorrelationID),
		nullableInt32Value(req.ResultCode),
		req.ResultDescription,
		nullableUint64Value(req.ConfirmedEventID),
		req.CreatedAt,
		req.UpdatedAt,
		nullableTimeValue(req.CompletedAt),
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentRequestAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	req.ID = uint64(id)
	return nil
}

// FindActiveDuplicate returns the newest pending or processing request for the phone and invoice created at or after since.
func (r *PaymentRequestRepository) FindActiveDuplicate(ctx context.Context, phone string, invoiceID uint64, since time.Time) (*entity.PaymentRequest, error) {
	query := `SELECT ` + paymentRequestColumns + `
		FROM payment_requests
		WHERE phone_number = ? AND invoice_id = ? AND status IN (?, ?) AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT 1`

	item := &entity.PaymentRequest{}
	err := scanPaymentRequest(r.db.QueryRowContext(ctx, query,
		phone, invoiceID,
		string(entity.RequestStatusPending), string(entity.RequestStatusProcessing),
		since,
	), item)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *PaymentRequestRepository) MarkProcessing(ctx context.Context, id uint64, correlationID string, now time.Time) error {
	query := `
		UPDATE payment_requests
		SET status = ?, provider_correlation_id = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	return r.execAffecting(ctx, query,
		string(entity.RequestStatusProcessing), correlationID, now,
		id, string(entity.RequestStatusPending),
	)
}

func (r *PaymentRequestRepository) MarkFailed(ctx context.Context, id uint64, description string, now time.Time) error {
	query := `
		UPDATE payment_requests
		SET status = ?, result_description = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?)
	`
	return r.execAffecting(ctx, query,
		string(entity.RequestStatusFailed), description, now, now,
		id, string(entity.RequestStatusPending), string(entity.RequestStatusProcessing),
	)
}

// Finalize applies the provider result to the request with the correlation id.
// It reports false when no open request matched, so a terminal request is never reopened.
func (r *PaymentRequestRepository) Finalize(ctx context.Context, correlationID string, status entity.PaymentRequestStatus, resultCode int32, description string, eventID uint64, now time.Time) (bool, error) {
	query := `
		UPDATE payment_requests
		SET status = ?, result_code = ?, result_description = ?, confirmed_event_id = ?, updated_at = ?, completed_at = ?
		WHERE provider_correlation_id = ? AND status IN (?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		string(status), resultCode, description, eventID, now, now,
		correlationID, string(entity.RequestStatusPending), string(entity.RequestStatusProcessing),
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ExpireStale fails open requests created before cutoff.
func (r *PaymentRequestRepository) ExpireStale(ctx context.Context, cutoff time.Time, description string, now time.Time, limit int32) (int64, error) {
	query := `
		UPDATE payment_requests
		SET status = ?, result_description = ?, updated_at = ?, completed_at = ?
		WHERE status IN (?, ?) AND created_at <= ?
		ORDER BY created_at ASC
		LIMIT ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(entity.RequestStatusFailed), description, now, now,
		string(entity.RequestStatusPending), string(entity.RequestStatusProcessing), cutoff,
		limit,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *PaymentRequestRepository) FindByUID(ctx context.Context, requestUID string) (*entity.PaymentRequest, error) {
	query := `SELECT ` + paymentRequestColumns + ` FROM payment_requests WHERE request_uid = ? LIMIT 1`

	item := &entity.PaymentRequest{}
	if err := scanPaymentRequest(r.db.QueryRowContext(ctx, query, requestUID), item); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *PaymentRequestRepository) FindByCorrelationID(ctx context.Context, correlationID string) (*entity.PaymentRequest, error) {
	query := `SELECT ` + paymentRequestColumns + ` FROM payment_requests WHERE provider_correlation_id = ? LIMIT 1`

	item := &entity.PaymentRequest{}
	if err := scanPaymentRequest(r.db.QueryRowContext(ctx, query, correlationID), item); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *PaymentRequestRepository) execAffecting(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPaymentRequestNotFound
	}
	return nil
}

func scanPaymentRequest(scan rowScanner, item *entity.PaymentRequest) error {
	var (
		status           string
		correlationID    sql.NullString
		resultCode       sql.NullInt32
		confirmedEventID sql.NullInt64
		completedAt      sql.NullTime
	)

	err := scan.Scan(
		&item.ID,
		&item.RequestUID,
		&item.TenantID,
		&item.InstitutionID,
		&item.InvoiceID,
		&item.IntegrationID,
		&item.PhoneNumber,
		&item.Amount,
		&item.AccountReference,
		&item.TransactionDesc,
		&status,
		&correlationID,
		&resultCode,
		&item.ResultDescription,
		&confirmedEventID,
		&item.CreatedAt,
		&item.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return err
	}

	item.Status = entity.PaymentRequestStatus(status)
	item.ProviderCorrelationID = stringPtrFromNull(correlationID)
	item.ResultCode = int32PtrFromNull(resultCode)
	item.ConfirmedEventID = uint64PtrFromNull(confirmedEventID)
	item.CompletedAt = timePtrFromNull(completedAt)
	return nil
}

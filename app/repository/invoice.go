package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

type InvoiceRepository struct {
	db DBTX
}

func NewInvoiceRepository(db DBTX) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) FindByID(ctx context.Context, id uint64) (*entity.Invoice, error) {
	query := `SELECT id, tenant_id, status, total_amount, paid_amount FROM invoices WHERE id = ?`

	item := &entity.Invoice{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&item.ID, &item.TenantID, &item.Status, &item.TotalAmount, &item.PaidAmount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

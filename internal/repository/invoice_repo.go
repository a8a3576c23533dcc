package repository

import (
	"context"
	"strconv"

	"fieldservice-invoicing-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const depositAppliedLineType = "deposit_applied"

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// InvoiceTotals is the authoritative aggregate over persisted lines.
// DepositLines is the (negative) sum of deposit_applied lines.
type InvoiceTotals struct {
	Subtotal     decimal.Decimal
	Tax          decimal.Decimal
	DepositLines decimal.Decimal
}

type InvoiceFilter struct {
	CompanyID  uuid.UUID
	CustomerID *uuid.UUID
	Statuses   []string
	Cursor     string
	Limit      int
}

func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Omit("Lines").Create(invoice).Error
}

func (r *InvoiceRepository) CreateLines(ctx context.Context, lines []models.InvoiceLine) error {
	if len(lines) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&lines).Error
}

// DeleteChargeLines removes every line that is not a deposit application.
func (r *InvoiceRepository) DeleteChargeLines(ctx context.Context, invoiceID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("invoice_id = ? AND line_type <> ?", invoiceID, depositAppliedLineType).
		Delete(&models.InvoiceLine{}).Error
}

func (r *InvoiceRepository) DeleteDepositLines(ctx context.Context, invoiceID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("invoice_id = ? AND line_type = ?", invoiceID, depositAppliedLineType).
		Delete(&models.InvoiceLine{}).Error
}

// Delete removes the invoice and whatever lines are left on it.
func (r *InvoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("invoice_id = ?", id).Delete(&models.InvoiceLine{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&models.Invoice{}).Error
}

// GetByID fetch a single invoice of a company with its lines in line order
func (r *InvoiceRepository) GetByID(ctx context.Context, companyID, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("line_number ASC")
		}).
		First(&invoice, "id = ? AND company_id = ?", id, companyID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &invoice, nil
}

func (r *InvoiceRepository) Totals(ctx context.Context, invoiceID uuid.UUID) (InvoiceTotals, error) {
	var totals InvoiceTotals
	row := r.db.WithContext(ctx).Raw(
		`SELECT
		   COALESCE(SUM(CASE WHEN line_type <> ? THEN quantity * unit_price ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN line_type <> ? AND taxable = ? THEN quantity * unit_price * tax_rate ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN line_type = ? THEN quantity * unit_price ELSE 0 END), 0)
		 FROM invoice_lines
		 WHERE invoice_id = ?`,
		depositAppliedLineType, depositAppliedLineType, true, depositAppliedLineType, invoiceID,
	).Row()
	if err := row.Scan(&totals.Subtotal, &totals.Tax, &totals.DepositLines); err != nil {
		return InvoiceTotals{}, err
	}
	return totals, nil
}

// Search lists a company's invoices newest first. The cursor is the sequence
// of the last invoice of the previous page.
func (r *InvoiceRepository) Search(ctx context.Context, filter InvoiceFilter) ([]models.Invoice, string, bool, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("company_id = ?", filter.CompanyID).
		Order("sequence DESC").
		Limit(limit + 1)

	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.Cursor != "" {
		seq, err := strconv.ParseInt(filter.Cursor, 10, 64)
		if err != nil {
			return nil, "", false, err
		}
		query = query.Where("sequence < ?", seq)
	}

	var invoices []models.Invoice
	if err := query.Find(&invoices).Error; err != nil {
		return nil, "", false, err
	}

	hasMore := false
	var nextCursor string
	if len(invoices) > limit {
		hasMore = true
		invoices = invoices[:limit]
		nextCursor = strconv.FormatInt(invoices[limit-1].Sequence, 10)
	}
	return invoices, nextCursor, hasMore, nil
}

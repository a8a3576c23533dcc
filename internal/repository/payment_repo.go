package repository

import (
	"context"
	"fmt"
	"time"

	"fieldservice-invoicing-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &payment, nil
}

// AppliedTotal sums every application recorded against the payment.
func (r *PaymentRepository) AppliedTotal(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error) {
	return appliedTotal(r.db.WithContext(ctx), paymentID)
}

// UnappliedBalance is computed from scratch on every call, never cached. It
// returns the applied total alongside the remaining balance.
func (r *PaymentRepository) UnappliedBalance(ctx context.Context, payment *models.Payment) (applied, unapplied decimal.Decimal, err error) {
	applied, err = r.AppliedTotal(ctx, payment.ID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return applied, payment.Amount.Sub(applied), nil
}

// ApplyDeposits records all applications atomically. Each deposit row is
// touched first so concurrent appliers of the same deposit serialize on its
// row lock, then the balance is re-checked against committed applications.
func (r *PaymentRepository) ApplyDeposits(ctx context.Context, apps []models.PaymentApplication) error {
	if len(apps) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range apps {
			app := apps[i]
			res := tx.Model(&models.Payment{}).
				Where("id = ? AND is_deposit = ?", app.PaymentID, true).
				Update("updated_at", time.Now())
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("deposit %s: %w", app.PaymentID, ErrNotFound)
			}

			var payment models.Payment
			if err := tx.First(&payment, "id = ?", app.PaymentID).Error; err != nil {
				return translate(err)
			}
			applied, err := appliedTotal(tx, app.PaymentID)
			if err != nil {
				return err
			}
			if payment.Amount.Sub(applied).LessThan(app.AppliedAmount) {
				return fmt.Errorf("deposit %s: %w", app.PaymentID, ErrInsufficientDeposit)
			}
			if err := tx.Create(&app).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PaymentRepository) DeleteApplications(ctx context.Context, invoiceID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Delete(&models.PaymentApplication{}).Error
}

func (r *PaymentRepository) ListApplications(ctx context.Context, invoiceID uuid.UUID) ([]models.PaymentApplication, error) {
	var apps []models.PaymentApplication
	err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("applied_at ASC").
		Find(&apps).Error
	return apps, err
}

func appliedTotal(db *gorm.DB, paymentID uuid.UUID) (decimal.Decimal, error) {
	var applied decimal.Decimal
	row := db.Model(&models.PaymentApplication{}).
		Select("COALESCE(SUM(applied_amount), 0)").
		Where("payment_id = ?", paymentID).
		Row()
	if err := row.Scan(&applied); err != nil {
		return decimal.Zero, err
	}
	return applied, nil
}

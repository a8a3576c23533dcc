package repository

import (
	"context"
	"time"

	"fieldservice-invoicing-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SequenceRepository owns the per-company invoice counters. Values are handed
// out by the database, so several service instances never collide; a value
// taken by a request that later fails is simply skipped.
type SequenceRepository struct {
	db *gorm.DB
}

func NewSequenceRepository(db *gorm.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

func (r *SequenceRepository) Next(ctx context.Context, companyID uuid.UUID) (int64, error) {
	var next int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bumped, err := bump(tx, companyID)
		if err != nil {
			return err
		}
		if !bumped {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.InvoiceSequence{
				CompanyID: companyID,
				LastValue: 1,
				UpdatedAt: time.Now(),
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				next = 1
				return nil
			}
			// lost the race to create the row; it exists now
			if _, err := bump(tx, companyID); err != nil {
				return err
			}
		}
		var seq models.InvoiceSequence
		if err := tx.First(&seq, "company_id = ?", companyID).Error; err != nil {
			return err
		}
		next = seq.LastValue
		return nil
	})
	return next, err
}

func bump(tx *gorm.DB, companyID uuid.UUID) (bool, error) {
	res := tx.Model(&models.InvoiceSequence{}).
		Where("company_id = ?", companyID).
		Updates(map[string]interface{}{
			"last_value": gorm.Expr("last_value + 1"),
			"updated_at": time.Now(),
		})
	return res.RowsAffected > 0, res.Error
}

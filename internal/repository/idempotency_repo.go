package repository

import (
	"context"
	"time"

	"fieldservice-invoicing-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IdempotencyScope struct {
	UserID    uuid.UUID
	CompanyID uuid.UUID
	Route     string
	Key       string
}

type IdempotencyRepository struct {
	db *gorm.DB
}

func NewIdempotencyRepository(db *gorm.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Claim inserts a pending record. It reports false when the scope is already
// taken; the unique index is the only concurrency control.
func (r *IdempotencyRepository) Claim(ctx context.Context, scope IdempotencyScope) (*models.IdempotencyRecord, bool, error) {
	rec := &models.IdempotencyRecord{
		ID:        uuid.New(),
		UserID:    scope.UserID,
		CompanyID: scope.CompanyID,
		Route:     scope.Route,
		Key:       scope.Key,
		State:     models.IdempotencyPending,
		CreatedAt: time.Now(),
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if res.Error != nil {
		return nil, false, res.Error
	}
	return rec, res.RowsAffected == 1, nil
}

func (r *IdempotencyRepository) Find(ctx context.Context, scope IdempotencyScope) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND company_id = ? AND route = ?", scope.UserID, scope.CompanyID, scope.Route).
		Where(map[string]interface{}{"key": scope.Key}).
		First(&rec).Error
	if err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

func (r *IdempotencyRepository) Complete(ctx context.Context, id uuid.UUID, status int, body []byte) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.IdempotencyRecord{}).
		Where("id = ? AND state = ?", id, models.IdempotencyPending).
		Updates(map[string]interface{}{
			"state":         models.IdempotencyCompleted,
			"status_code":   status,
			"response_body": datatypes.JSON(body),
			"completed_at":  now,
		}).Error
}

// Release drops a pending claim so the key can be retried.
func (r *IdempotencyRepository) Release(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND state = ?", id, models.IdempotencyPending).
		Delete(&models.IdempotencyRecord{}).Error
}

// ReleaseStale drops a pending claim created before the cutoff.
func (r *IdempotencyRepository) ReleaseStale(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND state = ? AND created_at < ?", id, models.IdempotencyPending, cutoff).
		Delete(&models.IdempotencyRecord{})
	return res.RowsAffected > 0, res.Error
}

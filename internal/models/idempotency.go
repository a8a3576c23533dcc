package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	IdempotencyPending   = "pending"
	IdempotencyCompleted = "completed"
)

// IdempotencyRecord is unique per (user, company, route, key). The body column
// is plain json rather than jsonb so replays are byte-identical.
type IdempotencyRecord struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_idempotency_scope,priority:1"`
	CompanyID    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_idempotency_scope,priority:2"`
	Route        string         `gorm:"not null;uniqueIndex:idx_idempotency_scope,priority:3"`
	Key          string         `gorm:"size:255;not null;uniqueIndex:idx_idempotency_scope,priority:4"`
	State        string         `gorm:"not null"`
	StatusCode   int
	ResponseBody datatypes.JSON `gorm:"type:json"`
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

type InvoiceSequence struct {
	CompanyID uuid.UUID `gorm:"type:uuid;primaryKey"`
	LastValue int64     `gorm:"not null"`
	UpdatedAt time.Time
}

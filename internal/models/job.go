package models

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusScheduled  JobStatus = "scheduled"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusDone       JobStatus = "done"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Job is owned by the scheduling side of the product; invoicing only reads it.
type Job struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	CompanyID   uuid.UUID `gorm:"type:uuid;not null;index"`
	CustomerID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Title       string
	Status      JobStatus `gorm:"not null;index"`
	CompletedAt *time.Time
	CreatedAt   time.Time
}

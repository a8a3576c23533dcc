package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is money received from a customer. Deposits stay available to
// future invoices until PaymentApplication rows consume their amount.
type Payment struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"company_id"`
	CustomerID uuid.UUID       `gorm:"type:uuid;not null;index" json:"customer_id"`
	Amount     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	IsDeposit  bool            `gorm:"not null;default:false;index" json:"is_deposit"`
	Method     string          `json:"method"`
	Reference  string          `json:"reference"`
	ReceivedAt time.Time       `json:"received_at"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type PaymentApplication struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	PaymentID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"payment_id"`
	InvoiceID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	AppliedAmount decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"applied_amount"`
	AppliedAt     time.Time       `gorm:"not null" json:"applied_at"`
	AppliedBy     uuid.UUID       `gorm:"type:uuid;not null" json:"applied_by"`
}

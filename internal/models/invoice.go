package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft  InvoiceStatus = "draft"
	InvoiceStatusIssued InvoiceStatus = "issued"
)

type Invoice struct {
	ID          uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID   uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_invoice_company_number,priority:1;index" json:"company_id"`
	CustomerID  uuid.UUID     `gorm:"type:uuid;not null;index" json:"customer_id"`
	Number      string        `gorm:"not null;uniqueIndex:idx_invoice_company_number,priority:2" json:"number"`
	Sequence    int64         `gorm:"not null" json:"sequence"`
	InvoiceDate time.Time     `gorm:"not null" json:"invoice_date"`
	Status      InvoiceStatus `gorm:"not null;index" json:"status"`
	Terms       string        `json:"terms"`
	Notes       *string       `json:"notes,omitempty"`
	DueDate     *time.Time    `json:"due_date,omitempty"`
	IssuedAt    *time.Time    `json:"issued_at,omitempty"`
	CreatedBy   uuid.UUID     `gorm:"type:uuid;not null" json:"created_by"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`

	Lines []InvoiceLine `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"lines,omitempty"`
}

// InvoiceLine unit prices are negative only on deposit_applied lines.
type InvoiceLine struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_invoice_line_number,priority:1" json:"invoice_id"`
	LineNumber       int             `gorm:"not null;uniqueIndex:idx_invoice_line_number,priority:2" json:"line_number"`
	LineType         string          `gorm:"not null;index" json:"line_type"`
	Description      string          `gorm:"not null" json:"description"`
	Quantity         decimal.Decimal `gorm:"type:numeric(12,3);not null" json:"quantity"`
	UnitPrice        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	Taxable          bool            `gorm:"not null;default:false" json:"taxable"`
	TaxRate          decimal.Decimal `gorm:"type:numeric(7,4);not null" json:"tax_rate"`
	JobID            *uuid.UUID      `gorm:"type:uuid;index" json:"job_id,omitempty"`
	DepositPaymentID *uuid.UUID      `gorm:"type:uuid;index" json:"deposit_payment_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

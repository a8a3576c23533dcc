package invoicing

import (
	"fmt"
	"strings"

	"fieldservice-invoicing-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LineType string

const (
	LineTypeService        LineType = "service"
	LineTypeDepositApplied LineType = "deposit_applied"
)

var hundred = decimal.NewFromInt(100)

// Column limits of invoice_lines: quantity numeric(12,3), unit_price
// numeric(12,2), tax_rate numeric(7,4) as a fraction.
var (
	maxQuantity  = decimal.New(1, 9)
	maxUnitPrice = decimal.New(1, 10)
)

const (
	quantityPlaces  = 3
	unitPricePlaces = 2
	taxRatePlaces   = 2 // percent; four places once divided by 100
)

func exceedsPlaces(v decimal.Decimal, places int32) bool {
	return !v.Equal(v.Round(places))
}

// LineInput is a caller-supplied line as received; TaxRatePercent is a
// percentage (8.25 means 8.25%).
type LineInput struct {
	Description    string
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	TaxRatePercent decimal.Decimal
	LineType       string
	JobID          *uuid.UUID
}

// Line is one of ServiceLine, ManualLine or DepositAppliedLine.
type Line interface {
	Type() LineType
	Amount() decimal.Decimal
	record(invoiceID uuid.UUID, number int) models.InvoiceLine
}

type charge struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxRate     decimal.Decimal // fraction
	JobID       *uuid.UUID
}

func (c charge) Amount() decimal.Decimal {
	return c.Quantity.Mul(c.UnitPrice)
}

func (c charge) toRecord(invoiceID uuid.UUID, number int, lineType LineType) models.InvoiceLine {
	return models.InvoiceLine{
		ID:          uuid.New(),
		InvoiceID:   invoiceID,
		LineNumber:  number,
		LineType:    string(lineType),
		Description: c.Description,
		Quantity:    c.Quantity,
		UnitPrice:   c.UnitPrice,
		Taxable:     c.TaxRate.IsPositive(),
		TaxRate:     c.TaxRate,
		JobID:       c.JobID,
	}
}

type ServiceLine struct {
	charge
}

func (ServiceLine) Type() LineType { return LineTypeService }

func (l ServiceLine) record(invoiceID uuid.UUID, number int) models.InvoiceLine {
	return l.toRecord(invoiceID, number, LineTypeService)
}

// ManualLine carries any caller line kind other than service.
type ManualLine struct {
	charge
	Kind LineType
}

func (l ManualLine) Type() LineType { return l.Kind }

func (l ManualLine) record(invoiceID uuid.UUID, number int) models.InvoiceLine {
	return l.toRecord(invoiceID, number, l.Kind)
}

// DepositAppliedLine discharges part of a deposit. Applied is positive; the
// persisted unit price is its negation.
type DepositAppliedLine struct {
	PaymentID   uuid.UUID
	Applied     decimal.Decimal
	Description string
}

func (DepositAppliedLine) Type() LineType { return LineTypeDepositApplied }

func (l DepositAppliedLine) Amount() decimal.Decimal { return l.Applied.Neg() }

func (l DepositAppliedLine) record(invoiceID uuid.UUID, number int) models.InvoiceLine {
	paymentID := l.PaymentID
	return models.InvoiceLine{
		ID:               uuid.New(),
		InvoiceID:        invoiceID,
		LineNumber:       number,
		LineType:         string(LineTypeDepositApplied),
		Description:      l.Description,
		Quantity:         decimal.NewFromInt(1),
		UnitPrice:        l.Applied.Neg(),
		Taxable:          false,
		TaxRate:          decimal.Zero,
		DepositPaymentID: &paymentID,
	}
}

// NormalizeLines is the only place caller lines are converted: line type
// defaulting, the percentage to fraction conversion and the precision and
// range checks that keep values inside their columns happen here once.
func NormalizeLines(inputs []LineInput) ([]Line, error) {
	var issues []Issue
	lines := make([]Line, 0, len(inputs))
	seenJobs := make(map[uuid.UUID]int)

	for i, in := range inputs {
		path := fmt.Sprintf("lines[%d]", i)
		before := len(issues)

		desc := strings.TrimSpace(in.Description)
		if desc == "" {
			issues = append(issues, Issue{Path: path + ".description", Message: "is required"})
		}
		switch {
		case !in.Quantity.IsPositive():
			issues = append(issues, Issue{Path: path + ".quantity", Message: "must be greater than 0"})
		case in.Quantity.GreaterThanOrEqual(maxQuantity):
			issues = append(issues, Issue{Path: path + ".quantity", Message: "must be less than " + maxQuantity.String()})
		case exceedsPlaces(in.Quantity, quantityPlaces):
			issues = append(issues, Issue{Path: path + ".quantity", Message: "must have at most 3 decimal places"})
		}
		switch {
		case in.UnitPrice.IsNegative():
			issues = append(issues, Issue{Path: path + ".unitPrice", Message: "must not be negative"})
		case in.UnitPrice.GreaterThanOrEqual(maxUnitPrice):
			issues = append(issues, Issue{Path: path + ".unitPrice", Message: "must be less than " + maxUnitPrice.String()})
		case exceedsPlaces(in.UnitPrice, unitPricePlaces):
			issues = append(issues, Issue{Path: path + ".unitPrice", Message: "must have at most 2 decimal places"})
		}
		switch {
		case in.TaxRatePercent.IsNegative() || in.TaxRatePercent.GreaterThan(hundred):
			issues = append(issues, Issue{Path: path + ".taxRate", Message: "must be between 0 and 100"})
		case exceedsPlaces(in.TaxRatePercent, taxRatePlaces):
			issues = append(issues, Issue{Path: path + ".taxRate", Message: "must have at most 2 decimal places"})
		}

		kind := LineType(strings.TrimSpace(in.LineType))
		if kind == "" {
			kind = LineTypeService
		}
		if kind == LineTypeDepositApplied {
			issues = append(issues, Issue{Path: path + ".lineType", Message: "deposit_applied lines are generated from depositIds"})
		}

		if in.JobID != nil {
			if first, dup := seenJobs[*in.JobID]; dup {
				issues = append(issues, Issue{
					Path:    path + ".jobId",
					Message: fmt.Sprintf("job already billed on lines[%d]", first),
				})
			} else {
				seenJobs[*in.JobID] = i
			}
		}

		if len(issues) > before {
			continue
		}

		c := charge{
			Description: desc,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			TaxRate:     in.TaxRatePercent.Div(hundred),
			JobID:       in.JobID,
		}
		if kind == LineTypeService {
			lines = append(lines, ServiceLine{charge: c})
		} else {
			lines = append(lines, ManualLine{charge: c, Kind: kind})
		}
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return lines, nil
}

// assembly is the ordered line set of an invoice before persistence.
type assembly struct {
	charges  []Line
	deposits []DepositAppliedLine
	subtotal decimal.Decimal
}

// assembleLines numbers caller lines 1..N in caller order and sums them.
// Deposit lines are appended later, so they never enter the subtotal.
func assembleLines(lines []Line) assembly {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Amount())
	}
	return assembly{charges: lines, subtotal: subtotal}
}

func (a assembly) chargeRecords(invoiceID uuid.UUID) []models.InvoiceLine {
	out := make([]models.InvoiceLine, 0, len(a.charges))
	for i, l := range a.charges {
		out = append(out, l.record(invoiceID, i+1))
	}
	return out
}

func (a assembly) depositRecords(invoiceID uuid.UUID) []models.InvoiceLine {
	out := make([]models.InvoiceLine, 0, len(a.deposits))
	next := len(a.charges) + 1
	for i, l := range a.deposits {
		out = append(out, l.record(invoiceID, next+i))
	}
	return out
}

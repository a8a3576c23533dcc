package invoicing

import (
	"context"

	"fieldservice-invoicing-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Summary struct {
	Subtotal       decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
	DepositApplied decimal.Decimal
	Balance        decimal.Decimal
}

func summarize(totals repository.InvoiceTotals, depositApplied decimal.Decimal) Summary {
	subtotal := totals.Subtotal.Round(2)
	tax := totals.Tax.Round(2)
	total := subtotal.Add(tax)
	return Summary{
		Subtotal:       subtotal,
		Tax:            tax,
		Total:          total,
		DepositApplied: depositApplied.Round(2),
		Balance:        total.Add(totals.DepositLines.Round(2)),
	}
}

// inMemoryTotals mirrors the SQL aggregate for the assembled, not yet
// persisted, line set.
func inMemoryTotals(a assembly) repository.InvoiceTotals {
	totals := repository.InvoiceTotals{Subtotal: a.subtotal}
	for _, l := range a.charges {
		rec := l.record(uuid.Nil, 0)
		if rec.Taxable {
			totals.Tax = totals.Tax.Add(l.Amount().Mul(rec.TaxRate))
		}
	}
	for _, d := range a.deposits {
		totals.DepositLines = totals.DepositLines.Add(d.Amount())
	}
	return totals
}

// project re-reads the persisted lines so the response reflects exactly what
// was stored. DepositApplied is taken from the allocation, not the store.
func (s *Service) project(ctx context.Context, invoiceID uuid.UUID, a assembly, alloc DepositAllocation) Summary {
	totals, err := s.invoices.Totals(ctx, invoiceID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("invoice_id", invoiceID.String()).
			Msg("could not re-read invoice totals, using assembled totals")
		totals = inMemoryTotals(a)
	}
	return summarize(totals, alloc.Applied)
}

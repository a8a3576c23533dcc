package invoicing

import (
	"context"
	"errors"

	"fieldservice-invoicing-backend/internal/logger"
	"fieldservice-invoicing-backend/internal/models"
	"fieldservice-invoicing-backend/internal/repository"
)

const (
	stageInvoice      = "invoice"
	stageLines        = "lines"
	stageDepositLines = "deposit_lines"
	stageApplications = "payment_applications"
)

type stage struct {
	name string
	run  func(ctx context.Context) error
	undo func(ctx context.Context) error
	// optional stages log and swallow their failure instead of rolling back
	optional bool
}

type writePlan struct {
	invoice      *models.Invoice
	lines        []models.InvoiceLine
	depositLines []models.InvoiceLine
	applications []models.PaymentApplication
}

func (s *Service) stages(plan writePlan) []stage {
	invoiceID := plan.invoice.ID
	return []stage{
		{
			name: stageInvoice,
			run:  func(ctx context.Context) error { return s.invoices.Create(ctx, plan.invoice) },
			undo: func(ctx context.Context) error { return s.invoices.Delete(ctx, invoiceID) },
		},
		{
			name: stageLines,
			run:  func(ctx context.Context) error { return s.invoices.CreateLines(ctx, plan.lines) },
			undo: func(ctx context.Context) error { return s.invoices.DeleteChargeLines(ctx, invoiceID) },
		},
		{
			name: stageDepositLines,
			run:  func(ctx context.Context) error { return s.invoices.CreateLines(ctx, plan.depositLines) },
			undo: func(ctx context.Context) error { return s.invoices.DeleteDepositLines(ctx, invoiceID) },
		},
		{
			name:     stageApplications,
			run:      func(ctx context.Context) error { return s.payments.ApplyDeposits(ctx, plan.applications) },
			undo:     func(ctx context.Context) error { return s.payments.DeleteApplications(ctx, invoiceID) },
			optional: s.cfg.LenientPaymentApplications,
		},
	}
}

// write runs the stages in order, each only after the previous one was
// acknowledged. When a stage fails, it and every earlier stage are undone in
// reverse order; undo steps are idempotent deletes.
func (s *Service) write(ctx context.Context, plan writePlan) error {
	log := logger.WithComponent(ctx, "invoicing").With().
		Str("invoice_id", plan.invoice.ID.String()).
		Str("invoice_number", plan.invoice.Number).
		Logger()

	stages := s.stages(plan)
	for i, st := range stages {
		err := st.run(ctx)
		if err == nil {
			continue
		}

		if st.optional {
			log.Error().Err(err).Str("stage", st.name).
				Msg("payment applications not recorded; invoice kept without audit rows")
			return nil
		}

		log.Warn().Err(err).Str("stage", st.name).Msg("invoice write failed, compensating")
		var undoErrs []error
		for j := i; j >= 0; j-- {
			// compensation must run even if the request context is gone
			if uerr := stages[j].undo(context.WithoutCancel(ctx)); uerr != nil {
				log.Error().Err(uerr).Str("stage", stages[j].name).Msg("compensation failed")
				undoErrs = append(undoErrs, uerr)
			}
		}

		if errors.Is(err, repository.ErrInsufficientDeposit) {
			err = errors.Join(ErrDepositConflict, err)
		}
		return &WriteError{Stage: st.name, Err: errors.Join(append([]error{err}, undoErrs...)...)}
	}
	return nil
}

package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldservice-invoicing-backend/internal/models"
	"fieldservice-invoicing-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type CustomerReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
}

type JobReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

type PaymentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	UnappliedBalance(ctx context.Context, payment *models.Payment) (applied, unapplied decimal.Decimal, err error)
	ApplyDeposits(ctx context.Context, apps []models.PaymentApplication) error
	DeleteApplications(ctx context.Context, invoiceID uuid.UUID) error
}

type InvoiceStore interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	CreateLines(ctx context.Context, lines []models.InvoiceLine) error
	DeleteChargeLines(ctx context.Context, invoiceID uuid.UUID) error
	DeleteDepositLines(ctx context.Context, invoiceID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, companyID, id uuid.UUID) (*models.Invoice, error)
	Totals(ctx context.Context, invoiceID uuid.UUID) (repository.InvoiceTotals, error)
	Search(ctx context.Context, filter repository.InvoiceFilter) ([]models.Invoice, string, bool, error)
}

type NumberAllocator interface {
	Next(ctx context.Context, companyID uuid.UUID) (int64, error)
}

type Dependencies struct {
	Customers CustomerReader
	Jobs      JobReader
	Payments  PaymentStore
	Invoices  InvoiceStore
	Numbers   NumberAllocator
}

type Config struct {
	DueDays      int
	DefaultTerms string
	// LenientPaymentApplications keeps an invoice whose payment applications
	// failed to persist instead of rolling it back.
	LenientPaymentApplications bool
	ValidationConcurrency      int
	Now                        func() time.Time
}

type Service struct {
	customers CustomerReader
	jobs      JobReader
	payments  PaymentStore
	invoices  InvoiceStore
	numbers   NumberAllocator
	cfg       Config
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.DueDays <= 0 {
		cfg.DueDays = 30
	}
	if cfg.DefaultTerms == "" {
		cfg.DefaultTerms = fmt.Sprintf("Net %d", cfg.DueDays)
	}
	if cfg.ValidationConcurrency <= 0 {
		cfg.ValidationConcurrency = 8
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		customers: deps.Customers,
		jobs:      deps.Jobs,
		payments:  deps.Payments,
		invoices:  deps.Invoices,
		numbers:   deps.Numbers,
		cfg:       cfg,
	}
}

type CreateInvoiceInput struct {
	CompanyID  uuid.UUID
	ActorID    uuid.UUID
	CustomerID uuid.UUID
	JobIDs     []uuid.UUID
	Lines      []LineInput
	DepositIDs []uuid.UUID
	Terms      *string
	Notes      *string
	IssueNow   bool
	DueDate    *time.Time
}

type CreatedInvoice struct {
	Invoice *models.Invoice
	Summary Summary
}

// CreateInvoice validates everything before the first write, then persists
// the invoice through the staged writer.
func (s *Service) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*CreatedInvoice, error) {
	lines, err := NormalizeLines(in.Lines)
	if err != nil {
		return nil, err
	}
	if err := checkDuplicateDeposits(in.DepositIDs); err != nil {
		return nil, err
	}

	if err := s.checkCustomer(ctx, in.CompanyID, in.CustomerID); err != nil {
		return nil, err
	}
	candidates, err := s.checkReferences(ctx, in.CompanyID, in.CustomerID, referencedJobs(in.JobIDs, in.Lines), in.DepositIDs)
	if err != nil {
		return nil, err
	}

	seq, err := s.numbers.Next(ctx, in.CompanyID)
	if err != nil {
		return nil, &WriteError{Stage: "numbering", Err: err}
	}

	invoice := s.newInvoice(in, seq)
	a := assembleLines(lines)
	alloc := AllocateDeposits(candidates, a.subtotal)
	a.deposits = alloc.Lines

	plan := writePlan{
		invoice:      invoice,
		lines:        a.chargeRecords(invoice.ID),
		depositLines: a.depositRecords(invoice.ID),
		applications: applicationsFor(invoice, alloc),
	}
	if err := s.write(ctx, plan); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("invoice_id", invoice.ID.String()).
		Str("invoice_number", invoice.Number).
		Str("status", string(invoice.Status)).
		Int("lines", len(plan.lines)).
		Int("deposit_lines", len(plan.depositLines)).
		Msg("invoice created")

	return &CreatedInvoice{Invoice: invoice, Summary: s.project(ctx, invoice.ID, a, alloc)}, nil
}

func (s *Service) newInvoice(in CreateInvoiceInput, seq int64) *models.Invoice {
	now := s.cfg.Now().UTC()
	invoiceDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	terms := s.cfg.DefaultTerms
	if in.Terms != nil {
		terms = *in.Terms
	}

	invoice := &models.Invoice{
		ID:          uuid.New(),
		CompanyID:   in.CompanyID,
		CustomerID:  in.CustomerID,
		Number:      fmt.Sprintf("INV-%d", seq),
		Sequence:    seq,
		InvoiceDate: invoiceDate,
		Status:      models.InvoiceStatusDraft,
		Terms:       terms,
		Notes:       in.Notes,
		CreatedBy:   in.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.IssueNow {
		due := invoiceDate.AddDate(0, 0, s.cfg.DueDays)
		if in.DueDate != nil {
			due = *in.DueDate
		}
		invoice.Status = models.InvoiceStatusIssued
		invoice.IssuedAt = &now
		invoice.DueDate = &due
	}
	return invoice
}

func applicationsFor(invoice *models.Invoice, alloc DepositAllocation) []models.PaymentApplication {
	apps := make([]models.PaymentApplication, 0, len(alloc.Lines))
	for _, l := range alloc.Lines {
		apps = append(apps, models.PaymentApplication{
			ID:            uuid.New(),
			PaymentID:     l.PaymentID,
			InvoiceID:     invoice.ID,
			AppliedAmount: l.Applied,
			AppliedAt:     invoice.CreatedAt,
			AppliedBy:     invoice.CreatedBy,
		})
	}
	return apps
}

// referencedJobs merges jobIds with the jobs referenced by lines, first seen
// order, without duplicates.
func referencedJobs(jobIDs []uuid.UUID, lines []LineInput) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(jobIDs))
	out := make([]uuid.UUID, 0, len(jobIDs))
	add := func(id uuid.UUID) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range jobIDs {
		add(id)
	}
	for _, l := range lines {
		if l.JobID != nil {
			add(*l.JobID)
		}
	}
	return out
}

func checkDuplicateDeposits(ids []uuid.UUID) error {
	seen := make(map[uuid.UUID]int, len(ids))
	var issues []Issue
	for i, id := range ids {
		if first, dup := seen[id]; dup {
			issues = append(issues, Issue{
				Path:    fmt.Sprintf("depositIds[%d]", i),
				Message: fmt.Sprintf("duplicate of depositIds[%d]", first),
			})
			continue
		}
		seen[id] = i
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

type InvoiceView struct {
	Invoice *models.Invoice
	Summary Summary
}

// GetInvoice re-derives the deposit total from persisted lines since no
// allocation exists outside of creation.
func (s *Service) GetInvoice(ctx context.Context, companyID, id uuid.UUID) (*InvoiceView, error) {
	invoice, err := s.invoices.GetByID(ctx, companyID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	totals, err := s.invoices.Totals(ctx, id)
	if err != nil {
		return nil, err
	}
	return &InvoiceView{Invoice: invoice, Summary: summarize(totals, totals.DepositLines.Neg())}, nil
}

func (s *Service) ListInvoices(ctx context.Context, filter repository.InvoiceFilter) ([]models.Invoice, string, bool, error) {
	return s.invoices.Search(ctx, filter)
}

type DepositBalance struct {
	Payment   *models.Payment
	Applied   decimal.Decimal
	Unapplied decimal.Decimal
}

func (s *Service) DepositBalance(ctx context.Context, companyID, paymentID uuid.UUID) (*DepositBalance, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	if payment.CompanyID != companyID {
		return nil, ErrPaymentNotFound
	}
	applied, unapplied, err := s.payments.UnappliedBalance(ctx, payment)
	if err != nil {
		return nil, err
	}
	return &DepositBalance{Payment: payment, Applied: applied, Unapplied: unapplied}, nil
}

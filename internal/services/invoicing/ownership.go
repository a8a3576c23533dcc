package invoicing

import (
	"context"
	"errors"
	"fmt"

	"fieldservice-invoicing-backend/internal/models"
	"fieldservice-invoicing-backend/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

func (s *Service) checkCustomer(ctx context.Context, companyID, customerID uuid.UUID) error {
	customer, err := s.customers.GetByID(ctx, customerID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrCustomerNotFound
	}
	if err != nil {
		return fmt.Errorf("load customer %s: %w", customerID, err)
	}
	if customer.CompanyID != companyID {
		return ErrCustomerNotFound
	}
	return nil
}

func (s *Service) checkJob(ctx context.Context, companyID, customerID, jobID uuid.UUID) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if errors.Is(err, repository.ErrNotFound) {
		return &PreconditionError{Entity: "job", ID: jobID, Reason: "not found or unauthorized"}
	}
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	switch {
	case job.CompanyID != companyID:
		return &PreconditionError{Entity: "job", ID: jobID, Reason: "not found or unauthorized"}
	case job.CustomerID != customerID:
		return &PreconditionError{Entity: "job", ID: jobID, Reason: "does not belong to the invoiced customer"}
	case job.Status != models.JobStatusDone:
		return &PreconditionError{Entity: "job", ID: jobID, Reason: fmt.Sprintf("is %s, only done jobs can be invoiced", job.Status)}
	}
	return nil
}

func (s *Service) checkDeposit(ctx context.Context, companyID, customerID, paymentID uuid.UUID) (DepositCandidate, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if errors.Is(err, repository.ErrNotFound) {
		return DepositCandidate{}, &PreconditionError{Entity: "deposit", ID: paymentID, Reason: "not found or unauthorized"}
	}
	if err != nil {
		return DepositCandidate{}, fmt.Errorf("load deposit %s: %w", paymentID, err)
	}
	switch {
	case payment.CompanyID != companyID:
		return DepositCandidate{}, &PreconditionError{Entity: "deposit", ID: paymentID, Reason: "not found or unauthorized"}
	case payment.CustomerID != customerID:
		return DepositCandidate{}, &PreconditionError{Entity: "deposit", ID: paymentID, Reason: "does not belong to the invoiced customer"}
	case !payment.IsDeposit:
		return DepositCandidate{}, &PreconditionError{Entity: "deposit", ID: paymentID, Reason: "is not a deposit"}
	}

	_, unapplied, err := s.payments.UnappliedBalance(ctx, payment)
	if err != nil {
		return DepositCandidate{}, fmt.Errorf("compute unapplied balance of %s: %w", paymentID, err)
	}
	if !unapplied.IsPositive() {
		return DepositCandidate{}, &PreconditionError{Entity: "deposit", ID: paymentID, Reason: "has no unapplied balance"}
	}
	return DepositCandidate{PaymentID: paymentID, Reference: payment.Reference, Unapplied: unapplied}, nil
}

// checkReferences validates every job and deposit concurrently. All checks run
// to completion and the first failure in caller order (jobs, then deposits) is
// returned, so the error does not depend on scheduling.
func (s *Service) checkReferences(ctx context.Context, companyID, customerID uuid.UUID, jobIDs, depositIDs []uuid.UUID) ([]DepositCandidate, error) {
	jobErrs := make([]error, len(jobIDs))
	depositErrs := make([]error, len(depositIDs))
	candidates := make([]DepositCandidate, len(depositIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ValidationConcurrency)

	for i, id := range jobIDs {
		g.Go(func() error {
			jobErrs[i] = s.checkJob(gctx, companyID, customerID, id)
			return nil
		})
	}
	for i, id := range depositIDs {
		g.Go(func() error {
			candidates[i], depositErrs[i] = s.checkDeposit(gctx, companyID, customerID, id)
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range jobErrs {
		if err != nil {
			return nil, err
		}
	}
	for _, err := range depositErrs {
		if err != nil {
			return nil, err
		}
	}
	return candidates, nil
}

package invoicing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrCustomerNotFound deliberately covers both a missing customer and one
	// owned by another company.
	ErrCustomerNotFound = errors.New("customer not found or unauthorized")

	// ErrPreconditionFailed is the parent of every PreconditionError.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrDepositConflict is returned when a selected deposit was consumed by
	// another invoice between validation and the payment-application stage.
	ErrDepositConflict = errors.New("deposit balance changed while the invoice was being created")

	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrPaymentNotFound = errors.New("payment not found or unauthorized")
)

// PreconditionError reports a job or deposit that cannot be invoiced.
type PreconditionError struct {
	Entity string
	ID     uuid.UUID
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s %s %s", e.Entity, e.ID, e.Reason)
}

func (e *PreconditionError) Unwrap() error {
	return ErrPreconditionFailed
}

type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.Path+": "+is.Message)
	}
	return "invalid invoice request: " + strings.Join(parts, "; ")
}

// WriteError wraps a failure in one of the persistence stages.
type WriteError struct {
	Stage string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("invoice write failed at %s: %v", e.Stage, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

package repository_test

import (
	"context"
	"testing"
	"time"

	"fieldservice-invoicing-backend/internal/models"
	"fieldservice-invoicing-backend/internal/repository"
	"fieldservice-invoicing-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func application(paymentID, invoiceID uuid.UUID, amount string) models.PaymentApplication {
	return models.PaymentApplication{
		ID:            uuid.New(),
		PaymentID:     paymentID,
		InvoiceID:     invoiceID,
		AppliedAmount: decimal.RequireFromString(amount),
		AppliedAt:     time.Now(),
		AppliedBy:     uuid.New(),
	}
}

func TestUnappliedBalance(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.Seed(t, db)
	repo := repository.NewPaymentRepository(db)
	deposit := f.AddDeposit(t, f.Customer.ID, "100", "DEP")

	applied, bal, err := repo.UnappliedBalance(context.Background(), &deposit)
	require.NoError(t, err)
	assert.True(t, applied.IsZero())
	assert.True(t, bal.Equal(decimal.NewFromInt(100)))

	f.Apply(t, deposit.ID, "40")
	applied, bal, err = repo.UnappliedBalance(context.Background(), &deposit)
	require.NoError(t, err)
	assert.True(t, applied.Equal(decimal.NewFromInt(40)), "got %s", applied)
	assert.True(t, bal.Equal(decimal.NewFromInt(60)), "got %s", bal)
}

func TestApplyDepositsGuardsBalance(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.Seed(t, db)
	repo := repository.NewPaymentRepository(db)
	ctx := context.Background()

	first := f.AddDeposit(t, f.Customer.ID, "50", "A")
	second := f.AddDeposit(t, f.Customer.ID, "20", "B")
	invoiceID := uuid.New()

	err := repo.ApplyDeposits(ctx, []models.PaymentApplication{
		application(first.ID, invoiceID, "50"),
		application(second.ID, invoiceID, "25"),
	})
	assert.ErrorIs(t, err, repository.ErrInsufficientDeposit)

	// all or nothing
	apps, err := repo.ListApplications(ctx, invoiceID)
	require.NoError(t, err)
	assert.Empty(t, apps)

	require.NoError(t, repo.ApplyDeposits(ctx, []models.PaymentApplication{
		application(first.ID, invoiceID, "50"),
		application(second.ID, invoiceID, "20"),
	}))
	apps, err = repo.ListApplications(ctx, invoiceID)
	require.NoError(t, err)
	assert.Len(t, apps, 2)

	require.NoError(t, repo.DeleteApplications(ctx, invoiceID))
	total, err := repo.AppliedTotal(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestApplyDepositsRejectsRegularPayment(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.Seed(t, db)
	repo := repository.NewPaymentRepository(db)
	payment := f.AddPayment(t, f.Customer.ID, "50", "CHK")

	err := repo.ApplyDeposits(context.Background(), []models.PaymentApplication{
		application(payment.ID, uuid.New(), "10"),
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

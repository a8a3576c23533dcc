package invoicing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func candidate(unapplied, ref string) DepositCandidate {
	return DepositCandidate{PaymentID: uuid.New(), Reference: ref, Unapplied: d(unapplied)}
}

func TestAllocateDeposits(t *testing.T) {
	t.Run("deposit smaller than subtotal applies fully", func(t *testing.T) {
		dep := candidate("50", "DEP-1")
		alloc := AllocateDeposits([]DepositCandidate{dep}, d("120"))

		require.Len(t, alloc.Lines, 1)
		assert.Equal(t, dep.PaymentID, alloc.Lines[0].PaymentID)
		assert.True(t, alloc.Lines[0].Amount().Equal(d("-50")))
		assert.True(t, alloc.Applied.Equal(d("50")))
		assert.Equal(t, "Deposit applied (DEP-1)", alloc.Lines[0].Description)
	})

	t.Run("deposit larger than subtotal is capped", func(t *testing.T) {
		alloc := AllocateDeposits([]DepositCandidate{candidate("200", "")}, d("80"))

		require.Len(t, alloc.Lines, 1)
		assert.True(t, alloc.Lines[0].Applied.Equal(d("80")))
		assert.True(t, alloc.Applied.Equal(d("80")))
	})

	t.Run("second deposit covers only the remainder", func(t *testing.T) {
		alloc := AllocateDeposits([]DepositCandidate{candidate("30", "A"), candidate("90", "B")}, d("100"))

		require.Len(t, alloc.Lines, 2)
		assert.True(t, alloc.Lines[0].Applied.Equal(d("30")))
		assert.True(t, alloc.Lines[1].Applied.Equal(d("70")))
		assert.True(t, alloc.Applied.Equal(d("100")))
	})

	t.Run("deposits after the subtotal is covered emit nothing", func(t *testing.T) {
		alloc := AllocateDeposits([]DepositCandidate{candidate("100", "A"), candidate("40", "B")}, d("100"))

		require.Len(t, alloc.Lines, 1)
		assert.Equal(t, "Deposit applied (A)", alloc.Lines[0].Description)
	})

	t.Run("zero subtotal applies nothing", func(t *testing.T) {
		alloc := AllocateDeposits([]DepositCandidate{candidate("100", "A")}, decimal.Zero)

		assert.Empty(t, alloc.Lines)
		assert.True(t, alloc.Applied.IsZero())
	})

	t.Run("missing reference falls back to the payment id", func(t *testing.T) {
		dep := candidate("10", "")
		alloc := AllocateDeposits([]DepositCandidate{dep}, d("10"))

		require.Len(t, alloc.Lines, 1)
		assert.Contains(t, alloc.Lines[0].Description, dep.PaymentID.String()[:8])
	})
}

func TestAllocateDepositsTotalIsOrderIndependent(t *testing.T) {
	deposits := []DepositCandidate{candidate("30", "A"), candidate("90", "B"), candidate("15.50", "C")}
	reversed := []DepositCandidate{deposits[2], deposits[1], deposits[0]}

	for _, subtotal := range []string{"0", "20", "100", "135.50", "500"} {
		forward := AllocateDeposits(deposits, d(subtotal))
		backward := AllocateDeposits(reversed, d(subtotal))

		assert.True(t, forward.Applied.Equal(backward.Applied), "subtotal %s", subtotal)
		assert.True(t, forward.Applied.LessThanOrEqual(d(subtotal)), "subtotal %s", subtotal)
	}
}

func TestAllocateDepositsCapsAtWholeCents(t *testing.T) {
	alloc := AllocateDeposits([]DepositCandidate{candidate("100", "A")}, d("4.43889"))

	require.Len(t, alloc.Lines, 1)
	assert.True(t, alloc.Applied.Equal(d("4.44")), "got %s", alloc.Applied)
	assert.True(t, alloc.Lines[0].Amount().Equal(d("-4.44")))
}

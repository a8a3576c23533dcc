package invoicing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DepositCandidate is a validated deposit with the balance it had when the
// request was checked.
type DepositCandidate struct {
	PaymentID uuid.UUID
	Reference string
	Unapplied decimal.Decimal
}

type DepositAllocation struct {
	Lines []DepositAppliedLine
	// Applied is the positive total consumed across all deposits.
	Applied decimal.Decimal
}

// AllocateDeposits walks the deposits in caller order and lets each one cover
// what is still owed on the subtotal. A deposit that does not fit entirely
// keeps its remainder; deposits reached after the subtotal is covered apply
// nothing and produce no line.
func AllocateDeposits(candidates []DepositCandidate, subtotal decimal.Decimal) DepositAllocation {
	// deposit lines persist in cents, so the cap must be in cents too
	owed := subtotal.Round(2)
	runningApplied := decimal.Zero // <= 0
	var lines []DepositAppliedLine

	for _, c := range candidates {
		remainingInvoice := owed.Add(runningApplied)
		applyAmount := decimal.Min(c.Unapplied, decimal.Max(decimal.Zero, remainingInvoice))
		if !applyAmount.IsPositive() {
			continue
		}
		lines = append(lines, DepositAppliedLine{
			PaymentID:   c.PaymentID,
			Applied:     applyAmount,
			Description: depositDescription(c),
		})
		runningApplied = runningApplied.Sub(applyAmount)
	}

	return DepositAllocation{Lines: lines, Applied: runningApplied.Neg()}
}

func depositDescription(c DepositCandidate) string {
	if c.Reference != "" {
		return "Deposit applied (" + c.Reference + ")"
	}
	return "Deposit applied (payment " + c.PaymentID.String()[:8] + ")"
}

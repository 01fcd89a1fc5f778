/**
 * @description
 * Centralized money math for the ledger. Every charge in the system is a
 * fixed percentage of a gross amount rounded to centavos, and every net
 * amount is gross minus charge. Keeping the arithmetic in one place is what
 * guarantees the `netAmount = amount - charge` invariant across transfers,
 * deposits, and withdrawals.
 */

package domain

import "github.com/shopspring/decimal"

var (
	// ChargeRate is the 2% fee applied to transfers, deposits, and withdrawals.
	ChargeRate = decimal.RequireFromString("0.02")

	// CapitalLockInRate is the non-transferable 25% of a capital contribution.
	CapitalLockInRate = decimal.RequireFromString("0.25")

	// CapitalMonthlyProfitRate is the 5% monthly profit on activated capital.
	CapitalMonthlyProfitRate = decimal.RequireFromString("0.05")

	// MinTransferAmount is the peer-to-peer transfer floor (PHP 50).
	MinTransferAmount = decimal.NewFromInt(50)
)

// ChargeBreakdown is the gross/charge/net decomposition of a money movement.
type ChargeBreakdown struct {
	Amount decimal.Decimal
	Charge decimal.Decimal
	Net    decimal.Decimal
}

// NewChargeBreakdown computes the 2% charge for a gross amount, rounded to
// two decimal places, and the resulting net amount.
func NewChargeBreakdown(amount decimal.Decimal) ChargeBreakdown {
	charge := amount.Mul(ChargeRate).Round(2)
	return ChargeBreakdown{
		Amount: amount,
		Charge: charge,
		Net:    amount.Sub(charge),
	}
}

// CapitalShareSplit decomposes a capital contribution into its locked-in 25%
// and transferable 75% portions. The two portions always sum to the amount.
func CapitalShareSplit(amount decimal.Decimal) (lockIn, transferable decimal.Decimal) {
	lockIn = amount.Mul(CapitalLockInRate).Round(2)
	transferable = amount.Sub(lockIn)
	return lockIn, transferable
}

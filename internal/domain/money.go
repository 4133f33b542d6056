package domain

import "github.com/shopspring/decimal"

// Total computes the cart total with exact decimal arithmetic: line totals
// are summed unrounded, the discount multiplier is applied to the sum, and
// the result is rounded half-up to 2 decimal places exactly once. Per-line
// rounding is deliberately absent; it accumulates drift across many small
// items.
func Total(items []CartItem, discount *Discount) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.LineTotal)
	}

	if discount != nil {
		sum = sum.Mul(decimal.NewFromInt(1).Sub(discount.Percentage))
	}

	// decimal.Round is half-away-from-zero, which for non-negative money
	// amounts is exactly half-up.
	return sum.Round(2)
}

// MinorUnits converts a rounded 2dp amount into integer minor units (cents)
// for the payment gateway wire format.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).IntPart()
}

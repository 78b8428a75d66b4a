// Package quote computes the chargeable amount for a service request.
// All math is done on decimals and rounded to cents exactly once, so the
// amount shown on the payment page is byte-identical to the amount charged.
package quote

import (
	"errors"

	"github.com/shopspring/decimal"

	"atelier/internal/domain"
)

var (
	ErrInvalidCost     = errors.New("estimated cost must be greater than zero")
	ErrInvalidDiscount = errors.New("discount percent must be between 0 and 50")
	ErrInvalidType     = errors.New("payment type must be split or full")
)

// Breakdown is the result of a quote computation.
type Breakdown struct {
	Amount         decimal.Decimal `json:"amount"`           // what gets charged now
	DiscountAmount decimal.Decimal `json:"discount_amount"`  // zero for split
	Remaining      decimal.Decimal `json:"remaining_balance"` // zero for full, due on completion for split
	PaymentType    string          `json:"payment_type"`
}

var hundred = decimal.NewFromInt(100)

// Calculate returns the charge breakdown for the given cost, admin discount and
// payment type. splitRatio is the upfront share for split payments (0.5 in
// every deployment so far). The split remainder is cost minus the rounded
// first leg, so the two legs always sum to the exact cost.
func Calculate(cost decimal.Decimal, discountPercent int, paymentType string, splitRatio decimal.Decimal) (Breakdown, error) {
	if cost.LessThanOrEqual(decimal.Zero) {
		return Breakdown{}, ErrInvalidCost
	}
	if discountPercent < 0 || discountPercent > 50 {
		return Breakdown{}, ErrInvalidDiscount
	}

	switch paymentType {
	case domain.PaymentTypeSplit:
		first := cost.Mul(splitRatio).Round(2)
		return Breakdown{
			Amount:         first,
			DiscountAmount: decimal.Zero.Round(2),
			Remaining:      cost.Sub(first).Round(2),
			PaymentType:    domain.PaymentTypeSplit,
		}, nil
	case domain.PaymentTypeFull:
		discount := cost.Mul(decimal.NewFromInt(int64(discountPercent))).Div(hundred).Round(2)
		return Breakdown{
			Amount:         cost.Sub(discount).Round(2),
			DiscountAmount: discount,
			Remaining:      decimal.Zero.Round(2),
			PaymentType:    domain.PaymentTypeFull,
		}, nil
	default:
		return Breakdown{}, ErrInvalidType
	}
}

// SecondLeg returns the amount due for the second installment of a split plan
// given the exact amount confirmed on the first leg.
func SecondLeg(cost, firstLeg decimal.Decimal) decimal.Decimal {
	return cost.Sub(firstLeg).Round(2)
}

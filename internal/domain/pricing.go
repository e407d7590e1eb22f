package domain

import (
	"github.com/shopspring/decimal"
)

// Marketplace fee rates. The buyer pays 2.5% on top of the base price; the
// worker gives up 12.5% of it.
var (
	buyerFeeRate         = decimal.RequireFromString("0.025")
	sellerCommissionRate = decimal.RequireFromString("0.125")
)

// MinimumPayoutThreshold is the smallest worker-net amount transferred on its
// own, in cents. Anything smaller accumulates until the running total crosses
// it.
const MinimumPayoutThreshold int64 = 1000

// Pricing is the fee breakdown for one engagement, in cents. Every figure is
// derived from the original cents value of the base price; nothing is
// accumulated in floating point.
type Pricing struct {
	Base             int64
	BuyerFee         int64
	SellerCommission int64
	TotalCharged     int64
	WorkerNet        int64
	PlatformTotal    int64
}

// ParseAmount converts a decimal string into cents. It rejects non-numeric
// input, non-positive values, and more than two decimal places.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return AmountToCents(d)
}

// AmountToCents validates a currency-unit amount and converts it to cents.
func AmountToCents(d decimal.Decimal) (int64, error) {
	if d.LessThanOrEqual(decimal.Zero) {
		return 0, ErrInvalidAmount
	}
	if !d.Equal(d.Truncate(2)) {
		return 0, ErrInvalidAmount
	}
	return d.Mul(decimal.NewFromInt(100)).IntPart(), nil
}

// ComputePricing computes the fee breakdown for a base price given in
// currency units.
func ComputePricing(base decimal.Decimal) (*Pricing, error) {
	cents, err := AmountToCents(base)
	if err != nil {
		return nil, err
	}
	return ComputePricingCents(cents)
}

// ComputePricingCents computes the fee breakdown from the stored cents
// representation of the base price. Rounding is banker's rounding at cent
// granularity.
func ComputePricingCents(baseCents int64) (*Pricing, error) {
	if baseCents <= 0 {
		return nil, ErrInvalidAmount
	}
	base := decimal.NewFromInt(baseCents)
	buyerFee := base.Mul(buyerFeeRate).RoundBank(0).IntPart()
	commission := base.Mul(sellerCommissionRate).RoundBank(0).IntPart()

	return &Pricing{
		Base:             baseCents,
		BuyerFee:         buyerFee,
		SellerCommission: commission,
		TotalCharged:     baseCents + buyerFee,
		WorkerNet:        baseCents - commission,
		PlatformTotal:    buyerFee + commission,
	}, nil
}

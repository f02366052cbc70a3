package plan

import (
	"errors"
	"math/big"
)

// DiscountUnit is one whole unit of the ledger's native currency expressed in
// base denominations. The middle discount tier requires the per-item amount to
// reach at least one unit.
var DiscountUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

const (
	smallOrderDiscountBps = 500
	bulkOrderDiscountBps  = 1000
	clearanceDiscountBps  = 1500
	bpsDenominator        = 10_000
)

// ErrInvalidDiscountInput marks discount queries with a missing or negative
// amount.
var ErrInvalidDiscountInput = errors.New("plan: discount amount must be non-negative")

// CalculateDiscount prices an order of quantity items at the given per-item
// amount. Tiers are mutually exclusive and checked in order: fewer than ten
// items earn 5%; up to fifty items earn 10% provided the per-item amount is at
// least one whole unit; everything else earns 15%. The function is pure.
func CalculateDiscount(amount *big.Int, quantity uint64) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidDiscountInput
	}
	var rateBps int64
	switch {
	case quantity < 10:
		rateBps = smallOrderDiscountBps
	case quantity <= 50 && amount.Cmp(DiscountUnit) >= 0:
		rateBps = bulkOrderDiscountBps
	default:
		rateBps = clearanceDiscountBps
	}
	total := new(big.Int).Mul(amount, new(big.Int).SetUint64(quantity))
	net := new(big.Int).Mul(total, big.NewInt(bpsDenominator-rateBps))
	return net.Div(net, big.NewInt(bpsDenominator)), nil
}

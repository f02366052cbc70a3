package plan

import (
	"errors"
	"math/big"
	"testing"
)

// unit scales an amount expressed in tenths of a unit into base
// denominations, so unit(95) is 9.5 whole units.
func unit(tenths int64) *big.Int {
	scaled := new(big.Int).Mul(DiscountUnit, big.NewInt(tenths))
	return scaled.Div(scaled, big.NewInt(10))
}

func TestCalculateDiscountTiers(t *testing.T) {
	cases := []struct {
		name     string
		amount   *big.Int
		quantity uint64
		want     *big.Int
	}{
		{"five percent under ten items", unit(20), 5, unit(95)},
		{"ten percent up to fifty items at one unit", unit(20), 20, unit(360)},
		{"fifteen percent above fifty items", unit(5), 100, unit(425)},
		{"small amount under fifty items falls through to fifteen percent", unit(5), 20, unit(85)},
		{"boundary at ten items with one unit", unit(10), 10, unit(90)},
		{"boundary at fifty items", unit(10), 50, unit(450)},
		{"fifty-two items", unit(10), 52, unit(442)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CalculateDiscount(tc.amount, tc.quantity)
			if err != nil {
				t.Fatalf("calculate discount: %v", err)
			}
			if got.Cmp(tc.want) != 0 {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCalculateDiscountRejectsInvalidAmount(t *testing.T) {
	if _, err := CalculateDiscount(nil, 5); !errors.Is(err, ErrInvalidDiscountInput) {
		t.Fatalf("nil amount: got %v", err)
	}
	if _, err := CalculateDiscount(big.NewInt(-1), 5); !errors.Is(err, ErrInvalidDiscountInput) {
		t.Fatalf("negative amount: got %v", err)
	}
}

func TestCalculateDiscountIsPure(t *testing.T) {
	amount := unit(20)
	before := new(big.Int).Set(amount)
	if _, err := CalculateDiscount(amount, 5); err != nil {
		t.Fatalf("calculate discount: %v", err)
	}
	if amount.Cmp(before) != 0 {
		t.Fatal("input amount mutated")
	}
}

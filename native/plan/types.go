package plan

import (
	"encoding/hex"
	"math/big"
)

// Plan captures the sale unit: pricing, capacity, lifecycle state and the
// pull-payment escrow ledger. The linked token collection lives in the token
// ledger under the same address and is fixed at creation.
type Plan struct {
	Address           [20]byte            `json:"address"`
	Retailer          string              `json:"retailer"`
	Price             *big.Int            `json:"price"`
	DurationDays      uint64              `json:"durationDays"`
	CapacityTotal     uint64              `json:"capacityTotal"`
	CapacityAvailable uint64              `json:"capacityAvailable"`
	Description       string              `json:"description"`
	MetadataURI       string              `json:"metadataURI"`
	Cancelled         bool                `json:"cancelled"`
	Owner             [20]byte            `json:"owner"`
	Escrow            map[string]*big.Int `json:"escrow"`
	CreatedAt         int64               `json:"createdAt"`
}

// Sold returns the number of entitlements sold so far.
func (p *Plan) Sold() uint64 {
	if p == nil {
		return 0
	}
	return p.CapacityTotal - p.CapacityAvailable
}

// EscrowOf returns the amount currently owed to addr, zero when nothing is.
func (p *Plan) EscrowOf(addr [20]byte) *big.Int {
	if p == nil || p.Escrow == nil {
		return big.NewInt(0)
	}
	owed, ok := p.Escrow[escrowKey(addr)]
	if !ok || owed == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(owed)
}

// Clone returns a deep copy of the plan so callers can safely mutate the copy
// without affecting the stored instance.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Price != nil {
		clone.Price = new(big.Int).Set(p.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	clone.Escrow = make(map[string]*big.Int, len(p.Escrow))
	for addr, owed := range p.Escrow {
		if owed == nil {
			owed = big.NewInt(0)
		}
		clone.Escrow[addr] = new(big.Int).Set(owed)
	}
	return &clone
}

func (p *Plan) ensureDefaults() *Plan {
	if p.Price == nil {
		p.Price = big.NewInt(0)
	}
	if p.Escrow == nil {
		p.Escrow = make(map[string]*big.Int)
	}
	return p
}

func escrowKey(addr [20]byte) string {
	return hex.EncodeToString(addr[:])
}

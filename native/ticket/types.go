package ticket

import (
	"encoding/hex"
	"math/big"
)

// Event is the self-contained one-off sale: pricing, simple sold counting and
// the same pull-payment escrow as a subscription plan, without a separate
// token collection. Ticket identity is a locally issued counter.
type Event struct {
	Address       [20]byte            `json:"address"`
	Name          string              `json:"name"`
	Price         *big.Int            `json:"price"`
	CapacityTotal uint64              `json:"capacityTotal"`
	Sold          uint64              `json:"sold"`
	Description   string              `json:"description"`
	ImageURI      string              `json:"imageURI"`
	Cancelled     bool                `json:"cancelled"`
	Owner         [20]byte            `json:"owner"`
	NextTicketID  uint64              `json:"nextTicketId"`
	Escrow        map[string]*big.Int `json:"escrow"`
	CreatedAt     int64               `json:"createdAt"`
}

// CapacityAvailable returns the number of tickets still on sale.
func (e *Event) CapacityAvailable() uint64 {
	if e == nil {
		return 0
	}
	return e.CapacityTotal - e.Sold
}

// EscrowOf returns the amount currently owed to addr, zero when nothing is.
func (e *Event) EscrowOf(addr [20]byte) *big.Int {
	if e == nil || e.Escrow == nil {
		return big.NewInt(0)
	}
	owed, ok := e.Escrow[escrowKey(addr)]
	if !ok || owed == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(owed)
}

// Clone returns a deep copy of the event record.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Price != nil {
		clone.Price = new(big.Int).Set(e.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	clone.Escrow = make(map[string]*big.Int, len(e.Escrow))
	for addr, owed := range e.Escrow {
		if owed == nil {
			owed = big.NewInt(0)
		}
		clone.Escrow[addr] = new(big.Int).Set(owed)
	}
	return &clone
}

func (e *Event) ensureDefaults() *Event {
	if e.Price == nil {
		e.Price = big.NewInt(0)
	}
	if e.Escrow == nil {
		e.Escrow = make(map[string]*big.Int)
	}
	return e
}

// Ticket records a single purchase so refunds can verify the original buyer
// and reject double credits.
type Ticket struct {
	ID       uint64   `json:"id"`
	Buyer    [20]byte `json:"buyer"`
	Price    *big.Int `json:"price"`
	Refunded bool     `json:"refunded"`
	BoughtAt int64    `json:"boughtAt"`
}

func escrowKey(addr [20]byte) string {
	return hex.EncodeToString(addr[:])
}

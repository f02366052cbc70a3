package plan

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"planchain/core/types"
)

const (
	EventTypePurchased       = "plan.purchased"
	EventTypeCancelled       = "plan.cancelled"
	EventTypeRefundRequested = "plan.refund_requested"
	EventTypeWithdrawn       = "plan.withdrawn"
)

type planEvent struct {
	evt *types.Event
}

func (e *planEvent) EventType() string {
	if e == nil || e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e *planEvent) Event() *types.Event { return e.evt }

func newPlanEvent(eventType string, p *Plan, extra map[string]string) *planEvent {
	attrs := make(map[string]string, len(extra)+1)
	if p != nil {
		attrs["plan"] = hex.EncodeToString(p.Address[:])
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return &planEvent{evt: &types.Event{Type: eventType, Attributes: attrs}}
}

func newPurchasedEvent(p *Plan, buyer, recipient [20]byte, tokenID uint64) *planEvent {
	return newPlanEvent(EventTypePurchased, p, map[string]string{
		"buyer":     hex.EncodeToString(buyer[:]),
		"recipient": hex.EncodeToString(recipient[:]),
		"tokenId":   strconv.FormatUint(tokenID, 10),
	})
}

func newCancelledEvent(p *Plan) *planEvent {
	return newPlanEvent(EventTypeCancelled, p, nil)
}

func newRefundRequestedEvent(p *Plan, caller [20]byte, tokenID uint64) *planEvent {
	return newPlanEvent(EventTypeRefundRequested, p, map[string]string{
		"buyer":   hex.EncodeToString(caller[:]),
		"tokenId": strconv.FormatUint(tokenID, 10),
	})
}

func newWithdrawnEvent(p *Plan, caller [20]byte, amount *big.Int) *planEvent {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return newPlanEvent(EventTypeWithdrawn, p, map[string]string{
		"who":    hex.EncodeToString(caller[:]),
		"amount": amount.String(),
	})
}

package ticket

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"planchain/core/types"
)

const (
	EventTypeCreated         = "ticket.event_created"
	EventTypePurchased       = "ticket.purchased"
	EventTypeCancelled       = "ticket.cancelled"
	EventTypeRefundRequested = "ticket.refund_requested"
	EventTypeWithdrawn       = "ticket.withdrawn"
)

type ticketEvent struct {
	evt *types.Event
}

func (e *ticketEvent) EventType() string {
	if e == nil || e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e *ticketEvent) Event() *types.Event { return e.evt }

func newEvent(eventType string, evt *Event, extra map[string]string) *ticketEvent {
	attrs := make(map[string]string, len(extra)+1)
	if evt != nil {
		attrs["event"] = hex.EncodeToString(evt.Address[:])
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return &ticketEvent{evt: &types.Event{Type: eventType, Attributes: attrs}}
}

func newCreatedEvent(evt *Event) *ticketEvent {
	return newEvent(EventTypeCreated, evt, map[string]string{
		"name":  evt.Name,
		"owner": hex.EncodeToString(evt.Owner[:]),
	})
}

func newPurchasedEvent(evt *Event, buyer [20]byte, ticketID uint64) *ticketEvent {
	return newEvent(EventTypePurchased, evt, map[string]string{
		"buyer":    hex.EncodeToString(buyer[:]),
		"ticketId": strconv.FormatUint(ticketID, 10),
	})
}

func newCancelledEvent(evt *Event) *ticketEvent {
	return newEvent(EventTypeCancelled, evt, nil)
}

func newRefundRequestedEvent(evt *Event, buyer [20]byte, ticketID uint64) *ticketEvent {
	return newEvent(EventTypeRefundRequested, evt, map[string]string{
		"buyer":    hex.EncodeToString(buyer[:]),
		"ticketId": strconv.FormatUint(ticketID, 10),
	})
}

func newWithdrawnEvent(evt *Event, who [20]byte, amount *big.Int) *ticketEvent {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return newEvent(EventTypeWithdrawn, evt, map[string]string{
		"who":    hex.EncodeToString(who[:]),
		"amount": amount.String(),
	})
}

package token

import (
	"encoding/hex"
	"strconv"

	"planchain/core/types"
)

// EventTypeTransfer covers mints (zero from address) and reclaims alike,
// mirroring the transfer record a token contract would log.
const EventTypeTransfer = "token.transfer"

type tokenEvent struct {
	evt *types.Event
}

func (e *tokenEvent) EventType() string {
	if e == nil || e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e *tokenEvent) Event() *types.Event { return e.evt }

func newTransferEvent(plan, from, to [20]byte, tokenID uint64) *tokenEvent {
	attrs := map[string]string{
		"plan":    hex.EncodeToString(plan[:]),
		"to":      hex.EncodeToString(to[:]),
		"tokenId": strconv.FormatUint(tokenID, 10),
	}
	if from != ([20]byte{}) {
		attrs["from"] = hex.EncodeToString(from[:])
	}
	return &tokenEvent{evt: &types.Event{Type: EventTypeTransfer, Attributes: attrs}}
}

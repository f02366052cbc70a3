package registry

import (
	"encoding/hex"
	"strconv"

	"planchain/core/types"
)

const EventTypePlanCreated = "registry.plan_created"

type registryEvent struct {
	evt *types.Event
}

func (e *registryEvent) EventType() string {
	if e == nil || e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e *registryEvent) Event() *types.Event { return e.evt }

func newPlanCreatedEvent(ref *PlanRef) *registryEvent {
	attrs := make(map[string]string, 2)
	if ref != nil {
		attrs["id"] = strconv.FormatUint(ref.ID, 10)
		attrs["address"] = hex.EncodeToString(ref.Address[:])
	}
	return &registryEvent{evt: &types.Event{Type: EventTypePlanCreated, Attributes: attrs}}
}

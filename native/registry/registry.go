package registry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"planchain/core/events"
	"planchain/core/types"
	"planchain/native/common"
	"planchain/native/plan"
)

// PauseModule is the name the registry answers to in the pause view.
const PauseModule = "registry"

var (
	// ErrUnauthorized marks creation attempts by anyone but the registry owner.
	ErrUnauthorized = errors.New("registry: caller is not the registry owner")
	// ErrNotInitialised marks use of a registry with no owner configured.
	ErrNotInitialised = errors.New("registry: owner not initialised")

	errNilState = errors.New("registry engine: state not configured")
)

var (
	ownerStateKey  = []byte("registry/owner")
	nextIDStateKey = []byte("registry/next")
)

func planIDKey(id uint64) []byte {
	return []byte(fmt.Sprintf("registry/plan/%d", id))
}

// PlanRef pairs a registry identifier with the plan address it resolves to.
type PlanRef struct {
	ID      uint64   `json:"id"`
	Address [20]byte `json:"address"`
}

// engineState is the subset of state manager functionality the registry needs.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Engine is the factory and directory for subscription plans. It validates
// inputs, derives a deterministic address per plan, delegates the deployment
// to the plan engine and keeps the ordered id → address directory.
type Engine struct {
	state   engineState
	plans   *plan.Engine
	emitter events.Emitter
	pauses  common.PauseView
}

// NewEngine creates a registry engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPlanEngine configures the plan engine deployments are delegated to.
func (e *Engine) SetPlanEngine(plans *plan.Engine) { e.plans = plans }

// SetPauses configures the pause view consulted before mutating operations.
func (e *Engine) SetPauses(pauses common.PauseView) { e.pauses = pauses }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// InitOwner stores the registry owner on first boot. Re-initialising with the
// same owner is a no-op; changing the owner is rejected.
func (e *Engine) InitOwner(owner [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	var existing [20]byte
	ok, err := e.state.KVGet(ownerStateKey, &existing)
	if err != nil {
		return err
	}
	if ok {
		if existing != owner {
			return fmt.Errorf("registry: owner already initialised")
		}
		return nil
	}
	return e.state.KVPut(ownerStateKey, owner)
}

// Owner returns the configured registry owner.
func (e *Engine) Owner() ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, errNilState
	}
	var owner [20]byte
	ok, err := e.state.KVGet(ownerStateKey, &owner)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, ErrNotInitialised
	}
	return owner, nil
}

func (e *Engine) nextID() (uint64, error) {
	var next uint64
	ok, err := e.state.KVGet(nextIDStateKey, &next)
	if err != nil {
		return 0, err
	}
	if !ok {
		next = 1
	}
	return next, nil
}

// deriveAddress computes the deterministic plan address for the id, the way a
// factory deployment would. Identifiers are never reused, so neither are
// addresses.
func deriveAddress(owner [20]byte, id uint64) [20]byte {
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], id)
	digest := ethcrypto.Keccak256(owner[:], nonce[:])
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

// CreateSubscriptionPlan validates the definition, deploys a plan with its
// token collection, assigns the next sequential id and records the address.
// Only the registry owner may create plans.
func (e *Engine) CreateSubscriptionPlan(caller [20]byte, retailer string, price *big.Int, durationDays, capacity uint64, description, metadataURI string) (*PlanRef, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.plans == nil {
		return nil, errors.New("registry engine: plan engine not configured")
	}
	if err := common.Guard(e.pauses, PauseModule); err != nil {
		return nil, err
	}
	owner, err := e.Owner()
	if err != nil {
		return nil, err
	}
	if caller != owner {
		return nil, ErrUnauthorized
	}
	id, err := e.nextID()
	if err != nil {
		return nil, err
	}
	addr := deriveAddress(owner, id)
	if _, err := e.plans.Create(addr, owner, retailer, price, durationDays, capacity, description, metadataURI); err != nil {
		return nil, err
	}
	if err := e.state.KVPut(planIDKey(id), addr); err != nil {
		return nil, err
	}
	if err := e.state.KVPut(nextIDStateKey, id+1); err != nil {
		return nil, err
	}
	ref := &PlanRef{ID: id, Address: addr}
	e.emit(newPlanCreatedEvent(ref))
	return ref, nil
}

// GetPlan resolves a registry id to its plan address. Absent ids return the
// zero address sentinel rather than an error.
func (e *Engine) GetPlan(id uint64) ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, errNilState
	}
	var addr [20]byte
	ok, err := e.state.KVGet(planIDKey(id), &addr)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, nil
	}
	return addr, nil
}

// Plans returns every registered plan in creation order.
func (e *Engine) Plans() ([]PlanRef, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	next, err := e.nextID()
	if err != nil {
		return nil, err
	}
	refs := make([]PlanRef, 0, next-1)
	for id := uint64(1); id < next; id++ {
		addr, err := e.GetPlan(id)
		if err != nil {
			return nil, err
		}
		if addr == ([20]byte{}) {
			continue
		}
		refs = append(refs, PlanRef{ID: id, Address: addr})
	}
	return refs, nil
}

func (e *Engine) emit(evt *registryEvent) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

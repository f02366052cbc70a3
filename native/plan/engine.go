package plan

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"planchain/core/events"
	"planchain/core/types"
	"planchain/native/common"
	"planchain/native/token"
)

// PauseModule is the name the plan engine answers to in the pause view.
const PauseModule = "plan"

var (
	// ErrUnauthorized marks privileged calls from anyone but the plan owner.
	ErrUnauthorized = errors.New("plan: caller is not the plan owner")
	// ErrInvalidInput marks plan definitions with an empty retailer, a zero
	// price or an empty metadata URI.
	ErrInvalidInput = errors.New("plan: invalid plan definition")
	// ErrPlanNotFound marks operations against an unknown plan address.
	ErrPlanNotFound = errors.New("plan: plan not found")
	// ErrPlanCancelled marks purchases against a cancelled plan.
	ErrPlanCancelled = errors.New("plan: plan cancelled")
	// ErrSoldOut marks purchases once capacity is exhausted.
	ErrSoldOut = errors.New("plan: no entitlements available")
	// ErrIncorrectPayment marks purchases whose attached value differs from
	// the plan price. Partial and overpayment are both rejected.
	ErrIncorrectPayment = errors.New("plan: attached value must equal the plan price")
	// ErrNotCancelled marks refund requests while the plan is still active.
	ErrNotCancelled = errors.New("plan: plan is not cancelled")
	// ErrNotTokenOwner marks refund requests for tokens the caller does not
	// currently hold.
	ErrNotTokenOwner = errors.New("plan: caller does not own the token")
	// ErrNothingToWithdraw marks withdrawals with a zero escrow balance.
	ErrNothingToWithdraw = errors.New("plan: no funds to withdraw")
	// ErrInsufficientFunds marks purchases the buyer cannot cover.
	ErrInsufficientFunds = errors.New("plan: insufficient buyer balance")

	errNilState = errors.New("plan engine: state not configured")
)

// engineState is the subset of state manager functionality the engine needs.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

func planKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("plan/%x", addr))
}

// Engine wires the plan business logic with external state and event
// emitters. Token issuance and reclaim are delegated to the token ledger
// sharing the same state.
type Engine struct {
	state   engineState
	emitter events.Emitter
	pauses  common.PauseView
	nowFn   func() int64
}

// NewEngine creates a plan engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

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

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *planEvent) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ledger() *token.Ledger {
	ledger := token.NewLedger(e.state)
	ledger.SetEmitter(e.emitter)
	return ledger
}

func (e *Engine) loadPlan(addr [20]byte) (*Plan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	stored := new(Plan)
	ok, err := e.state.KVGet(planKey(addr), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPlanNotFound
	}
	return stored.ensureDefaults(), nil
}

func (e *Engine) storePlan(p *Plan) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.KVPut(planKey(p.Address), p)
}

// Create validates and persists a new plan at the supplied address and
// registers its token collection. Callers are expected to be the registry;
// the engine only validates the definition.
func (e *Engine) Create(addr, owner [20]byte, retailer string, price *big.Int, durationDays, capacity uint64, description, metadataURI string) (*Plan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if strings.TrimSpace(retailer) == "" {
		return nil, fmt.Errorf("%w: retailer name cannot be empty", ErrInvalidInput)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: price cannot be zero", ErrInvalidInput)
	}
	if strings.TrimSpace(metadataURI) == "" {
		return nil, fmt.Errorf("%w: metadata URI cannot be empty", ErrInvalidInput)
	}
	if _, err := e.loadPlan(addr); err == nil {
		return nil, fmt.Errorf("%w: address already in use", ErrInvalidInput)
	} else if !errors.Is(err, ErrPlanNotFound) {
		return nil, err
	}
	p := (&Plan{
		Address:           addr,
		Retailer:          retailer,
		Price:             new(big.Int).Set(price),
		DurationDays:      durationDays,
		CapacityTotal:     capacity,
		CapacityAvailable: capacity,
		Description:       description,
		MetadataURI:       metadataURI,
		Owner:             owner,
		CreatedAt:         e.now(),
	}).ensureDefaults()
	if err := e.ledger().CreateCollection(addr, retailer, "PLAN", metadataURI); err != nil {
		return nil, err
	}
	if err := e.storePlan(p); err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// Get returns a copy of the stored plan.
func (e *Engine) Get(addr [20]byte) (*Plan, error) {
	p, err := e.loadPlan(addr)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// Purchase sells one entitlement for exactly the plan price. The buyer's
// account is debited, the plan vault credited, capacity decremented and a
// fresh token minted to the recipient. A zero recipient defaults to the buyer.
func (e *Engine) Purchase(addr, buyer, recipient [20]byte, value *big.Int) (uint64, error) {
	if err := common.Guard(e.pauses, PauseModule); err != nil {
		return 0, err
	}
	p, err := e.loadPlan(addr)
	if err != nil {
		return 0, err
	}
	if p.Cancelled {
		return 0, ErrPlanCancelled
	}
	if p.CapacityAvailable == 0 {
		return 0, ErrSoldOut
	}
	if value == nil || value.Cmp(p.Price) != 0 {
		return 0, ErrIncorrectPayment
	}
	if recipient == ([20]byte{}) {
		recipient = buyer
	}
	if err := e.moveValue(buyer, addr, value); err != nil {
		return 0, err
	}
	p.CapacityAvailable--
	tokenID, err := e.ledger().Mint(addr, addr, recipient)
	if err != nil {
		return 0, err
	}
	if err := e.storePlan(p); err != nil {
		return 0, err
	}
	e.emit(newPurchasedEvent(p, buyer, recipient, tokenID))
	return tokenID, nil
}

// Cancel flips the plan into its terminal cancelled state. Only the owner may
// cancel. Cancelling an already-cancelled plan is an idempotent no-op.
func (e *Engine) Cancel(addr, caller [20]byte) error {
	if err := common.Guard(e.pauses, PauseModule); err != nil {
		return err
	}
	p, err := e.loadPlan(addr)
	if err != nil {
		return err
	}
	if caller != p.Owner {
		return ErrUnauthorized
	}
	if p.Cancelled {
		return nil
	}
	p.Cancelled = true
	if err := e.storePlan(p); err != nil {
		return err
	}
	e.emit(newCancelledEvent(p))
	return nil
}

// RequestRefund records the purchase price as owed to the caller and reclaims
// the token back to the plan owner. The step only books the debt and moves
// the token; no value leaves the vault until the caller withdraws.
func (e *Engine) RequestRefund(addr, caller [20]byte, tokenID uint64) error {
	if err := common.Guard(e.pauses, PauseModule); err != nil {
		return err
	}
	p, err := e.loadPlan(addr)
	if err != nil {
		return err
	}
	if !p.Cancelled {
		return ErrNotCancelled
	}
	owner, err := e.ledger().OwnerOf(addr, tokenID)
	if err != nil {
		return err
	}
	if owner != caller {
		return ErrNotTokenOwner
	}
	key := escrowKey(caller)
	owed := p.Escrow[key]
	if owed == nil {
		owed = big.NewInt(0)
	}
	p.Escrow[key] = new(big.Int).Add(owed, p.Price)
	if err := e.ledger().Reclaim(addr, addr, caller, p.Owner, tokenID); err != nil {
		return err
	}
	if err := e.storePlan(p); err != nil {
		return err
	}
	e.emit(newRefundRequestedEvent(p, caller, tokenID))
	return nil
}

// Withdraw pays out the caller's entire escrow balance. The balance is zeroed
// before the value transfer so a reentrant caller observes an empty escrow;
// if the transfer fails the enclosing transition is discarded and the escrow
// entry survives untouched.
func (e *Engine) Withdraw(addr, caller [20]byte) (*big.Int, error) {
	if err := common.Guard(e.pauses, PauseModule); err != nil {
		return nil, err
	}
	p, err := e.loadPlan(addr)
	if err != nil {
		return nil, err
	}
	key := escrowKey(caller)
	amount := p.Escrow[key]
	if amount == nil || amount.Sign() == 0 {
		return nil, ErrNothingToWithdraw
	}
	amount = new(big.Int).Set(amount)
	delete(p.Escrow, key)
	if err := e.storePlan(p); err != nil {
		return nil, err
	}
	if err := e.moveValue(addr, caller, amount); err != nil {
		return nil, err
	}
	e.emit(newWithdrawnEvent(p, caller, amount))
	return amount, nil
}

// ForceReclaim lets the plan owner drive the token ledger's reclaim path
// directly for administrative correction. It enforces the same ownership
// precondition as RequestRefund but books no escrow debt.
func (e *Engine) ForceReclaim(addr, caller, from, to [20]byte, tokenID uint64) error {
	if err := common.Guard(e.pauses, PauseModule); err != nil {
		return err
	}
	p, err := e.loadPlan(addr)
	if err != nil {
		return err
	}
	if caller != p.Owner {
		return ErrUnauthorized
	}
	owner, err := e.ledger().OwnerOf(addr, tokenID)
	if err != nil {
		return err
	}
	if owner != from {
		return ErrNotTokenOwner
	}
	return e.ledger().Reclaim(addr, addr, from, to, tokenID)
}

func (e *Engine) moveValue(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("plan: negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

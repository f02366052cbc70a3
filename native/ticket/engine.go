package ticket

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"planchain/core/events"
	"planchain/core/types"
	"planchain/native/common"
)

// PauseModule is the name the ticket engine answers to in the pause view.
const PauseModule = "ticket"

var (
	// ErrUnauthorized marks privileged calls from anyone but the event owner.
	ErrUnauthorized = errors.New("ticket: caller is not the event owner")
	// ErrInvalidInput marks event definitions with missing fields.
	ErrInvalidInput = errors.New("ticket: invalid event definition")
	// ErrEventNotFound marks operations against an unknown event address.
	ErrEventNotFound = errors.New("ticket: event not found")
	// ErrEventCancelled marks purchases against a cancelled event.
	ErrEventCancelled = errors.New("ticket: event cancelled")
	// ErrSoldOut marks purchases once every ticket is sold.
	ErrSoldOut = errors.New("ticket: no tickets available")
	// ErrIncorrectPayment marks purchases whose attached value differs from
	// the ticket price.
	ErrIncorrectPayment = errors.New("ticket: attached value must equal the ticket price")
	// ErrNotCancelled marks refund requests while the event is still on.
	ErrNotCancelled = errors.New("ticket: event is not cancelled")
	// ErrNotTicketBuyer marks refund requests by anyone but the original buyer.
	ErrNotTicketBuyer = errors.New("ticket: caller is not the ticket buyer")
	// ErrTicketNotFound marks refunds of tickets that were never issued.
	ErrTicketNotFound = errors.New("ticket: ticket not found")
	// ErrTicketRefunded marks repeat refunds of the same ticket.
	ErrTicketRefunded = errors.New("ticket: ticket already refunded")
	// ErrNothingToWithdraw marks withdrawals with a zero escrow balance.
	ErrNothingToWithdraw = errors.New("ticket: no funds to withdraw")
	// ErrInsufficientFunds marks purchases the buyer cannot cover.
	ErrInsufficientFunds = errors.New("ticket: insufficient buyer balance")

	errNilState = errors.New("ticket engine: state not configured")
)

var nextEventStateKey = []byte("ticket/next")

func eventKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("ticket/event/%x", addr))
}

func eventIndexKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("ticket/id/%d", seq))
}

func ticketKey(addr [20]byte, ticketID uint64) []byte {
	return []byte(fmt.Sprintf("ticket/event/%x/ticket/%d", addr, ticketID))
}

// engineState is the subset of state manager functionality the engine needs.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Engine hosts one-off events: fixed-capacity sales with the same
// cancel/refund/withdraw custody rules as plans, collapsed into a single
// component with counter-based ticket identity.
type Engine struct {
	state   engineState
	emitter events.Emitter
	pauses  common.PauseView
	nowFn   func() int64
}

// NewEngine creates a ticket engine with a no-op emitter.
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

func (e *Engine) emit(evt *ticketEvent) {
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

func (e *Engine) loadEvent(addr [20]byte) (*Event, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	stored := new(Event)
	ok, err := e.state.KVGet(eventKey(addr), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEventNotFound
	}
	return stored.ensureDefaults(), nil
}

func (e *Engine) storeEvent(evt *Event) error {
	return e.state.KVPut(eventKey(evt.Address), evt)
}

// CreateEvent validates and persists a new one-off sale owned by the caller.
func (e *Engine) CreateEvent(owner [20]byte, name string, price *big.Int, capacity uint64, description, imageURI string) (*Event, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, PauseModule); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: event name cannot be empty", ErrInvalidInput)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: price cannot be zero", ErrInvalidInput)
	}
	if capacity == 0 {
		return nil, fmt.Errorf("%w: capacity cannot be zero", ErrInvalidInput)
	}
	var seq uint64
	ok, err := e.state.KVGet(nextEventStateKey, &seq)
	if err != nil {
		return nil, err
	}
	if !ok {
		seq = 1
	}
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], seq)
	digest := ethcrypto.Keccak256([]byte("ticket"), owner[:], nonce[:])
	var addr [20]byte
	copy(addr[:], digest[12:])

	evt := (&Event{
		Address:       addr,
		Name:          name,
		Price:         new(big.Int).Set(price),
		CapacityTotal: capacity,
		Description:   description,
		ImageURI:      imageURI,
		Owner:         owner,
		NextTicketID:  1,
		CreatedAt:     e.now(),
	}).ensureDefaults()
	if err := e.storeEvent(evt); err != nil {
		return nil, err
	}
	if err := e.state.KVPut(eventIndexKey(seq), addr); err != nil {
		return nil, err
	}
	if err := e.state.KVPut(nextEventStateKey, seq+1); err != nil {
		return nil, err
	}
	e.emit(newCreatedEvent(evt))
	return evt.Clone(), nil
}

// Get returns a copy of the stored event.
func (e *Engine) Get(addr [20]byte) (*Event, error) {
	evt, err := e.loadEvent(addr)
	if err != nil {
		return nil, err
	}
	return evt.Clone(), nil
}

// Events returns every hosted event in creation order.
func (e *Engine) Events() ([]*Event, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var next uint64
	ok, err := e.state.KVGet(nextEventStateKey, &next)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	out := make([]*Event, 0, next-1)
	for seq := uint64(1); seq < next; seq++ {
		var addr [20]byte
		ok, err := e.state.KVGet(eventIndexKey(seq), &addr)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		evt, err := e.Get(addr)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, nil
}

// Purchase sells one ticket for exactly the event price, debiting the buyer,
// crediting the event vault and issuing the next local ticket id.
func (e *Engine) Purchase(addr, buyer [20]byte, value *big.Int) (uint64, error) {
	if err := common.Guard(e.pauses, PauseModule); err != nil {
		return 0, err
	}
	evt, err := e.loadEvent(addr)
	if err != nil {
		return 0, err
	}
	if evt.Cancelled {
		return 0, ErrEventCancelled
	}
	if evt.Sold == evt.CapacityTotal {
		return 0, ErrSoldOut
	}
	if value == nil || value.Cmp(evt.Price) != 0 {
		return 0, ErrIncorrectPayment
	}
	if err := e.moveValue(buyer, addr, value); err != nil {
		return 0, err
	}
	ticketID := evt.NextTicketID
	evt.NextTicketID++
	evt.Sold++
	record := &Ticket{
		ID:       ticketID,
		Buyer:    buyer,
		Price:    new(big.Int).Set(evt.Price),
		BoughtAt: e.now(),
	}
	if err := e.state.KVPut(ticketKey(addr, ticketID), record); err != nil {
		return 0, err
	}
	if err := e.storeEvent(evt); err != nil {
		return 0, err
	}
	e.emit(newPurchasedEvent(evt, buyer, ticketID))
	return ticketID, nil
}

// Cancel flips the event into its terminal cancelled state. Only the owner
// may cancel; repeating the call is an idempotent no-op.
func (e *Engine) Cancel(addr, caller [20]byte) error {
	if err := common.Guard(e.pauses, PauseModule); err != nil {
		return err
	}
	evt, err := e.loadEvent(addr)
	if err != nil {
		return err
	}
	if caller != evt.Owner {
		return ErrUnauthorized
	}
	if evt.Cancelled {
		return nil
	}
	evt.Cancelled = true
	if err := e.storeEvent(evt); err != nil {
		return err
	}
	e.emit(newCancelledEvent(evt))
	return nil
}

// Refund books the ticket price as owed to the original buyer. Allowed only
// after cancellation, only once per ticket, and only by whoever bought it.
// No value moves until the buyer withdraws.
func (e *Engine) Refund(addr, caller [20]byte, ticketID uint64) error {
	if err := common.Guard(e.pauses, PauseModule); err != nil {
		return err
	}
	evt, err := e.loadEvent(addr)
	if err != nil {
		return err
	}
	if !evt.Cancelled {
		return ErrNotCancelled
	}
	record := new(Ticket)
	ok, err := e.state.KVGet(ticketKey(addr, ticketID), record)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTicketNotFound
	}
	if record.Buyer != caller {
		return ErrNotTicketBuyer
	}
	if record.Refunded {
		return ErrTicketRefunded
	}
	record.Refunded = true
	if err := e.state.KVPut(ticketKey(addr, ticketID), record); err != nil {
		return err
	}
	key := escrowKey(caller)
	owed := evt.Escrow[key]
	if owed == nil {
		owed = big.NewInt(0)
	}
	evt.Escrow[key] = new(big.Int).Add(owed, record.Price)
	if err := e.storeEvent(evt); err != nil {
		return err
	}
	e.emit(newRefundRequestedEvent(evt, caller, ticketID))
	return nil
}

// Withdraw pays out the caller's entire escrow balance, zeroing the entry
// before the value transfer. A failed transfer aborts the enclosing
// transition and leaves the escrow untouched.
func (e *Engine) Withdraw(addr, caller [20]byte) (*big.Int, error) {
	if err := common.Guard(e.pauses, PauseModule); err != nil {
		return nil, err
	}
	evt, err := e.loadEvent(addr)
	if err != nil {
		return nil, err
	}
	key := escrowKey(caller)
	amount := evt.Escrow[key]
	if amount == nil || amount.Sign() == 0 {
		return nil, ErrNothingToWithdraw
	}
	amount = new(big.Int).Set(amount)
	delete(evt.Escrow, key)
	if err := e.storeEvent(evt); err != nil {
		return nil, err
	}
	if err := e.moveValue(addr, caller, amount); err != nil {
		return nil, err
	}
	e.emit(newWithdrawnEvent(evt, caller, amount))
	return amount, nil
}

func (e *Engine) moveValue(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ticket: negative transfer amount")
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

package ticket

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"planchain/core/types"
)

type mockState struct {
	kv       map[string][]byte
	accounts map[string]*types.Account
}

func newMockState() *mockState {
	return &mockState{
		kv:       make(map[string][]byte),
		accounts: make(map[string]*types.Account),
	}
}

func (m *mockState) KVGet(key []byte, out interface{}) (bool, error) {
	raw, ok := m.kv[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (m *mockState) KVPut(key []byte, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.kv[string(key)] = raw
	return nil
}

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	account, ok := m.accounts[string(addr)]
	if !ok {
		return (&types.Account{}).EnsureDefaults(), nil
	}
	return account.Clone(), nil
}

func (m *mockState) PutAccount(addr []byte, account *types.Account) error {
	m.accounts[string(addr)] = account.Clone()
	return nil
}

func (m *mockState) fund(addr [20]byte, amount *big.Int) {
	m.accounts[string(addr[:])] = &types.Account{Balance: new(big.Int).Set(amount)}
}

func (m *mockState) balance(addr [20]byte) *big.Int {
	account, ok := m.accounts[string(addr[:])]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(account.Balance)
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

var (
	host  = testAddr(0x01)
	goer  = testAddr(0x02)
	price = big.NewInt(1000)
)

func newTestEvent(t *testing.T, capacity uint64) (*Engine, *mockState, [20]byte) {
	t.Helper()
	state := newMockState()
	engine := NewEngine()
	engine.SetState(state)
	engine.SetNowFunc(func() int64 { return 1700000000 })
	evt, err := engine.CreateEvent(host, "Festival", price, capacity, "A concert", "https://img")
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return engine, state, evt.Address
}

func TestCreateEventValidation(t *testing.T) {
	engine := NewEngine()
	engine.SetState(newMockState())

	if _, err := engine.CreateEvent(host, "", price, 10, "d", "img"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty name: got %v", err)
	}
	if _, err := engine.CreateEvent(host, "Festival", big.NewInt(0), 10, "d", "img"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero price: got %v", err)
	}
	if _, err := engine.CreateEvent(host, "Festival", price, 0, "d", "img"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero capacity: got %v", err)
	}
}

func TestPurchaseIssuesTickets(t *testing.T) {
	engine, state, addr := newTestEvent(t, 50)
	state.fund(goer, new(big.Int).Mul(price, big.NewInt(2)))

	first, err := engine.Purchase(addr, goer, price)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	second, err := engine.Purchase(addr, goer, price)
	if err != nil {
		t.Fatalf("second purchase: %v", err)
	}
	if first != 1 || second != 2 {
		t.Fatalf("unexpected ticket ids %d, %d", first, second)
	}

	evt, _ := engine.Get(addr)
	if evt.Sold != 2 || evt.CapacityAvailable() != 48 {
		t.Fatalf("counting off: sold=%d available=%d", evt.Sold, evt.CapacityAvailable())
	}
	if evt.Sold+evt.CapacityAvailable() != evt.CapacityTotal {
		t.Fatal("capacity invariant broken")
	}
	if state.balance(addr).Cmp(new(big.Int).Mul(price, big.NewInt(2))) != 0 {
		t.Fatalf("vault balance %s", state.balance(addr))
	}
}

func TestPurchaseChecks(t *testing.T) {
	engine, state, addr := newTestEvent(t, 1)
	state.fund(goer, new(big.Int).Mul(price, big.NewInt(3)))

	if _, err := engine.Purchase(addr, goer, big.NewInt(999)); !errors.Is(err, ErrIncorrectPayment) {
		t.Fatalf("wrong payment: got %v", err)
	}
	if _, err := engine.Purchase(addr, goer, price); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := engine.Purchase(addr, goer, price); !errors.Is(err, ErrSoldOut) {
		t.Fatalf("sold out: got %v", err)
	}
	if err := engine.Cancel(addr, host); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := engine.Purchase(addr, goer, price); !errors.Is(err, ErrEventCancelled) {
		t.Fatalf("cancelled purchase: got %v", err)
	}
}

func TestPurchaseUnknownEvent(t *testing.T) {
	engine, _, _ := newTestEvent(t, 1)
	if _, err := engine.Purchase(testAddr(0x99), goer, price); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCancelOwnerOnlyAndIdempotent(t *testing.T) {
	engine, _, addr := newTestEvent(t, 5)
	if err := engine.Cancel(addr, goer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner cancel: got %v", err)
	}
	if err := engine.Cancel(addr, host); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := engine.Cancel(addr, host); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
}

func TestRefundCreditsEscrowOnce(t *testing.T) {
	engine, state, addr := newTestEvent(t, 5)
	state.fund(goer, price)
	ticketID, _ := engine.Purchase(addr, goer, price)

	if err := engine.Refund(addr, goer, ticketID); !errors.Is(err, ErrNotCancelled) {
		t.Fatalf("refund before cancel: got %v", err)
	}
	engine.Cancel(addr, host)

	if err := engine.Refund(addr, testAddr(0x33), ticketID); !errors.Is(err, ErrNotTicketBuyer) {
		t.Fatalf("stranger refund: got %v", err)
	}
	if err := engine.Refund(addr, goer, 42); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("missing ticket: got %v", err)
	}
	if err := engine.Refund(addr, goer, ticketID); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if err := engine.Refund(addr, goer, ticketID); !errors.Is(err, ErrTicketRefunded) {
		t.Fatalf("double refund: got %v", err)
	}

	evt, _ := engine.Get(addr)
	if evt.EscrowOf(goer).Cmp(price) != 0 {
		t.Fatalf("escrow credit %s, want %s", evt.EscrowOf(goer), price)
	}
	// Booking the debt moves no value.
	if state.balance(addr).Cmp(price) != 0 {
		t.Fatalf("vault balance changed during refund: %s", state.balance(addr))
	}
}

func TestWithdrawZeroesBeforePaying(t *testing.T) {
	engine, state, addr := newTestEvent(t, 5)
	state.fund(goer, price)
	ticketID, _ := engine.Purchase(addr, goer, price)
	engine.Cancel(addr, host)
	if err := engine.Refund(addr, goer, ticketID); err != nil {
		t.Fatalf("refund: %v", err)
	}

	amount, err := engine.Withdraw(addr, goer)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount.Cmp(price) != 0 {
		t.Fatalf("withdrew %s, want %s", amount, price)
	}
	if state.balance(goer).Cmp(price) != 0 {
		t.Fatalf("buyer balance %s after withdraw", state.balance(goer))
	}
	if _, err := engine.Withdraw(addr, goer); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("second withdraw: got %v", err)
	}
}

func TestWithdrawWithoutFunds(t *testing.T) {
	engine, _, addr := newTestEvent(t, 5)
	if _, err := engine.Withdraw(addr, goer); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("expected nothing to withdraw, got %v", err)
	}
}

func TestEventsListedInCreationOrder(t *testing.T) {
	engine, _, _ := newTestEvent(t, 5)
	if _, err := engine.CreateEvent(host, "Second", price, 10, "d", "img"); err != nil {
		t.Fatalf("create second: %v", err)
	}
	listed, err := engine.Events()
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 events, got %d", len(listed))
	}
	if listed[0].Name != "Festival" || listed[1].Name != "Second" {
		t.Fatalf("unexpected order: %s, %s", listed[0].Name, listed[1].Name)
	}
}

func TestSoldOutScenarioAtFifty(t *testing.T) {
	engine, state, addr := newTestEvent(t, 50)
	state.fund(goer, new(big.Int).Mul(price, big.NewInt(51)))

	for i := 0; i < 50; i++ {
		if _, err := engine.Purchase(addr, goer, price); err != nil {
			t.Fatalf("purchase %d: %v", i+1, err)
		}
	}
	if _, err := engine.Purchase(addr, goer, price); !errors.Is(err, ErrSoldOut) {
		t.Fatalf("expected sold out, got %v", err)
	}
}

package plan

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"planchain/core/types"
	"planchain/native/token"
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
	planAddr  = testAddr(0x10)
	planOwner = testAddr(0x20)
	buyer     = testAddr(0x30)
)

func price() *big.Int {
	return new(big.Int).Set(DiscountUnit) // 1 unit
}

func newTestEngine(t *testing.T, capacity uint64) (*Engine, *mockState) {
	t.Helper()
	state := newMockState()
	engine := NewEngine()
	engine.SetState(state)
	engine.SetNowFunc(func() int64 { return 1700000000 })
	if _, err := engine.Create(planAddr, planOwner, "Shop", price(), 30, capacity, "desc", "ipfs://sub"); err != nil {
		t.Fatalf("create plan: %v", err)
	}
	return engine, state
}

func TestCreateValidation(t *testing.T) {
	state := newMockState()
	engine := NewEngine()
	engine.SetState(state)

	cases := []struct {
		name     string
		retailer string
		price    *big.Int
		metadata string
	}{
		{"empty retailer", "", price(), "ipfs://m"},
		{"zero price", "Shop", big.NewInt(0), "ipfs://m"},
		{"nil price", "Shop", nil, "ipfs://m"},
		{"empty metadata", "Shop", price(), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Create(planAddr, planOwner, tc.retailer, tc.price, 30, 2, "desc", tc.metadata)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestPurchaseMintsAndMovesValue(t *testing.T) {
	engine, state := newTestEngine(t, 2)
	state.fund(buyer, price())

	tokenID, err := engine.Purchase(planAddr, buyer, buyer, price())
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if tokenID != 1 {
		t.Fatalf("expected token id 1, got %d", tokenID)
	}

	p, err := engine.Get(planAddr)
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if p.CapacityAvailable != 1 {
		t.Fatalf("expected 1 available, got %d", p.CapacityAvailable)
	}
	if p.Sold()+p.CapacityAvailable != p.CapacityTotal {
		t.Fatalf("capacity invariant broken: sold=%d available=%d total=%d", p.Sold(), p.CapacityAvailable, p.CapacityTotal)
	}
	if state.balance(buyer).Sign() != 0 {
		t.Fatalf("buyer balance not debited: %s", state.balance(buyer))
	}
	if state.balance(planAddr).Cmp(price()) != 0 {
		t.Fatalf("vault not credited: %s", state.balance(planAddr))
	}

	ledger := token.NewLedger(state)
	owner, err := ledger.OwnerOf(planAddr, tokenID)
	if err != nil {
		t.Fatalf("owner of: %v", err)
	}
	if owner != buyer {
		t.Fatalf("token minted to %x, want buyer", owner)
	}
}

func TestPurchaseForRecipient(t *testing.T) {
	engine, state := newTestEngine(t, 2)
	recipient := testAddr(0x40)
	state.fund(buyer, price())

	tokenID, err := engine.Purchase(planAddr, buyer, recipient, price())
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	ledger := token.NewLedger(state)
	owner, _ := ledger.OwnerOf(planAddr, tokenID)
	if owner != recipient {
		t.Fatalf("token minted to %x, want recipient", owner)
	}
}

func TestPurchaseWrongPaymentLeavesNoTrace(t *testing.T) {
	engine, state := newTestEngine(t, 2)
	state.fund(buyer, price())

	short := new(big.Int).Sub(price(), big.NewInt(1))
	if _, err := engine.Purchase(planAddr, buyer, buyer, short); !errors.Is(err, ErrIncorrectPayment) {
		t.Fatalf("expected incorrect payment, got %v", err)
	}
	over := new(big.Int).Add(price(), big.NewInt(1))
	if _, err := engine.Purchase(planAddr, buyer, buyer, over); !errors.Is(err, ErrIncorrectPayment) {
		t.Fatalf("expected incorrect payment for overpayment, got %v", err)
	}

	p, _ := engine.Get(planAddr)
	if p.CapacityAvailable != 2 {
		t.Fatalf("capacity consumed on failed purchase: %d", p.CapacityAvailable)
	}
	if state.balance(buyer).Cmp(price()) != 0 {
		t.Fatalf("buyer debited on failed purchase: %s", state.balance(buyer))
	}
	ledger := token.NewLedger(state)
	supply, _ := ledger.TotalSupply(planAddr)
	if supply != 0 {
		t.Fatalf("token minted on failed purchase: %d", supply)
	}
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	engine, _ := newTestEngine(t, 2)
	if _, err := engine.Purchase(planAddr, buyer, buyer, price()); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestPurchaseCancelledPlan(t *testing.T) {
	engine, state := newTestEngine(t, 2)
	state.fund(buyer, price())
	if err := engine.Cancel(planAddr, planOwner); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := engine.Purchase(planAddr, buyer, buyer, price()); !errors.Is(err, ErrPlanCancelled) {
		t.Fatalf("expected cancelled error, got %v", err)
	}
}

func TestSoldOutAtCapacity(t *testing.T) {
	const capacity = 50
	engine, state := newTestEngine(t, capacity)
	state.fund(buyer, new(big.Int).Mul(price(), big.NewInt(capacity+1)))

	for i := 0; i < capacity; i++ {
		if _, err := engine.Purchase(planAddr, buyer, buyer, price()); err != nil {
			t.Fatalf("purchase %d: %v", i+1, err)
		}
	}
	if _, err := engine.Purchase(planAddr, buyer, buyer, price()); !errors.Is(err, ErrSoldOut) {
		t.Fatalf("expected sold out, got %v", err)
	}
	p, _ := engine.Get(planAddr)
	if p.Sold() != capacity || p.CapacityAvailable != 0 {
		t.Fatalf("capacity accounting off: sold=%d available=%d", p.Sold(), p.CapacityAvailable)
	}
}

func TestCancelAuthorizationAndIdempotency(t *testing.T) {
	engine, _ := newTestEngine(t, 2)

	if err := engine.Cancel(planAddr, buyer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := engine.Cancel(planAddr, planOwner); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// Second cancel is a no-op, not an error.
	if err := engine.Cancel(planAddr, planOwner); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
	p, _ := engine.Get(planAddr)
	if !p.Cancelled {
		t.Fatal("plan not cancelled")
	}
}

func TestRefundFlow(t *testing.T) {
	engine, state := newTestEngine(t, 2)
	state.fund(buyer, price())
	tokenID, err := engine.Purchase(planAddr, buyer, buyer, price())
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if err := engine.RequestRefund(planAddr, buyer, tokenID); !errors.Is(err, ErrNotCancelled) {
		t.Fatalf("refund before cancel: got %v", err)
	}
	if err := engine.Cancel(planAddr, planOwner); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := engine.RequestRefund(planAddr, testAddr(0x44), tokenID); !errors.Is(err, ErrNotTokenOwner) {
		t.Fatalf("refund by stranger: got %v", err)
	}
	if err := engine.RequestRefund(planAddr, buyer, tokenID); err != nil {
		t.Fatalf("refund: %v", err)
	}

	p, _ := engine.Get(planAddr)
	if p.EscrowOf(buyer).Cmp(price()) != 0 {
		t.Fatalf("escrow credit %s, want %s", p.EscrowOf(buyer), price())
	}
	// Reclaim parks the token with the plan owner, not the buyer.
	ledger := token.NewLedger(state)
	owner, _ := ledger.OwnerOf(planAddr, tokenID)
	if owner != planOwner {
		t.Fatalf("token with %x after refund, want plan owner", owner)
	}
	// No value moved yet; the vault still holds the purchase price.
	if state.balance(planAddr).Cmp(price()) != 0 {
		t.Fatalf("vault balance changed during refund: %s", state.balance(planAddr))
	}
}

func TestWithdrawPaysOnceExactly(t *testing.T) {
	engine, state := newTestEngine(t, 2)
	state.fund(buyer, price())
	tokenID, _ := engine.Purchase(planAddr, buyer, buyer, price())
	engine.Cancel(planAddr, planOwner)
	if err := engine.RequestRefund(planAddr, buyer, tokenID); err != nil {
		t.Fatalf("refund: %v", err)
	}

	amount, err := engine.Withdraw(planAddr, buyer)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount.Cmp(price()) != 0 {
		t.Fatalf("withdrew %s, want %s", amount, price())
	}
	if state.balance(buyer).Cmp(price()) != 0 {
		t.Fatalf("buyer balance %s after withdraw", state.balance(buyer))
	}
	if state.balance(planAddr).Sign() != 0 {
		t.Fatalf("vault balance %s after withdraw", state.balance(planAddr))
	}

	if _, err := engine.Withdraw(planAddr, buyer); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("second withdraw: got %v", err)
	}
}

func TestWithdrawWithoutEscrow(t *testing.T) {
	engine, _ := newTestEngine(t, 2)
	if _, err := engine.Withdraw(planAddr, buyer); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("expected nothing to withdraw, got %v", err)
	}
}

func TestForceReclaim(t *testing.T) {
	engine, state := newTestEngine(t, 2)
	state.fund(buyer, price())
	tokenID, _ := engine.Purchase(planAddr, buyer, buyer, price())

	if err := engine.ForceReclaim(planAddr, buyer, buyer, planOwner, tokenID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner force reclaim: got %v", err)
	}
	if err := engine.ForceReclaim(planAddr, planOwner, testAddr(0x55), planOwner, tokenID); !errors.Is(err, ErrNotTokenOwner) {
		t.Fatalf("wrong source: got %v", err)
	}
	if err := engine.ForceReclaim(planAddr, planOwner, buyer, planOwner, tokenID); err != nil {
		t.Fatalf("force reclaim: %v", err)
	}
	ledger := token.NewLedger(state)
	owner, _ := ledger.OwnerOf(planAddr, tokenID)
	if owner != planOwner {
		t.Fatalf("token with %x after force reclaim", owner)
	}
	// No escrow debt is booked on the administrative path.
	p, _ := engine.Get(planAddr)
	if p.EscrowOf(buyer).Sign() != 0 {
		t.Fatalf("unexpected escrow credit %s", p.EscrowOf(buyer))
	}
}

func TestCancelledFlagNeverReverts(t *testing.T) {
	engine, _ := newTestEngine(t, 2)
	engine.Cancel(planAddr, planOwner)
	for i := 0; i < 3; i++ {
		if err := engine.Cancel(planAddr, planOwner); err != nil {
			t.Fatalf("cancel %d: %v", i, err)
		}
		p, _ := engine.Get(planAddr)
		if !p.Cancelled {
			t.Fatal("cancelled flag reverted")
		}
	}
}

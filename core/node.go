package core

import (
	"errors"
	"math/big"
	"sync"

	"planchain/core/events"
	"planchain/core/state"
	"planchain/core/types"
	"planchain/native/plan"
	"planchain/native/registry"
	"planchain/native/ticket"
	"planchain/native/token"
	"planchain/observability/metrics"
	"planchain/storage"
)

// ErrFaucetDisabled is returned by Fund outside of dev deployments.
var ErrFaucetDisabled = errors.New("core: faucet requires dev mode")

// Config carries the node's boot parameters.
type Config struct {
	// RegistryOwner is the only principal allowed to create plans.
	RegistryOwner [20]byte
	// DevFaucet enables the account funding endpoint for local runs and tests.
	DevFaucet bool
	// PausedModules lists engine modules refusing mutations at boot.
	PausedModules []string
	// EventWindow bounds the recent-events buffer served over RPC.
	EventWindow int
}

type pauseSet map[string]bool

func (p pauseSet) IsPaused(module string) bool { return p[module] }

// Node is the central controller wiring storage, state and the marketplace
// engines together. Every operation runs as a single serialized transaction:
// the node takes the state mutex, binds a fresh transition to the engines and
// commits only if the operation succeeds, so a failure can never leave a
// partial write behind.
type Node struct {
	db       storage.Database
	manager  *state.Manager
	recorder *events.Recorder

	stateMu  sync.Mutex
	registry *registry.Engine
	plans    *plan.Engine
	tickets  *ticket.Engine

	devFaucet bool
}

// NewNode opens the state manager over db, wires the engines and initialises
// the registry owner.
func NewNode(db storage.Database, cfg Config) (*Node, error) {
	if cfg.RegistryOwner == ([20]byte{}) {
		return nil, errors.New("core: registry owner required")
	}
	recorder := events.NewRecorder(cfg.EventWindow)
	pauses := make(pauseSet, len(cfg.PausedModules))
	for _, module := range cfg.PausedModules {
		pauses[module] = true
	}

	plans := plan.NewEngine()
	plans.SetEmitter(recorder)
	plans.SetPauses(pauses)

	reg := registry.NewEngine()
	reg.SetEmitter(recorder)
	reg.SetPauses(pauses)
	reg.SetPlanEngine(plans)

	tickets := ticket.NewEngine()
	tickets.SetEmitter(recorder)
	tickets.SetPauses(pauses)

	n := &Node{
		db:        db,
		manager:   state.NewManager(db),
		recorder:  recorder,
		registry:  reg,
		plans:     plans,
		tickets:   tickets,
		devFaucet: cfg.DevFaucet,
	}
	if err := n.withTransition(func(txn *state.Transition) error {
		return reg.InitOwner(cfg.RegistryOwner)
	}); err != nil {
		return nil, err
	}
	return n, nil
}

// withTransition serializes the operation against shared state and commits
// its writes only on success.
func (n *Node) withTransition(fn func(*state.Transition) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	txn := n.manager.Begin()
	n.registry.SetState(txn)
	n.plans.SetState(txn)
	n.tickets.SetState(txn)
	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// --- Registry ---

// CreatePlan deploys a plan and its token collection through the registry.
func (n *Node) CreatePlan(caller [20]byte, retailer string, price *big.Int, durationDays, capacity uint64, description, metadataURI string) (*registry.PlanRef, error) {
	var ref *registry.PlanRef
	err := n.withTransition(func(txn *state.Transition) error {
		created, err := n.registry.CreateSubscriptionPlan(caller, retailer, price, durationDays, capacity, description, metadataURI)
		if err != nil {
			return err
		}
		ref = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.Market().PlanCreated()
	return ref, nil
}

// PlanAddress resolves a registry id, returning the zero sentinel when absent.
func (n *Node) PlanAddress(id uint64) ([20]byte, error) {
	var addr [20]byte
	err := n.withTransition(func(txn *state.Transition) error {
		resolved, err := n.registry.GetPlan(id)
		if err != nil {
			return err
		}
		addr = resolved
		return nil
	})
	return addr, err
}

// ListPlans returns the registry directory in creation order.
func (n *Node) ListPlans() ([]registry.PlanRef, error) {
	var refs []registry.PlanRef
	err := n.withTransition(func(txn *state.Transition) error {
		listed, err := n.registry.Plans()
		if err != nil {
			return err
		}
		refs = listed
		return nil
	})
	return refs, err
}

// RegistryOwner returns the configured registry owner.
func (n *Node) RegistryOwner() ([20]byte, error) {
	var owner [20]byte
	err := n.withTransition(func(txn *state.Transition) error {
		resolved, err := n.registry.Owner()
		if err != nil {
			return err
		}
		owner = resolved
		return nil
	})
	return owner, err
}

// --- Plans ---

// GetPlan returns the stored plan record.
func (n *Node) GetPlan(addr [20]byte) (*plan.Plan, error) {
	var p *plan.Plan
	err := n.withTransition(func(txn *state.Transition) error {
		loaded, err := n.plans.Get(addr)
		if err != nil {
			return err
		}
		p = loaded
		return nil
	})
	return p, err
}

// Purchase buys one entitlement from the plan for exactly its price.
func (n *Node) Purchase(addr, buyer, recipient [20]byte, value *big.Int) (uint64, error) {
	var tokenID uint64
	err := n.withTransition(func(txn *state.Transition) error {
		id, err := n.plans.Purchase(addr, buyer, recipient, value)
		if err != nil {
			return err
		}
		tokenID = id
		return nil
	})
	if err != nil {
		return 0, err
	}
	metrics.Market().Purchase(plan.PauseModule)
	return tokenID, nil
}

// CancelPlan moves the plan into its terminal cancelled state.
func (n *Node) CancelPlan(addr, caller [20]byte) error {
	if err := n.withTransition(func(txn *state.Transition) error {
		return n.plans.Cancel(addr, caller)
	}); err != nil {
		return err
	}
	metrics.Market().Cancellation(plan.PauseModule)
	return nil
}

// RequestRefund books the purchase price into escrow and reclaims the token.
func (n *Node) RequestRefund(addr, caller [20]byte, tokenID uint64) error {
	if err := n.withTransition(func(txn *state.Transition) error {
		return n.plans.RequestRefund(addr, caller, tokenID)
	}); err != nil {
		return err
	}
	metrics.Market().RefundRequested(plan.PauseModule)
	return nil
}

// Withdraw pays out the caller's plan escrow balance.
func (n *Node) Withdraw(addr, caller [20]byte) (*big.Int, error) {
	var amount *big.Int
	err := n.withTransition(func(txn *state.Transition) error {
		paid, err := n.plans.Withdraw(addr, caller)
		if err != nil {
			return err
		}
		amount = paid
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.Market().Withdrawal(plan.PauseModule)
	return amount, nil
}

// ForceReclaim drives the token ledger's reclaim path for the plan owner.
func (n *Node) ForceReclaim(addr, caller, from, to [20]byte, tokenID uint64) error {
	return n.withTransition(func(txn *state.Transition) error {
		return n.plans.ForceReclaim(addr, caller, from, to, tokenID)
	})
}

// EscrowOf returns the amount the plan currently owes who.
func (n *Node) EscrowOf(addr, who [20]byte) (*big.Int, error) {
	p, err := n.GetPlan(addr)
	if err != nil {
		return nil, err
	}
	return p.EscrowOf(who), nil
}

// --- Token ledger reads ---

func (n *Node) tokenRead(fn func(*token.Ledger) error) error {
	return n.withTransition(func(txn *state.Transition) error {
		return fn(token.NewLedger(txn))
	})
}

// TokenOwner returns the holder of tokenID in the plan's collection.
func (n *Node) TokenOwner(planAddr [20]byte, tokenID uint64) ([20]byte, error) {
	var owner [20]byte
	err := n.tokenRead(func(l *token.Ledger) error {
		resolved, err := l.OwnerOf(planAddr, tokenID)
		if err != nil {
			return err
		}
		owner = resolved
		return nil
	})
	return owner, err
}

// TokenBalance returns the number of tokens held by holder.
func (n *Node) TokenBalance(planAddr, holder [20]byte) (uint64, error) {
	var balance uint64
	err := n.tokenRead(func(l *token.Ledger) error {
		resolved, err := l.BalanceOf(planAddr, holder)
		if err != nil {
			return err
		}
		balance = resolved
		return nil
	})
	return balance, err
}

// TokenByIndex enumerates holder's tokens in acquisition order.
func (n *Node) TokenByIndex(planAddr, holder [20]byte, index uint64) (uint64, error) {
	var tokenID uint64
	err := n.tokenRead(func(l *token.Ledger) error {
		resolved, err := l.TokenOfOwnerByIndex(planAddr, holder, index)
		if err != nil {
			return err
		}
		tokenID = resolved
		return nil
	})
	return tokenID, err
}

// TokenURI returns the collection metadata URI for a minted token.
func (n *Node) TokenURI(planAddr [20]byte, tokenID uint64) (string, error) {
	var uri string
	err := n.tokenRead(func(l *token.Ledger) error {
		resolved, err := l.TokenURI(planAddr, tokenID)
		if err != nil {
			return err
		}
		uri = resolved
		return nil
	})
	return uri, err
}

// TokenSupply returns the number of tokens minted for the plan so far.
func (n *Node) TokenSupply(planAddr [20]byte) (uint64, error) {
	var supply uint64
	err := n.tokenRead(func(l *token.Ledger) error {
		resolved, err := l.TotalSupply(planAddr)
		if err != nil {
			return err
		}
		supply = resolved
		return nil
	})
	return supply, err
}

// --- Ticket events ---

// CreateEvent hosts a new one-off sale owned by the caller.
func (n *Node) CreateEvent(owner [20]byte, name string, price *big.Int, capacity uint64, description, imageURI string) (*ticket.Event, error) {
	var evt *ticket.Event
	err := n.withTransition(func(txn *state.Transition) error {
		created, err := n.tickets.CreateEvent(owner, name, price, capacity, description, imageURI)
		if err != nil {
			return err
		}
		evt = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.Market().EventCreated()
	return evt, nil
}

// GetEvent returns the stored event record.
func (n *Node) GetEvent(addr [20]byte) (*ticket.Event, error) {
	var evt *ticket.Event
	err := n.withTransition(func(txn *state.Transition) error {
		loaded, err := n.tickets.Get(addr)
		if err != nil {
			return err
		}
		evt = loaded
		return nil
	})
	return evt, err
}

// ListEvents returns every hosted event in creation order.
func (n *Node) ListEvents() ([]*ticket.Event, error) {
	var listed []*ticket.Event
	err := n.withTransition(func(txn *state.Transition) error {
		evts, err := n.tickets.Events()
		if err != nil {
			return err
		}
		listed = evts
		return nil
	})
	return listed, err
}

// PurchaseTicket buys one ticket for exactly the event price.
func (n *Node) PurchaseTicket(addr, buyer [20]byte, value *big.Int) (uint64, error) {
	var ticketID uint64
	err := n.withTransition(func(txn *state.Transition) error {
		id, err := n.tickets.Purchase(addr, buyer, value)
		if err != nil {
			return err
		}
		ticketID = id
		return nil
	})
	if err != nil {
		return 0, err
	}
	metrics.Market().Purchase(ticket.PauseModule)
	return ticketID, nil
}

// CancelEvent moves the event into its terminal cancelled state.
func (n *Node) CancelEvent(addr, caller [20]byte) error {
	if err := n.withTransition(func(txn *state.Transition) error {
		return n.tickets.Cancel(addr, caller)
	}); err != nil {
		return err
	}
	metrics.Market().Cancellation(ticket.PauseModule)
	return nil
}

// RefundTicket books the ticket price into escrow for the original buyer.
func (n *Node) RefundTicket(addr, caller [20]byte, ticketID uint64) error {
	if err := n.withTransition(func(txn *state.Transition) error {
		return n.tickets.Refund(addr, caller, ticketID)
	}); err != nil {
		return err
	}
	metrics.Market().RefundRequested(ticket.PauseModule)
	return nil
}

// WithdrawTicket pays out the caller's event escrow balance.
func (n *Node) WithdrawTicket(addr, caller [20]byte) (*big.Int, error) {
	var amount *big.Int
	err := n.withTransition(func(txn *state.Transition) error {
		paid, err := n.tickets.Withdraw(addr, caller)
		if err != nil {
			return err
		}
		amount = paid
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.Market().Withdrawal(ticket.PauseModule)
	return amount, nil
}

// --- Accounts and events ---

// Balance returns the native balance held by addr.
func (n *Node) Balance(addr [20]byte) (*big.Int, error) {
	var balance *big.Int
	err := n.withTransition(func(txn *state.Transition) error {
		account, err := txn.GetAccount(addr[:])
		if err != nil {
			return err
		}
		balance = new(big.Int).Set(account.Balance)
		return nil
	})
	return balance, err
}

// Fund credits addr with amount. Only available when the dev faucet is on.
func (n *Node) Fund(addr [20]byte, amount *big.Int) error {
	if !n.devFaucet {
		return ErrFaucetDisabled
	}
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("core: faucet amount must be positive")
	}
	return n.withTransition(func(txn *state.Transition) error {
		account, err := txn.GetAccount(addr[:])
		if err != nil {
			return err
		}
		account.Balance = new(big.Int).Add(account.Balance, amount)
		return txn.PutAccount(addr[:], account)
	})
}

type payloadEvent interface {
	Event() *types.Event
}

// RecentEvents returns up to n of the most recently emitted event records.
func (n *Node) RecentEvents(limit int) []*types.Event {
	raw := n.recorder.Recent(limit)
	out := make([]*types.Event, 0, len(raw))
	for _, evt := range raw {
		if carrier, ok := evt.(payloadEvent); ok {
			out = append(out, carrier.Event())
		}
	}
	return out
}

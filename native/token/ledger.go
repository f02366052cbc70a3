package token

import (
	"errors"
	"fmt"
	"strings"

	"planchain/core/events"
)

var (
	// ErrUnauthorized marks mint or reclaim calls from anyone other than the
	// plan the collection belongs to.
	ErrUnauthorized = errors.New("token: caller is not the plan authority")
	// ErrCollectionNotFound marks operations against a plan with no collection.
	ErrCollectionNotFound = errors.New("token: collection not found")
	// ErrTokenNotFound marks lookups of identifiers that were never minted.
	ErrTokenNotFound = errors.New("token: token not found")
	// ErrNotOwner marks reclaim attempts where the token is not held by the
	// supplied source address.
	ErrNotOwner = errors.New("token: source does not own token")
	// ErrIndexOutOfBounds marks enumeration past the end of a holder's set.
	ErrIndexOutOfBounds = errors.New("token: holdings index out of bounds")
	// ErrInvalidCollection marks collection definitions with missing fields.
	ErrInvalidCollection = errors.New("token: invalid collection definition")
)

// storage abstracts the subset of state manager functionality required by the
// token ledger.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

func collectionKey(plan [20]byte) []byte {
	return []byte(fmt.Sprintf("token/%x/collection", plan))
}

func ownerKey(plan [20]byte, tokenID uint64) []byte {
	return []byte(fmt.Sprintf("token/%x/owner/%d", plan, tokenID))
}

func holdingsKey(plan, holder [20]byte) []byte {
	return []byte(fmt.Sprintf("token/%x/holdings/%x", plan, holder))
}

// Ledger tracks ownership of entitlement tokens for every plan collection.
// Mint and reclaim are gated on the collection's plan address; everything else
// is a read.
type Ledger struct {
	store   storage
	emitter events.Emitter
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store storage) *Ledger {
	return &Ledger{store: store, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used by the ledger. Passing nil
// resets the emitter to a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) emit(evt *tokenEvent) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(evt)
}

func (l *Ledger) collection(plan [20]byte) (*Collection, error) {
	if l == nil || l.store == nil {
		return nil, errors.New("token: ledger not configured")
	}
	col := new(Collection)
	ok, err := l.store.KVGet(collectionKey(plan), col)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCollectionNotFound
	}
	return col, nil
}

// CreateCollection registers the token family for a newly deployed plan. The
// collection shares one metadata URI across all of its tokens.
func (l *Ledger) CreateCollection(plan [20]byte, name, symbol, metadataURI string) error {
	if l == nil || l.store == nil {
		return errors.New("token: ledger not configured")
	}
	if plan == ([20]byte{}) {
		return fmt.Errorf("%w: zero plan address", ErrInvalidCollection)
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidCollection)
	}
	if strings.TrimSpace(metadataURI) == "" {
		return fmt.Errorf("%w: empty metadata URI", ErrInvalidCollection)
	}
	if _, err := l.collection(plan); err == nil {
		return fmt.Errorf("%w: collection already exists", ErrInvalidCollection)
	} else if !errors.Is(err, ErrCollectionNotFound) {
		return err
	}
	col := &Collection{
		Plan:        plan,
		Name:        name,
		Symbol:      symbol,
		MetadataURI: metadataURI,
		NextTokenID: 1,
	}
	return l.store.KVPut(collectionKey(plan), col)
}

// Mint assigns the next token identifier to the recipient. Only the plan the
// collection was created for may mint.
func (l *Ledger) Mint(caller, plan, to [20]byte) (uint64, error) {
	col, err := l.collection(plan)
	if err != nil {
		return 0, err
	}
	if caller != col.Plan {
		return 0, ErrUnauthorized
	}
	tokenID := col.NextTokenID
	col.NextTokenID++
	col.Minted++
	if err := l.store.KVPut(ownerKey(plan, tokenID), to); err != nil {
		return 0, err
	}
	if err := l.appendHolding(plan, to, tokenID); err != nil {
		return 0, err
	}
	if err := l.store.KVPut(collectionKey(plan), col); err != nil {
		return 0, err
	}
	l.emit(newTransferEvent(plan, [20]byte{}, to, tokenID))
	return tokenID, nil
}

// Reclaim force-moves a token from its current holder to the supplied
// recipient. The transfer bypasses holder authorization on purpose: it
// implements the refund path's mandatory reclaim, so only the plan may call
// it, and the token must currently sit with the claimed source address.
func (l *Ledger) Reclaim(caller, plan, from, to [20]byte, tokenID uint64) error {
	col, err := l.collection(plan)
	if err != nil {
		return err
	}
	if caller != col.Plan {
		return ErrUnauthorized
	}
	owner, err := l.OwnerOf(plan, tokenID)
	if err != nil {
		return err
	}
	if owner != from {
		return ErrNotOwner
	}
	if err := l.store.KVPut(ownerKey(plan, tokenID), to); err != nil {
		return err
	}
	if err := l.removeHolding(plan, from, tokenID); err != nil {
		return err
	}
	if err := l.appendHolding(plan, to, tokenID); err != nil {
		return err
	}
	l.emit(newTransferEvent(plan, from, to, tokenID))
	return nil
}

// OwnerOf returns the current holder of tokenID within the plan's collection.
func (l *Ledger) OwnerOf(plan [20]byte, tokenID uint64) ([20]byte, error) {
	if l == nil || l.store == nil {
		return [20]byte{}, errors.New("token: ledger not configured")
	}
	var owner [20]byte
	ok, err := l.store.KVGet(ownerKey(plan, tokenID), &owner)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, ErrTokenNotFound
	}
	return owner, nil
}

// BalanceOf returns the number of tokens held by holder.
func (l *Ledger) BalanceOf(plan, holder [20]byte) (uint64, error) {
	holdings, err := l.holdings(plan, holder)
	if err != nil {
		return 0, err
	}
	return uint64(len(holdings)), nil
}

// TokenOfOwnerByIndex returns the holder's token at the given position in
// acquisition order.
func (l *Ledger) TokenOfOwnerByIndex(plan, holder [20]byte, index uint64) (uint64, error) {
	holdings, err := l.holdings(plan, holder)
	if err != nil {
		return 0, err
	}
	if index >= uint64(len(holdings)) {
		return 0, ErrIndexOutOfBounds
	}
	return holdings[index], nil
}

// TokenURI returns the collection-wide metadata URI for a minted token.
func (l *Ledger) TokenURI(plan [20]byte, tokenID uint64) (string, error) {
	col, err := l.collection(plan)
	if err != nil {
		return "", err
	}
	if tokenID == 0 || tokenID >= col.NextTokenID {
		return "", ErrTokenNotFound
	}
	return col.MetadataURI, nil
}

// TotalSupply returns the number of tokens ever minted for the plan.
func (l *Ledger) TotalSupply(plan [20]byte) (uint64, error) {
	col, err := l.collection(plan)
	if err != nil {
		return 0, err
	}
	return col.Minted, nil
}

// Collection returns a copy of the plan's collection record.
func (l *Ledger) Collection(plan [20]byte) (*Collection, error) {
	col, err := l.collection(plan)
	if err != nil {
		return nil, err
	}
	return col.Clone(), nil
}

func (l *Ledger) holdings(plan, holder [20]byte) ([]uint64, error) {
	if l == nil || l.store == nil {
		return nil, errors.New("token: ledger not configured")
	}
	var holdings []uint64
	if _, err := l.store.KVGet(holdingsKey(plan, holder), &holdings); err != nil {
		return nil, err
	}
	return holdings, nil
}

func (l *Ledger) appendHolding(plan, holder [20]byte, tokenID uint64) error {
	holdings, err := l.holdings(plan, holder)
	if err != nil {
		return err
	}
	return l.store.KVPut(holdingsKey(plan, holder), append(holdings, tokenID))
}

func (l *Ledger) removeHolding(plan, holder [20]byte, tokenID uint64) error {
	holdings, err := l.holdings(plan, holder)
	if err != nil {
		return err
	}
	for i, id := range holdings {
		if id == tokenID {
			holdings = append(holdings[:i], holdings[i+1:]...)
			return l.store.KVPut(holdingsKey(plan, holder), holdings)
		}
	}
	return ErrNotOwner
}

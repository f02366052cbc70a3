package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"planchain/core/types"
	"planchain/storage"
)

var accountPrefix = []byte("account/")

// Manager provides typed access to the underlying key-value store. Mutating
// operations run against a Transition so that an aborted operation leaves no
// partial writes behind.
type Manager struct {
	db storage.Database
}

// NewManager constructs a manager bound to the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func accountKey(addr []byte) []byte {
	key := make([]byte, 0, len(accountPrefix)+2*len(addr))
	key = append(key, accountPrefix...)
	return append(key, []byte(fmt.Sprintf("%x", addr))...)
}

// KVGet decodes the stored value for key into out, reporting whether the key
// exists.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, errors.New("state: manager not configured")
	}
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// GetAccount loads the account stored for addr, returning a zero-value account
// when none exists yet.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	account := new(types.Account)
	ok, err := m.KVGet(accountKey(addr), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return (&types.Account{}).EnsureDefaults(), nil
	}
	return account.EnsureDefaults(), nil
}

// Begin opens a new transition layered over the committed state.
func (m *Manager) Begin() *Transition {
	return &Transition{manager: m, writes: make(map[string][]byte)}
}

// Transition buffers writes performed by a single operation. Reads observe
// buffered writes first, then fall through to committed state. Nothing touches
// the database until Commit; discarding the transition aborts the operation
// with no partial effect.
type Transition struct {
	manager *Manager
	writes  map[string][]byte
	order   []string
}

// KVGet decodes the value for key into out, observing uncommitted writes.
func (t *Transition) KVGet(key []byte, out interface{}) (bool, error) {
	if t == nil || t.manager == nil {
		return false, errors.New("state: transition not configured")
	}
	if raw, ok := t.writes[string(key)]; ok {
		if out == nil {
			return true, nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return false, fmt.Errorf("state: decode %q: %w", key, err)
		}
		return true, nil
	}
	return t.manager.KVGet(key, out)
}

// KVPut buffers an encoded write for key.
func (t *Transition) KVPut(key []byte, value interface{}) error {
	if t == nil || t.manager == nil {
		return errors.New("state: transition not configured")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	if _, seen := t.writes[string(key)]; !seen {
		t.order = append(t.order, string(key))
	}
	t.writes[string(key)] = raw
	return nil
}

// GetAccount loads the account for addr through the transition overlay.
func (t *Transition) GetAccount(addr []byte) (*types.Account, error) {
	account := new(types.Account)
	ok, err := t.KVGet(accountKey(addr), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return (&types.Account{}).EnsureDefaults(), nil
	}
	return account.EnsureDefaults(), nil
}

// PutAccount buffers the account write for addr.
func (t *Transition) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return errors.New("state: nil account")
	}
	return t.KVPut(accountKey(addr), account.EnsureDefaults())
}

// Commit flushes buffered writes to the database in write order.
func (t *Transition) Commit() error {
	if t == nil || t.manager == nil || t.manager.db == nil {
		return errors.New("state: transition not configured")
	}
	for _, key := range t.order {
		if err := t.manager.db.Put([]byte(key), t.writes[key]); err != nil {
			return fmt.Errorf("state: commit %q: %w", key, err)
		}
	}
	return nil
}

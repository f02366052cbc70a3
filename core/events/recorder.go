package events

import "sync"

// Recorder keeps a bounded window of the most recent events so RPC consumers
// and off-chain indexers can poll for state changes they missed.
type Recorder struct {
	mu     sync.RWMutex
	limit  int
	buffer []Event
}

const defaultRecorderLimit = 1024

// NewRecorder constructs a recorder retaining up to limit events. A
// non-positive limit falls back to the default window.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = defaultRecorderLimit
	}
	return &Recorder{limit: limit}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = append(r.buffer, evt)
	if len(r.buffer) > r.limit {
		r.buffer = r.buffer[len(r.buffer)-r.limit:]
	}
}

// Recent returns up to n of the most recent events, newest last. A
// non-positive n returns the full retained window.
func (r *Recorder) Recent(n int) []Event {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n > len(r.buffer) {
		n = len(r.buffer)
	}
	out := make([]Event, n)
	copy(out, r.buffer[len(r.buffer)-n:])
	return out
}

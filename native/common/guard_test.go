package common

import (
	"errors"
	"testing"
)

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }

func TestGuard(t *testing.T) {
	pauses := pauseMap{"plan": true}
	if err := Guard(pauses, "plan"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	if err := Guard(pauses, "ticket"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Guard(nil, "plan"); err != nil {
		t.Fatalf("nil view should pass: %v", err)
	}
	if err := Guard(pauses, ""); err != nil {
		t.Fatalf("empty module should pass: %v", err)
	}
}

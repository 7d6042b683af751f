// Package session holds the PIN gate in front of the data views. The
// unlocked flag lives in process memory only and is lost on restart. It is
// a UI gate, not an access-control boundary.
package session

import (
	"errors"
	"sync"
)

// DefaultPIN unlocks a gate created without an explicit PIN.
const DefaultPIN = "0000"

// ErrLocked is returned by callers that require an unlocked gate.
var ErrLocked = errors.New("session: locked")

// Gate tracks whether the current session has entered the PIN.
type Gate struct {
	pin string

	mu       sync.RWMutex
	unlocked bool
}

// NewGate returns a locked gate. An empty pin means DefaultPIN.
func NewGate(pin string) *Gate {
	if pin == "" {
		pin = DefaultPIN
	}
	return &Gate{pin: pin}
}

// Unlock opens the gate when pin matches and reports whether it did. A
// wrong pin leaves the gate as it was.
func (g *Gate) Unlock(pin string) bool {
	if pin != g.pin {
		return false
	}
	g.mu.Lock()
	g.unlocked = true
	g.mu.Unlock()
	return true
}

// Lock closes the gate.
func (g *Gate) Lock() {
	g.mu.Lock()
	g.unlocked = false
	g.mu.Unlock()
}

// Unlocked reports whether the gate is open.
func (g *Gate) Unlocked() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.unlocked
}

// Require returns ErrLocked unless the gate is open.
func (g *Gate) Require() error {
	if !g.Unlocked() {
		return ErrLocked
	}
	return nil
}

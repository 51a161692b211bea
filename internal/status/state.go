// Package status tracks connectivity to the chat API.
package status

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/picklepick/ppchat/internal/api"
	"github.com/picklepick/ppchat/internal/auth"
	"github.com/picklepick/ppchat/internal/bus"
)

// State represents the session's connectivity state.
type State string

const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Connecting   State = "CONNECTING"
	Ready        State = "READY"
	Degraded     State = "DEGRADED"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Connecting, Error},
	AuthRequired: {Connecting, Error},
	Connecting:   {Ready, Degraded, AuthRequired, Error},
	Ready:        {Degraded, AuthRequired, Error},
	Degraded:     {Ready, AuthRequired, Error},
	Error:        {Booting},
}

// Machine tracks and enforces connectivity state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	lastErr error
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Snapshot returns the current state, when it was entered and the last
// reported fetch error.
func (m *Machine) Snapshot() (State, time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.since, m.lastErr
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to)
}

func (m *Machine) transitionLocked(to State) error {
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	m.bus.Emit(bus.SessionStatusChanged, StatusChange{From: from, To: to})
	return nil
}

// Observe folds the outcome of an API fetch into the state. Success leads
// to READY, a rejected or missing token to AUTH_REQUIRED, anything else to DEGRADED.
// Intermediate states are walked so every published change is a valid
// transition. Observe never leaves ERROR.
func (m *Machine) Observe(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err

	target := Ready
	switch {
	case err == nil:
	case api.IsUnauthorized(err), errors.Is(err, auth.ErrNoToken):
		target = AuthRequired
	default:
		target = Degraded
	}
	if m.current == target || m.current == Error {
		return
	}

	var path []State
	switch m.current {
	case Booting:
		if target == AuthRequired {
			path = []State{AuthRequired}
		} else {
			path = []State{Connecting, target}
		}
	case AuthRequired:
		if target != AuthRequired {
			path = []State{Connecting, target}
		}
	default:
		path = []State{target}
	}
	for _, s := range path {
		if m.transitionLocked(s) != nil {
			return
		}
	}
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}

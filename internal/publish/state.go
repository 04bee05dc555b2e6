// Package publish runs the pre-publication checks of a draft and the atomic publish call.
package publish

import (
	"fmt"
	"slices"
	"sync"
)

// State is one stage of a publish attempt.
type State string

const (
	Idle                 State = "idle"
	Saving               State = "saving"
	CheckingProfile      State = "checking-profile"
	CheckingVerification State = "checking-verification"
	Validating           State = "validating"
	Publishing           State = "publishing"
	InsertingPhotos      State = "inserting-photos"
	RefreshingCache      State = "refreshing-cache"
	Done                 State = "done"
	Failed               State = "error"
)

// validTransitions defines the allowed moves. Failed is reachable from every state but Done.
// A precondition check that sends the user to remediation goes back to Idle instead.
var validTransitions = map[State][]State{
	Idle:                 {Saving, Failed},
	Saving:               {CheckingProfile, Failed},
	CheckingProfile:      {CheckingVerification, Idle, Failed},
	CheckingVerification: {Validating, Idle, Failed},
	Validating:           {Publishing, Idle, Failed},
	Publishing:           {InsertingPhotos, Failed},
	InsertingPhotos:      {RefreshingCache, Failed},
	RefreshingCache:      {Done, Failed},
	Failed:               {Idle},
	Done:                 {},
}

// Observer receives every accepted transition.
type Observer func(from, to State)

// Machine tracks one publish attempt.
type Machine struct {
	mu       sync.RWMutex
	current  State
	observer Observer
}

// NewMachine creates a machine in Idle.
func NewMachine(obs Observer) *Machine {
	return &Machine{current: Idle, observer: obs}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to a new state or returns an error if the move is not allowed.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	m.mu.Unlock()

	if m.observer != nil {
		m.observer(from, to)
	}
	return nil
}

// Fail moves to Failed from any state except Done.
func (m *Machine) Fail() error {
	return m.Transition(Failed)
}

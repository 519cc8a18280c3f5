package control

import (
	"context"
	"sync"
)

// State is the operator's wish for the traversal.
type State int

const (
	// Ready means no start command has been given yet.
	Ready State = iota
	// Running means the traversal may proceed.
	Running
	// Stopped means the traversal must halt at its next check.
	Stopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Signal is the shared run/stop switch between operator listeners and the
// traversal engine. It is safe for concurrent use.
type Signal struct {
	mu      sync.Mutex
	state   State
	changed chan struct{}
	onTrans []func(from, to State)
}

// NewSignal returns a Signal in the Ready state.
func NewSignal() *Signal {
	return &Signal{changed: make(chan struct{})}
}

// NewRunningSignal returns a Signal that is already Running.
func NewRunningSignal() *Signal {
	s := NewSignal()
	s.state = Running
	return s
}

// OnTransition registers fn to be called after every state change.
// fn runs without the lock held.
func (s *Signal) OnTransition(fn func(from, to State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTrans = append(s.onTrans, fn)
}

// Start moves to Running. It reports whether the state changed.
func (s *Signal) Start() bool {
	return s.set(Running)
}

// Stop moves to Stopped. It reports whether the state changed.
func (s *Signal) Stop() bool {
	return s.set(Stopped)
}

// Toggle stops a running signal and starts any other.
func (s *Signal) Toggle() State {
	s.mu.Lock()
	to := Running
	if s.state == Running {
		to = Stopped
	}
	s.mu.Unlock()

	s.set(to)
	return to
}

// State returns the current state.
func (s *Signal) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning reports whether the traversal may proceed.
func (s *Signal) IsRunning() bool {
	return s.State() == Running
}

// WaitRunning blocks until the state is Running or ctx is done.
func (s *Signal) WaitRunning(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.state == Running {
			s.mu.Unlock()
			return nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func (s *Signal) set(to State) bool {
	s.mu.Lock()
	from := s.state
	if from == to {
		s.mu.Unlock()
		return false
	}
	s.state = to
	close(s.changed)
	s.changed = make(chan struct{})
	callbacks := append([]func(from, to State){}, s.onTrans...)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(from, to)
	}
	return true
}

package push

import (
	"sync"
	"time"
)

// State is the push connection as last observed
type State struct {
	Connected bool      `json:"connected"`
	Endpoint  string    `json:"endpoint,omitempty"`
	LastError string    `json:"lastError,omitempty"`
	Since     time.Time `json:"since"`
}

// Status records connection changes made by Subscribe so other goroutines
// can report them. A nil *Status ignores updates.
type Status struct {
	mu    sync.RWMutex
	state State
}

func NewStatus() *Status {
	return &Status{state: State{Since: time.Now()}}
}

func (s *Status) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// MarkConnected records a joined namespace on endpoint
func (s *Status) MarkConnected(endpoint string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{Connected: true, Endpoint: endpoint, Since: time.Now()}
}

// MarkDisconnected records a lost or refused connection. err may be nil
// for a clean shutdown.
func (s *Status) MarkDisconnected(endpoint string, err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	since := s.state.Since
	if s.state.Connected {
		since = time.Now()
	}
	s.state = State{Endpoint: endpoint, Since: since}
	if err != nil {
		s.state.LastError = err.Error()
	}
}

package circuitbreaker

import "sync"

// Manager keeps one breaker per printer. A nil *Manager admits everything.
type Manager struct {
	breakers map[int64]*Breaker
	mu       sync.Mutex
	config   Config
}

// NewManager creates a new circuit breaker manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		breakers: make(map[int64]*Breaker),
		config:   cfg.withDefaults(),
	}
}

func (m *Manager) getOrCreate(printerID int64) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.breakers[printerID]; ok {
		return b
	}
	b := NewBreaker(m.config)
	m.breakers[printerID] = b
	return b
}

// Allow reports whether the request ref to printerID may proceed.
func (m *Manager) Allow(printerID int64, ref string) bool {
	if m == nil {
		return true
	}
	return m.getOrCreate(printerID).Allow(ref)
}

// RecordFailure counts a failed exchange with printerID.
func (m *Manager) RecordFailure(printerID int64) {
	if m == nil {
		return
	}
	m.getOrCreate(printerID).RecordFailure()
}

// RecordSuccess closes the circuit of printerID. Printers without a
// breaker are left untracked.
func (m *Manager) RecordSuccess(printerID int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	b, ok := m.breakers[printerID]
	m.mu.Unlock()
	if ok {
		b.RecordSuccess()
	}
}

// State returns the state of printerID; untracked printers are closed.
func (m *Manager) State(printerID int64) State {
	if m == nil {
		return StateClosed
	}
	m.mu.Lock()
	b, ok := m.breakers[printerID]
	m.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return b.State()
}

// Remove forgets the breaker of printerID.
func (m *Manager) Remove(printerID int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.breakers, printerID)
}

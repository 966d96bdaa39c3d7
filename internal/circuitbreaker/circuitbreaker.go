// Package circuitbreaker isolates printers whose agents stop answering, so
// callers fail fast instead of each waiting out the full response timeout.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned while a printer's circuit rejects requests.
var ErrOpen = errors.New("printer circuit open")

// State represents the circuit breaker state.
type State int

const (
	// StateClosed lets every request through.
	StateClosed State = iota
	// StateOpen rejects requests until the reset timeout passes.
	StateOpen
	// StateHalfOpen lets a single probe request through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration.
type Config struct {
	FailureThreshold int           // consecutive failures before opening (default 5)
	ResetTimeout     time.Duration // open period before a probe is let through (default 30s)
	Now              func() time.Time
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Breaker tracks consecutive failures of one printer.
type Breaker struct {
	cfg Config

	mu           sync.Mutex
	state        State
	failureCount int
	openedAt     time.Time
	probeRef     string
	probeStart   time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), state: StateClosed}
}

// Allow reports whether the request identified by ref may proceed. In the
// half-open state only one probe is admitted; a probe that never reports
// back is replaced after the reset timeout.
func (b *Breaker) Allow(ref string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Now()

	switch b.state {
	case StateClosed:
		return true

	case StateOpen:
		if now.Sub(b.openedAt) < b.cfg.ResetTimeout {
			return false
		}
		b.state = StateHalfOpen
		b.probeRef = ref
		b.probeStart = now
		return true

	case StateHalfOpen:
		if b.probeRef == ref || now.Sub(b.probeStart) >= b.cfg.ResetTimeout {
			b.probeRef = ref
			b.probeStart = now
			return true
		}
		return false
	}
	return false
}

// RecordFailure counts a failed exchange.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failureCount < b.cfg.FailureThreshold {
		b.failureCount++
	}

	switch {
	case b.state == StateHalfOpen:
		b.open()
	case b.state == StateClosed && b.failureCount >= b.cfg.FailureThreshold:
		b.open()
	}
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.cfg.Now()
	b.probeRef = ""
}

// RecordSuccess closes the circuit and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failureCount = 0
	b.probeRef = ""
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the consecutive failure count, capped at the threshold.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

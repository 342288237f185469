// Package circuit wraps sony/gobreaker with per-source breakers so a failing
// remote site stops receiving probes until it recovers.
package circuit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when a source's breaker rejects a call
var ErrCircuitOpen = errors.New("circuit breaker open")

// Config controls when a breaker trips and how it recovers
type Config struct {
	MaxRequests         uint32        // allowed through while half-open
	Interval            time.Duration // closed-state counter reset period
	Timeout             time.Duration // open -> half-open delay
	ConsecutiveFailures uint32
	ErrorRate           float64 // percent, evaluated after MinRequests
	MinRequests         uint32
}

// DefaultConfig suits the public data sites the tool talks to
func DefaultConfig() Config {
	return Config{
		MaxRequests:         2,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
		ErrorRate:           50,
		MinRequests:         10,
	}
}

func (c Config) readyToTrip(counts gobreaker.Counts) bool {
	if c.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= c.ConsecutiveFailures {
		return true
	}
	if c.ErrorRate > 0 && c.MinRequests > 0 && counts.Requests >= c.MinRequests {
		rate := float64(counts.TotalFailures) / float64(counts.Requests) * 100
		return rate >= c.ErrorRate
	}
	return false
}

// StateListener is told about every state transition
type StateListener func(source string, from, to gobreaker.State)

// Manager owns one breaker per source
type Manager struct {
	mu        sync.RWMutex
	breakers  map[string]*gobreaker.CircuitBreaker
	listeners []StateListener
}

// NewManager creates an empty manager
func NewManager() *Manager {
	return &Manager{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

// OnStateChange registers a listener; call before AddSource
func (m *Manager) OnStateChange(l StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// AddSource creates the breaker for source
func (m *Manager) AddSource(source string, cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	listeners := append([]StateListener(nil), m.listeners...)
	settings := gobreaker.Settings{
		Name:        source,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.readyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("source", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state changed")
			for _, l := range listeners {
				l(name, from, to)
			}
		},
	}
	m.breakers[source] = gobreaker.NewCircuitBreaker(settings)
}

// Execute runs fn through the source's breaker. Sources without a breaker run
// fn directly. Rejections are reported as ErrCircuitOpen.
func (m *Manager) Execute(source string, fn func() (interface{}, error)) (interface{}, error) {
	m.mu.RLock()
	cb, ok := m.breakers[source]
	m.mu.RUnlock()
	if !ok {
		return fn()
	}

	res, err := cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %w", source, ErrCircuitOpen)
	}
	return res, err
}

// State returns the breaker state for source, closed when unknown
func (m *Manager) State(source string) gobreaker.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if cb, ok := m.breakers[source]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}

// Status summarizes one breaker
type Status struct {
	Source string           `json:"source"`
	State  string           `json:"state"`
	Counts gobreaker.Counts `json:"counts"`
}

// Statuses returns the state of every breaker
func (m *Manager) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.breakers))
	for name, cb := range m.breakers {
		out = append(out, Status{Source: name, State: cb.State().String(), Counts: cb.Counts()})
	}
	return out
}

// Package budget caps the number of requests each source may receive per day.
package budget

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrExhausted matches every ExhaustedError
var ErrExhausted = errors.New("daily request budget exhausted")

// ExhaustedError reports which source ran out and when it resets
type ExhaustedError struct {
	Source string
	Used   int64
	Limit  int64
	Reset  time.Time
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("request budget exhausted for %s: %d/%d used, resets at %s",
		e.Source, e.Used, e.Limit, e.Reset.Format("15:04 UTC"))
}

// Is lets errors.Is match ErrExhausted
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Tracker counts requests for one source over a UTC day
type Tracker struct {
	mu        sync.Mutex
	source    string
	limit     int64
	used      int64
	warnAt    float64
	resetHour int
	lastReset time.Time
	now       func() time.Time
}

// NewTracker creates a tracker allowing limit requests per day, reset at
// resetHour UTC. warnAt is the utilization (0..1] at which Warning turns true.
func NewTracker(source string, limit int64, resetHour int, warnAt float64) *Tracker {
	if resetHour < 0 || resetHour > 23 {
		resetHour = 0
	}
	if warnAt <= 0 || warnAt > 1 {
		warnAt = 0.8
	}
	t := &Tracker{source: source, limit: limit, warnAt: warnAt, resetHour: resetHour, now: time.Now}
	t.lastReset = lastReset(t.now().UTC(), resetHour)
	return t
}

func lastReset(now time.Time, hour int) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if now.Hour() >= hour {
		return today
	}
	return today.AddDate(0, 0, -1)
}

// rollover must be called with mu held
func (t *Tracker) rollover() {
	now := t.now().UTC()
	if !now.Before(t.lastReset.Add(24 * time.Hour)) {
		t.used = 0
		t.lastReset = lastReset(now, t.resetHour)
	}
}

// Consume records one request. It fails without counting when the budget is
// spent; a limit of 0 or less means unlimited.
func (t *Tracker) Consume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()

	if t.limit > 0 && t.used >= t.limit {
		return &ExhaustedError{Source: t.source, Used: t.used, Limit: t.limit, Reset: t.lastReset.Add(24 * time.Hour)}
	}
	t.used++
	return nil
}

// Stats is a snapshot of a tracker
type Stats struct {
	Source    string    `json:"source"`
	Limit     int64     `json:"limit"`
	Used      int64     `json:"used"`
	Remaining int64     `json:"remaining"`
	Warning   bool      `json:"warning"`
	NextReset time.Time `json:"next_reset"`
}

// Stats returns the current usage
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()

	s := Stats{Source: t.source, Limit: t.limit, Used: t.used, NextReset: t.lastReset.Add(24 * time.Hour)}
	if t.limit > 0 {
		s.Remaining = t.limit - t.used
		s.Warning = float64(t.used)/float64(t.limit) >= t.warnAt
	}
	return s
}

// Manager holds a Tracker per source
type Manager struct {
	mu       sync.RWMutex
	trackers map[string]*Tracker
}

// NewManager creates an empty manager
func NewManager() *Manager {
	return &Manager{trackers: make(map[string]*Tracker)}
}

// AddSource registers a daily budget for source
func (m *Manager) AddSource(source string, limit int64, resetHour int, warnAt float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trackers[source] = NewTracker(source, limit, resetHour, warnAt)
}

// Consume records a request for source. Sources without a budget always pass.
func (m *Manager) Consume(source string) error {
	m.mu.RLock()
	t, ok := m.trackers[source]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return t.Consume()
}

// Stats returns a snapshot for every source
func (m *Manager) Stats() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Stats, 0, len(m.trackers))
	for _, t := range m.trackers {
		out = append(out, t.Stats())
	}
	return out
}

// Package ratelimit throttles outbound requests per source and host so the
// registry, licensing and food program sites are not hammered by bulk probes.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per host
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLimiter creates a limiter allowing rps requests per second per host
func NewLimiter(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.limiters[host]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.limiters[host]; ok {
		return b
	}
	limit := rate.Limit(l.rps)
	if l.rps <= 0 {
		limit = rate.Inf
	}
	b = rate.NewLimiter(limit, l.burst)
	l.limiters[host] = b
	return b
}

// Allow reports whether a request to host may go out now
func (l *Limiter) Allow(host string) bool {
	return l.bucket(host).Allow()
}

// Wait blocks until a request to host may go out or ctx is done
func (l *Limiter) Wait(ctx context.Context, host string) error {
	return l.bucket(host).Wait(ctx)
}

// Tokens returns the tokens currently available for host
func (l *Limiter) Tokens(host string) float64 {
	return l.bucket(host).Tokens()
}

// Manager holds a Limiter per named source
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

// NewManager creates an empty manager
func NewManager() *Manager {
	return &Manager{limiters: make(map[string]*Limiter)}
}

// AddSource registers a limiter for source
func (m *Manager) AddSource(source string, rps float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[source] = NewLimiter(rps, burst)
}

// Limiter returns the limiter for source
func (m *Manager) Limiter(source string) (*Limiter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.limiters[source]
	return l, ok
}

// Wait blocks on the source's limiter. Sources without one are not throttled.
func (m *Manager) Wait(ctx context.Context, source, host string) error {
	l, ok := m.Limiter(source)
	if !ok {
		return nil
	}
	return l.Wait(ctx, host)
}

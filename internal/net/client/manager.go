package client

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/sawpanic/daycarewatch/internal/cache"
	"github.com/sawpanic/daycarewatch/internal/config"
	"github.com/sawpanic/daycarewatch/internal/net/budget"
	"github.com/sawpanic/daycarewatch/internal/net/circuit"
	"github.com/sawpanic/daycarewatch/internal/net/ratelimit"
)

// Manager hands out one wrapped http.Client per configured source
type Manager struct {
	clients  map[string]*http.Client
	breakers *circuit.Manager
	budgets  *budget.Manager
}

// Options are the shared pieces every source client is built from
type Options struct {
	Transport http.RoundTripper // defaults to http.DefaultTransport
	Cache     cache.Cache       // nil disables caching
	Recorder  Recorder
	// OnBreakerChange is registered before any breaker is created
	OnBreakerChange circuit.StateListener
}

// NewManager builds clients for every source in cfg
func NewManager(cfg *config.Config, opts Options) *Manager {
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	limits := ratelimit.NewManager()
	breakers := circuit.NewManager()
	budgets := budget.NewManager()
	if opts.OnBreakerChange != nil {
		breakers.OnStateChange(opts.OnBreakerChange)
	}

	m := &Manager{clients: make(map[string]*http.Client), breakers: breakers, budgets: budgets}
	for name, src := range cfg.Sources {
		limits.AddSource(name, src.RPS, src.Burst)
		if src.DailyBudget > 0 {
			budgets.AddSource(name, src.DailyBudget, cfg.Budget.ResetHour, cfg.Budget.WarnThreshold)
		}

		bc := circuit.DefaultConfig()
		if src.Circuit.FailureThreshold > 0 {
			bc.ConsecutiveFailures = src.Circuit.FailureThreshold
		}
		if src.Circuit.ErrorRatePct > 0 {
			bc.ErrorRate = src.Circuit.ErrorRatePct
		}
		if src.Circuit.MinRequests > 0 {
			bc.MinRequests = src.Circuit.MinRequests
		}
		if src.Circuit.HalfOpenRequests > 0 {
			bc.MaxRequests = src.Circuit.HalfOpenRequests
		}
		if src.Circuit.OpenSecs > 0 {
			bc.Timeout = src.Circuit.OpenTimeout()
		}
		breakers.AddSource(name, bc)

		w := &Wrapper{
			source:    name,
			host:      src.Host,
			transport: transport,
			limits:    limits,
			breakers:  breakers,
			budgets:   budgets,
			cache:     opts.Cache,
			ttl:       src.CacheTTL(),
			maxBytes:  cfg.Cache.MaxBytes,
			userAgent: cfg.UserAgent,
			recorder:  opts.Recorder,
		}
		m.clients[name] = &http.Client{Transport: w, Timeout: src.RequestTimeout()}
	}
	return m
}

// Client returns the client for source
func (m *Manager) Client(source string) (*http.Client, error) {
	c, ok := m.clients[source]
	if !ok {
		return nil, fmt.Errorf("no client configured for source %q", source)
	}
	return c, nil
}

// MustClient is Client for sources known to be configured
func (m *Manager) MustClient(source string) *http.Client {
	c, err := m.Client(source)
	if err != nil {
		panic(err)
	}
	return c
}

// Health summarizes breaker and budget state per source
type Health struct {
	Breakers []circuit.Status `json:"breakers"`
	Budgets  []budget.Stats   `json:"budgets"`
}

// Health returns the current breaker and budget state
func (m *Manager) Health() Health {
	h := Health{Breakers: m.breakers.Statuses(), Budgets: m.budgets.Stats()}
	sort.Slice(h.Breakers, func(i, j int) bool { return h.Breakers[i].Source < h.Breakers[j].Source })
	sort.Slice(h.Budgets, func(i, j int) bool { return h.Budgets[i].Source < h.Budgets[j].Source })
	return h
}

package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/daycarewatch/internal/cache"
	"github.com/sawpanic/daycarewatch/internal/config"
	"github.com/sawpanic/daycarewatch/internal/net/budget"
	"github.com/sawpanic/daycarewatch/internal/net/circuit"
)

type recorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recorder) ObserveRequest(_, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func testConfig(host string) *config.Config {
	cfg := config.Default()
	cfg.Sources = map[string]config.SourceConfig{
		config.SourceCCLD: {
			Host:        host,
			RPS:         0,
			DailyBudget: 3,
			TTLSecs:     60,
			TimeoutSecs: 5,
			Circuit:     config.CircuitConfig{FailureThreshold: 2, OpenSecs: 60},
		},
	}
	return cfg
}

func get(t *testing.T, c *http.Client, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	require.NoError(t, err)
	return c.Do(req)
}

func TestWrapper_CachesSuccessfulGets(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = io.WriteString(w, "facility report body")
	}))
	defer srv.Close()

	rec := &recorder{}
	m := NewManager(testConfig(srv.Listener.Addr().String()), Options{Cache: cache.NewMemory(), Recorder: rec})
	c := m.MustClient(config.SourceCCLD)

	for i := 0; i < 2; i++ {
		resp, err := get(t, c, srv.URL+"/report?facNum=1")
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, "facility report body", string(body))
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, []string{OutcomeOK, OutcomeCached}, rec.outcomes)
}

func TestWrapper_NotFoundIsAnAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	m := NewManager(testConfig(srv.Listener.Addr().String()), Options{})
	c := m.MustClient(config.SourceCCLD)

	for i := 0; i < 3; i++ {
		resp, err := get(t, c, srv.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	}
	assert.Equal(t, "closed", m.Health().Breakers[0].State)
}

func TestWrapper_ServerErrorsTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testConfig(srv.Listener.Addr().String())
	s := cfg.Sources[config.SourceCCLD]
	s.DailyBudget = 0
	cfg.Sources[config.SourceCCLD] = s
	m := NewManager(cfg, Options{})
	c := m.MustClient(config.SourceCCLD)

	for i := 0; i < 2; i++ {
		_, err := get(t, c, srv.URL)
		var se *SourceError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, ErrTypeHTTP, se.Type)
		assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	}

	_, err := get(t, c, srv.URL)
	var se *SourceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ErrTypeCircuit, se.Type)
	assert.True(t, errors.Is(err, circuit.ErrCircuitOpen))
}

func TestWrapper_BudgetExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.URL.Query().Get("n"))
	}))
	defer srv.Close()

	m := NewManager(testConfig(srv.Listener.Addr().String()), Options{})
	c := m.MustClient(config.SourceCCLD)

	for _, n := range []string{"1", "2", "3"} {
		resp, err := get(t, c, srv.URL+"?n="+n)
		require.NoError(t, err)
		resp.Body.Close()
	}
	_, err := get(t, c, srv.URL+"?n=4")
	require.Error(t, err)
	assert.True(t, errors.Is(err, budget.ErrExhausted))
	assert.Equal(t, int64(3), m.Health().Budgets[0].Used)
}

func TestWrapper_LargeBodiesStreamUncached(t *testing.T) {
	big := strings.Repeat("x", 2048)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no Content-Length so the wrapper has to measure
		w.(http.Flusher).Flush()
		_, _ = io.WriteString(w, big)
	}))
	defer srv.Close()

	cfg := testConfig(srv.Listener.Addr().String())
	cfg.Cache.MaxBytes = 1024
	mem := cache.NewMemory()
	c := NewManager(cfg, Options{Cache: mem}).MustClient(config.SourceCCLD)

	resp, err := get(t, c, srv.URL)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, big, string(body))

	_, cached := mem.Get(context.Background(), config.SourceCCLD+":"+srv.URL)
	assert.False(t, cached)
}

func TestManager_UnknownSource(t *testing.T) {
	m := NewManager(testConfig("h"), Options{})
	_, err := m.Client("nope")
	assert.Error(t, err)
}

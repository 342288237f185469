// Package client composes rate limiting, circuit breaking, daily budgets and
// response caching into an http.RoundTripper per remote source.
package client

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/daycarewatch/internal/cache"
	"github.com/sawpanic/daycarewatch/internal/net/budget"
	"github.com/sawpanic/daycarewatch/internal/net/circuit"
	"github.com/sawpanic/daycarewatch/internal/net/ratelimit"
)

// Error types carried by SourceError
const (
	ErrTypeRateLimit = "rate_limit"
	ErrTypeBudget    = "budget"
	ErrTypeCircuit   = "circuit"
	ErrTypeTransport = "transport"
	ErrTypeHTTP      = "http_error"
)

// Request outcomes reported to a Recorder
const (
	OutcomeOK      = "ok"
	OutcomeCached  = "cached"
	OutcomeStatus  = "status"
	OutcomeError   = "error"
	OutcomeBlocked = "blocked"
)

// SourceError is a failed call to a remote source
type SourceError struct {
	Source     string `json:"source"`
	Type       string `json:"type"`
	StatusCode int    `json:"status_code,omitempty"`
	Err        error  `json:"-"`
}

func (e *SourceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("source %s %s error (HTTP %d): %v", e.Source, e.Type, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("source %s %s error: %v", e.Source, e.Type, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Recorder receives one observation per request
type Recorder interface {
	ObserveRequest(source, outcome string, d time.Duration)
}

// Wrapper is the RoundTripper for one source
type Wrapper struct {
	source    string
	host      string
	transport http.RoundTripper
	limits    *ratelimit.Manager
	breakers  *circuit.Manager
	budgets   *budget.Manager
	cache     cache.Cache
	ttl       time.Duration
	maxBytes  int
	userAgent string
	recorder  Recorder
}

// retryable statuses count against the breaker; other statuses are answers
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// RoundTrip implements http.RoundTripper
func (w *Wrapper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	ctx := req.Context()

	if req.Header.Get("User-Agent") == "" && w.userAgent != "" {
		req = req.Clone(ctx)
		req.Header.Set("User-Agent", w.userAgent)
	}

	cacheable := w.cache != nil && w.ttl > 0 && req.Method == http.MethodGet
	key := w.source + ":" + req.URL.String()
	if cacheable {
		if body, ok := w.cache.Get(ctx, key); ok {
			w.observe(OutcomeCached, start)
			return cachedResponse(req, body), nil
		}
	}

	if err := w.budgets.Consume(w.source); err != nil {
		w.observe(OutcomeBlocked, start)
		return nil, &SourceError{Source: w.source, Type: ErrTypeBudget, Err: err}
	}

	host := req.URL.Host
	if host == "" {
		host = w.host
	}
	if err := w.limits.Wait(ctx, w.source, host); err != nil {
		w.observe(OutcomeBlocked, start)
		return nil, &SourceError{Source: w.source, Type: ErrTypeRateLimit, Err: fmt.Errorf("rate limit wait failed: %w", err)}
	}

	res, err := w.breakers.Execute(w.source, func() (interface{}, error) {
		resp, err := w.transport.RoundTrip(req)
		if err != nil {
			return nil, &SourceError{Source: w.source, Type: ErrTypeTransport, Err: err}
		}
		if retryable(resp.StatusCode) {
			drain(resp)
			return nil, &SourceError{
				Source:     w.source,
				Type:       ErrTypeHTTP,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
			}
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, circuit.ErrCircuitOpen) {
			w.observe(OutcomeBlocked, start)
			return nil, &SourceError{Source: w.source, Type: ErrTypeCircuit, Err: err}
		}
		w.observe(OutcomeError, start)
		return nil, err
	}

	resp := res.(*http.Response)
	if resp.StatusCode != http.StatusOK {
		w.observe(OutcomeStatus, start)
		return resp, nil
	}

	if cacheable && (resp.ContentLength < 0 || resp.ContentLength <= int64(w.maxBytes)) {
		if err := w.store(req, resp, key); err != nil {
			w.observe(OutcomeError, start)
			return nil, &SourceError{Source: w.source, Type: ErrTypeTransport, Err: err}
		}
	}
	w.observe(OutcomeOK, start)
	return resp, nil
}

// store buffers the body, caches it if it fits and hands the bytes back to the caller
func (w *Wrapper) store(req *http.Request, resp *http.Response, key string) error {
	limit := int64(w.maxBytes)
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		resp.Body.Close()
		return fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		// too large to cache; stitch the consumed prefix back onto the stream
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(body), resp.Body), resp.Body}
		return nil
	}
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	w.cache.Set(req.Context(), key, body, w.ttl)
	log.Debug().Str("source", w.source).Str("url", req.URL.String()).Int("bytes", len(body)).Msg("Cached response")
	return nil
}

func (w *Wrapper) observe(outcome string, start time.Time) {
	if w.recorder != nil {
		w.recorder.ObserveRequest(w.source, outcome, time.Since(start))
	}
}

func cachedResponse(req *http.Request, body []byte) *http.Response {
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"X-Cache": []string{"HIT"}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

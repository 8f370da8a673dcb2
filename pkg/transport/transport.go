// Package transport instruments every outbound HTTP call of the engine: it
// applies the per-endpoint rate limit, reports outcomes to the health monitor
// and remembers the server's Retry-After hint after a 429.
package transport

import (
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"wallet-engine/pkg/health"
)

// Transport is an http.RoundTripper bound to one network target.
type Transport struct {
	Base    http.RoundTripper
	Chain   string
	Target  string
	Limiter *rate.Limiter
	Monitor *health.Monitor

	hint atomic.Int64
}

// Options configures a Transport
type Options struct {
	Chain  string
	Target string
	// RPS limits requests per second; zero disables limiting
	RPS     float64
	Burst   int
	Monitor *health.Monitor
	Base    http.RoundTripper
}

// New creates a Transport
func New(opts Options) *Transport {
	t := &Transport{
		Base:    opts.Base,
		Chain:   opts.Chain,
		Target:  opts.Target,
		Monitor: opts.Monitor,
	}
	if t.Base == nil {
		t.Base = http.DefaultTransport
	}
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		t.Limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return t
}

// Client wraps the transport in an http.Client
func (t *Transport) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: t, Timeout: timeout}
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := t.Base.RoundTrip(req)
	latency := time.Since(start)

	observed := err
	if err == nil {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			t.hint.Store(int64(ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())))
			observed = fmt.Errorf("http status 429")
		case resp.StatusCode >= 500:
			observed = fmt.Errorf("http status %d", resp.StatusCode)
		}
	}
	if t.Monitor != nil {
		t.Monitor.Observe(t.Chain, t.Target, latency, observed)
	}
	return resp, err
}

// RetryAfter returns and clears the last Retry-After hint
func (t *Transport) RetryAfter() time.Duration {
	return time.Duration(t.hint.Swap(0))
}

// ParseRetryAfter reads delta-seconds or an HTTP date; zero when absent or invalid
func ParseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

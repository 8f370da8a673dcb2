// Package health tracks per-target request statistics and runs liveness checks
// used for failover decisions and external monitoring.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Checker is anything that can prove it is alive with one cheap call
type Checker interface {
	Chain() string
	Name() string
	Ping(ctx context.Context) error
}

// Monitor owns the running stats of every network target.
type Monitor struct {
	mu      sync.RWMutex
	targets map[string]*target
	metrics *Metrics
	timeout time.Duration
}

type target struct {
	chain string
	name  string
	stats *Stats
}

// NewMonitor creates a monitor; checkTimeout bounds each Ping
func NewMonitor(checkTimeout time.Duration) *Monitor {
	if checkTimeout <= 0 {
		checkTimeout = 10 * time.Second
	}
	return &Monitor{
		targets: make(map[string]*target),
		metrics: NewMetrics(),
		timeout: checkTimeout,
	}
}

// Metrics exposes the prometheus series
func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

// Handler serves the prometheus exposition format
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.metrics.Registry, promhttp.HandlerOpts{})
}

func (m *Monitor) stats(chain, name string) *Stats {
	key := chain + "|" + name

	m.mu.RLock()
	t, ok := m.targets[key]
	m.mu.RUnlock()
	if ok {
		return t.stats
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok = m.targets[key]; ok {
		return t.stats
	}
	t = &target{chain: chain, name: name, stats: NewStats()}
	m.targets[key] = t
	return t.stats
}

// Observe records one network call against a target
func (m *Monitor) Observe(chain, name string, latency time.Duration, err error) {
	m.stats(chain, name).Observe(latency, err)
	m.metrics.Requests.WithLabelValues(chain, name).Inc()
	m.metrics.RequestLatency.WithLabelValues(chain, name).Observe(latency.Seconds())
	if err != nil {
		m.metrics.RequestErrors.WithLabelValues(chain, name).Inc()
	}
}

// Snapshot returns the stats of one target
func (m *Monitor) Snapshot(chain, name string) Snapshot {
	return m.stats(chain, name).Snapshot()
}

// TargetReport is the health of one network target
type TargetReport struct {
	Chain   string   `json:"chain"`
	Name    string   `json:"name"`
	Healthy bool     `json:"healthy"`
	Latency string   `json:"latency,omitempty"`
	Message string   `json:"message"`
	Stats   Snapshot `json:"stats"`
}

// Report aggregates the health of all checked adapters and observed targets
type Report struct {
	Healthy   bool           `json:"healthy"`
	CheckedAt time.Time      `json:"checked_at"`
	Adapters  []TargetReport `json:"adapters"`
	Targets   []TargetReport `json:"targets"`
}

// Check pings every checker concurrently and folds in the running stats
func (m *Monitor) Check(ctx context.Context, checkers ...Checker) Report {
	results := make([]TargetReport, len(checkers))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range checkers {
		i, c := i, c
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, m.timeout)
			defer cancel()

			start := time.Now()
			err := c.Ping(cctx)
			latency := time.Since(start)

			ch := c.Chain()
			m.Observe(ch, "health:"+c.Name(), latency, err)

			r := TargetReport{Chain: ch, Name: c.Name(), Healthy: err == nil, Latency: latency.Round(time.Millisecond).String()}
			if err != nil {
				r.Message = err.Error()
				m.metrics.TargetUp.WithLabelValues(ch, c.Name()).Set(0)
			} else {
				r.Message = "responding normally"
				m.metrics.TargetUp.WithLabelValues(ch, c.Name()).Set(1)
			}
			r.Stats = m.Snapshot(ch, "health:"+c.Name())
			results[i] = r
			// a failing adapter must not cancel its siblings
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Healthy: true, CheckedAt: time.Now().UTC(), Adapters: results}
	for _, r := range results {
		if !r.Healthy {
			report.Healthy = false
		}
	}
	report.Targets = m.targetReports()
	return report
}

func (m *Monitor) targetReports() []TargetReport {
	m.mu.RLock()
	out := make([]TargetReport, 0, len(m.targets))
	for _, t := range m.targets {
		snap := t.stats.Snapshot()
		out = append(out, TargetReport{
			Chain:   t.chain,
			Name:    t.name,
			Healthy: snap.Healthy(),
			Message: snap.LastError,
			Stats:   snap,
		})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Chain != out[j].Chain {
			return out[i].Chain < out[j].Chain
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// RecordFailover counts an endpoint rotation
func (m *Monitor) RecordFailover(chain string) {
	m.metrics.Failovers.WithLabelValues(chain).Inc()
}

// RecordBroadcast counts a terminal broadcast outcome and its rebuilds
func (m *Monitor) RecordBroadcast(chain, status string, rebuilds int) {
	m.metrics.Broadcasts.WithLabelValues(chain, status).Inc()
	if rebuilds > 0 {
		m.metrics.Rebuilds.WithLabelValues(chain).Add(float64(rebuilds))
	}
}

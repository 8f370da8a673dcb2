package health

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct {
	chain, name string
	err         error
	delay       time.Duration
}

func (p pinger) Chain() string { return p.chain }
func (p pinger) Name() string  { return p.name }

func (p pinger) Ping(ctx context.Context) error {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.err
}

func TestCheck_OneFailingTarget(t *testing.T) {
	m := NewMonitor(time.Second)
	report := m.Check(context.Background(),
		pinger{chain: "eth", name: "adapter"},
		pinger{chain: "solana", name: "https://api.mainnet-beta.solana.com", err: errors.New("connection refused")},
	)

	assert.False(t, report.Healthy)
	require.Len(t, report.Adapters, 2)
	assert.True(t, report.Adapters[0].Healthy)
	assert.Equal(t, "responding normally", report.Adapters[0].Message)
	assert.False(t, report.Adapters[1].Healthy)
	assert.Equal(t, "connection refused", report.Adapters[1].Message)

	// checks are observed as targets too
	require.Len(t, report.Targets, 2)
	assert.Equal(t, "eth", report.Targets[0].Chain)
	assert.Equal(t, "health:adapter", report.Targets[0].Name)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Metrics().TargetUp.WithLabelValues("eth", "adapter")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Metrics().TargetUp.WithLabelValues("solana", "https://api.mainnet-beta.solana.com")))
}

func TestCheck_TimeoutBoundsPing(t *testing.T) {
	m := NewMonitor(20 * time.Millisecond)
	start := time.Now()
	report := m.Check(context.Background(), pinger{chain: "bsc", name: "adapter", delay: time.Hour})

	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, report.Healthy)
	assert.Contains(t, report.Adapters[0].Message, "deadline exceeded")
}

func TestObserveAndCounters(t *testing.T) {
	m := NewMonitor(0)
	m.Observe("eth", "https://rpc", 10*time.Millisecond, nil)
	m.Observe("eth", "https://rpc", 30*time.Millisecond, errors.New("timeout"))
	m.RecordFailover("solana")
	m.RecordBroadcast("eth", "confirmed", 2)

	snap := m.Snapshot("eth", "https://rpc")
	assert.Equal(t, int64(2), snap.Total)
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, 20*time.Millisecond, snap.AverageLatency)
	assert.Equal(t, float64(50), snap.SuccessRate)

	met := m.Metrics()
	assert.Equal(t, float64(2), testutil.ToFloat64(met.Requests.WithLabelValues("eth", "https://rpc")))
	assert.Equal(t, float64(1), testutil.ToFloat64(met.RequestErrors.WithLabelValues("eth", "https://rpc")))
	assert.Equal(t, float64(1), testutil.ToFloat64(met.Failovers.WithLabelValues("solana")))
	assert.Equal(t, float64(1), testutil.ToFloat64(met.Broadcasts.WithLabelValues("eth", "confirmed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(met.Rebuilds.WithLabelValues("eth")))
}

func TestHandlerServesMetrics(t *testing.T) {
	m := NewMonitor(0)
	m.RecordBroadcast("eth", "failed", 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `wallet_engine_broadcast_results_total{chain="eth",status="failed"} 1`)
}

func TestSnapshotHealthy(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStats()
	s.now = func() time.Time { return now }

	assert.True(t, s.Snapshot().Healthy())

	s.Observe(time.Millisecond, errors.New("boom"))
	assert.False(t, s.Snapshot().Healthy())

	now = now.Add(time.Second)
	s.Observe(time.Millisecond, nil)
	assert.True(t, s.Snapshot().Healthy())
}

package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the prometheus series exported for external monitoring,
// partitioned by chain + target.
type Metrics struct {
	Registry *prometheus.Registry

	Requests       *prometheus.CounterVec
	RequestErrors  *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
	Failovers      *prometheus.CounterVec
	Broadcasts     *prometheus.CounterVec
	Rebuilds       *prometheus.CounterVec
	TargetUp       *prometheus.GaugeVec
}

// NewMetrics registers the engine series on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallet_engine",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Total network requests per target",
		}, []string{"chain", "target"}),
		RequestErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallet_engine",
			Subsystem: "rpc",
			Name:      "errors_total",
			Help:      "Total failed network requests per target",
		}, []string{"chain", "target"}),
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wallet_engine",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Network request latency",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"chain", "target"}),
		Failovers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallet_engine",
			Subsystem: "pool",
			Name:      "failovers_total",
			Help:      "Endpoint rotations after node failures",
		}, []string{"chain"}),
		Broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallet_engine",
			Subsystem: "broadcast",
			Name:      "results_total",
			Help:      "Terminal broadcast outcomes",
		}, []string{"chain", "status"}),
		Rebuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallet_engine",
			Subsystem: "broadcast",
			Name:      "rebuilds_total",
			Help:      "Transactions rebuilt after a stale blockhash or nonce",
		}, []string{"chain"}),
		TargetUp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wallet_engine",
			Subsystem: "health",
			Name:      "target_up",
			Help:      "1 when the last health check of the target passed",
		}, []string{"chain", "target"}),
	}
}

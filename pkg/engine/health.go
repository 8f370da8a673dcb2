package engine

import (
	"context"

	"wallet-engine/pkg/chain"
	"wallet-engine/pkg/health"
)

// adapterChecker probes an adapter's own liveness call
type adapterChecker struct {
	adapter chain.Adapter
}

func (c adapterChecker) Chain() string { return string(c.adapter.Params().ID) }

func (c adapterChecker) Name() string { return "adapter" }

func (c adapterChecker) Ping(ctx context.Context) error { return c.adapter.Ping(ctx) }

// CheckHealth pings every adapter and extra checker concurrently. One failing
// target marks the report unhealthy but never hides the others.
func (e *Engine) CheckHealth(ctx context.Context) health.Report {
	adapters := e.registry.Adapters()
	checkers := make([]health.Checker, 0, len(adapters)+len(e.checkers))
	for _, a := range adapters {
		checkers = append(checkers, adapterChecker{adapter: a})
	}
	checkers = append(checkers, e.checkers...)
	return e.monitor.Check(ctx, checkers...)
}

// Monitor returns the health monitor shared with adapters
func (e *Engine) Monitor() *health.Monitor {
	return e.monitor
}

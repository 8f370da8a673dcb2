package solana

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"wallet-engine/pkg/health"
	"wallet-engine/pkg/retry"
	"wallet-engine/pkg/transport"
	"wallet-engine/pkg/types"
)

// Endpoint is one RPC node of the pool
type Endpoint struct {
	URL    string
	Client RPC
	// Hints yields the node's Retry-After after a 429, may be nil
	Hints transport.HintSource
}

// Pool spreads calls over RPC nodes ordered primary, backups, public
// fallbacks. A node that keeps failing with NodeUnavailable or RateLimited is
// left for the next one that answers getHealth; when failing over, nodes whose
// recent calls succeed are tried before nodes the monitor has seen failing.
type Pool struct {
	chain     string
	endpoints []Endpoint
	policy    retry.Policy
	monitor   *health.Monitor
	log       zerolog.Logger

	mu     sync.RWMutex
	active int
}

// NewPool creates a pool; at least one endpoint is required
func NewPool(chain string, endpoints []Endpoint, policy retry.Policy, monitor *health.Monitor, log zerolog.Logger) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, types.E(types.NodeUnavailable, "solana.pool", "no RPC endpoints configured for %s", chain)
	}
	if policy.MaxAttempts <= 0 {
		policy = retry.Default
	}
	return &Pool{chain: chain, endpoints: endpoints, policy: policy, monitor: monitor, log: log}, nil
}

// Active returns the endpoint calls go to first
func (p *Pool) Active() Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoints[p.active]
}

// Endpoints lists every node in failover order
func (p *Pool) Endpoints() []Endpoint {
	return p.endpoints
}

var failoverKinds = retry.OnlyKinds(types.NodeUnavailable, types.RateLimited)

// Do runs fn with the read retry policy, failing over on node errors
func (p *Pool) Do(ctx context.Context, op string, fn func(ctx context.Context, c RPC) error) error {
	return p.do(ctx, p.policy, op, fn)
}

// Once runs fn a single time per node, failing over on node errors. Used for
// steps the broadcast machine already retries.
func (p *Pool) Once(ctx context.Context, op string, fn func(ctx context.Context, c RPC) error) error {
	return p.do(ctx, retry.Policy{MaxAttempts: 1}, op, fn)
}

func (p *Pool) do(ctx context.Context, policy retry.Policy, op string, fn func(ctx context.Context, c RPC) error) error {
	p.mu.RLock()
	start := p.active
	p.mu.RUnlock()

	var lastErr error
	for i, idx := range p.candidates(start) {
		ep := p.endpoints[idx]

		if i > 0 && !p.alive(ctx, ep) {
			continue
		}

		err := retry.Do(ctx, policy, failoverKinds, func(ctx context.Context) error {
			err := fn(ctx, ep.Client)
			if err == nil {
				return nil
			}
			return transport.Classify(op, err, ep.Hints)
		})
		if err == nil {
			if idx != start {
				p.switchTo(start, idx)
			}
			return nil
		}
		if !failoverKinds(err) || ctx.Err() != nil {
			return err
		}
		lastErr = err
		p.log.Warn().Err(err).Str("endpoint", ep.URL).Msg("Endpoint failing, trying next")
	}
	return lastErr
}

// candidates returns the active node followed by the others, healthy nodes
// first, then by success rate, keeping configured order on ties
func (p *Pool) candidates(start int) []int {
	order := make([]int, 0, len(p.endpoints))
	for i := 1; i < len(p.endpoints); i++ {
		order = append(order, (start+i)%len(p.endpoints))
	}
	if p.monitor != nil && len(order) > 1 {
		type rank struct {
			healthy bool
			rate    float64
		}
		ranks := make(map[int]rank, len(order))
		for _, idx := range order {
			snap := p.monitor.Snapshot(p.chain, p.endpoints[idx].URL)
			r := rank{healthy: snap.Healthy(), rate: 100}
			if snap.Total > 0 {
				r.rate = snap.SuccessRate
			}
			ranks[idx] = r
		}
		sort.SliceStable(order, func(i, j int) bool {
			a, b := ranks[order[i]], ranks[order[j]]
			if a.healthy != b.healthy {
				return a.healthy
			}
			return a.rate > b.rate
		})
	}
	return append([]int{start}, order...)
}

func (p *Pool) alive(ctx context.Context, ep Endpoint) bool {
	status, err := ep.Client.GetHealth(ctx)
	if err != nil {
		p.log.Debug().Err(err).Str("endpoint", ep.URL).Msg("Endpoint not healthy")
		return false
	}
	return status == "" || status == "ok"
}

func (p *Pool) switchTo(from, to int) {
	p.mu.Lock()
	if p.active == from {
		p.active = to
	}
	p.mu.Unlock()

	p.log.Warn().
		Str("from", p.endpoints[from].URL).
		Str("to", p.endpoints[to].URL).
		Msg("Switched RPC endpoint")
	if p.monitor != nil {
		p.monitor.RecordFailover(p.chain)
	}
}

// endpointChecker reports one pool node to the health monitor
type endpointChecker struct {
	chain string
	ep    Endpoint
}

func (c endpointChecker) Chain() string { return c.chain }

func (c endpointChecker) Name() string { return c.ep.URL }

func (c endpointChecker) Ping(ctx context.Context) error {
	status, err := c.ep.Client.GetHealth(ctx)
	if err != nil {
		return err
	}
	if status != "" && status != "ok" {
		return types.E(types.NodeUnavailable, "solana.health", "node reports %s", status)
	}
	return nil
}

// Checkers returns one health checker per node
func (p *Pool) Checkers() []health.Checker {
	out := make([]health.Checker, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		out = append(out, endpointChecker{chain: p.chain, ep: ep})
	}
	return out
}

// Package broadcast drives a transaction through
// Built → Signed → Submitted → {Confirmed | Failed | TimedOut}.
// Chain specifics live behind Driver; this package owns rebuild, rate-limit
// and polling bounds.
package broadcast

import (
	"context"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"wallet-engine/pkg/health"
	"wallet-engine/pkg/retry"
	"wallet-engine/pkg/types"
)

// Signed is a transaction ready for submission. It is never repaired: a stale
// one is dropped and the driver signs a fresh one.
type Signed struct {
	Hash    string
	Payload interface{}
}

// Observation is one status poll
type Observation struct {
	Status   types.TxStatus
	BlockRef string
	FeePaid  *big.Int
	Err      string
}

// Driver performs the chain-specific steps.
type Driver interface {
	// Sign builds the transaction against a freshly fetched blockhash or nonce
	Sign(ctx context.Context) (*Signed, error)
	Submit(ctx context.Context, tx *Signed) (string, error)
	// Poll reports Pending until the transaction reaches a terminal state
	Poll(ctx context.Context, hash string) (*Observation, error)
}

// PollPolicy bounds confirmation polling. At least one of MaxAttempts and
// Timeout must be set.
type PollPolicy struct {
	MaxAttempts int
	Timeout     time.Duration
	InitialWait time.Duration
	// Step and Cap give the pause before poll i: min(Step*(i+1), Cap)
	Step time.Duration
	Cap  time.Duration
}

// Delay returns the pause before the poll with the given 0-based index
func (p PollPolicy) Delay(i int) time.Duration {
	d := p.Step * time.Duration(i+1)
	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	return d
}

// MinPollStep is the pause used when a policy sets no Step
const MinPollStep = 500 * time.Millisecond

// Config bounds the state machine
type Config struct {
	Chain       string
	MaxRebuilds int
	// Submit retries RateLimited and NodeUnavailable without consuming a rebuild
	Submit retry.Policy
	Poll   PollPolicy
}

// Machine runs drivers under one Config
type Machine struct {
	cfg     Config
	log     zerolog.Logger
	monitor *health.Monitor
}

// New creates a machine; monitor may be nil
func New(cfg Config, log zerolog.Logger, monitor *health.Monitor) *Machine {
	if cfg.MaxRebuilds < 0 {
		cfg.MaxRebuilds = 0
	}
	if cfg.Poll.MaxAttempts <= 0 && cfg.Poll.Timeout <= 0 {
		cfg.Poll.MaxAttempts = 30
	}
	if cfg.Poll.Step <= 0 {
		cfg.Poll.Step = MinPollStep
	}
	if cfg.Submit.MaxAttempts <= 0 {
		cfg.Submit = retry.Default
	}
	return &Machine{cfg: cfg, log: log, monitor: monitor}
}

// Config returns the effective bounds
func (m *Machine) Config() Config {
	return m.cfg
}

var networkRetry = retry.OnlyKinds(types.RateLimited, types.NodeUnavailable)

// Run drives one transaction to a terminal state. Before submission errors are
// returned with a nil result. Once a hash exists the result is always returned;
// Failed and TimedOut outcomes also return a TransactionFailed or
// TransactionTimedOut error.
func (m *Machine) Run(ctx context.Context, d Driver, onSubmitted func(hash string)) (*types.BroadcastResult, error) {
	var (
		hash string
		err  error
	)

	for rebuild := 0; ; rebuild++ {
		hash, err = m.signAndSubmit(ctx, d)
		if err == nil {
			if onSubmitted != nil {
				onSubmitted(hash)
			}
			res := m.confirm(ctx, d, hash)
			res.Rebuilds = rebuild
			return m.finish(res)
		}
		if !types.Is(err, types.StaleSigningContext) {
			return nil, err
		}
		if rebuild >= m.cfg.MaxRebuilds {
			m.log.Error().Err(err).Int("rebuilds", rebuild).Msg("Rebuild budget exhausted")
			return nil, types.Wrap(types.StaleSigningContext, "broadcast", err)
		}
		m.log.Warn().Err(err).Int("rebuild", rebuild+1).Int("max", m.cfg.MaxRebuilds).Msg("Stale signing context, rebuilding")
	}
}

func (m *Machine) signAndSubmit(ctx context.Context, d Driver) (string, error) {
	var signed *Signed
	err := retry.Do(ctx, m.cfg.Submit, networkRetry, func(ctx context.Context) error {
		var err error
		signed, err = d.Sign(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	m.log.Debug().Str("hash", signed.Hash).Msg("Signed")

	var hash string
	err = retry.DoNotify(ctx, m.cfg.Submit, networkRetry, func(ctx context.Context) error {
		var err error
		hash, err = d.Submit(ctx, signed)
		return err
	}, func(attempt int, err error, wait time.Duration) {
		m.log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("Submission retry")
	})
	if err != nil {
		return "", err
	}
	if hash == "" {
		hash = signed.Hash
	}
	m.log.Info().Str("hash", hash).Msg("Submitted")
	return hash, nil
}

func (m *Machine) confirm(ctx context.Context, d Driver, hash string) *types.BroadcastResult {
	res := &types.BroadcastResult{TxHash: hash, Status: types.StatusSubmitted}
	p := m.cfg.Poll

	var deadline time.Time
	if p.Timeout > 0 {
		deadline = time.Now().Add(p.Timeout)
	}

	var hint time.Duration
	for i := 0; p.MaxAttempts <= 0 || i < p.MaxAttempts; i++ {
		wait := p.InitialWait
		if i > 0 {
			wait = p.Delay(i - 1)
		}
		if hint > 0 {
			wait, hint = hint, 0
		}
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			if wait > remaining {
				wait = remaining
			}
		}
		if err := retry.Sleep(ctx, wait); err != nil {
			res.RawError = err.Error()
			break
		}

		obs, err := d.Poll(ctx, hash)
		if err != nil {
			if ctx.Err() != nil {
				res.RawError = ctx.Err().Error()
				break
			}
			hint = types.RetryAfterOf(err)
			m.log.Debug().Err(err).Int("attempt", i+1).Msg("Status poll failed")
			continue
		}
		if obs == nil || !obs.Status.Terminal() {
			m.log.Debug().Int("attempt", i+1).Str("hash", hash).Msg("Not yet final")
			continue
		}

		res.Status = obs.Status
		res.BlockRef = obs.BlockRef
		res.FeePaid = obs.FeePaid
		res.RawError = obs.Err
		return res
	}

	res.Status = types.StatusTimedOut
	return res
}

func (m *Machine) finish(res *types.BroadcastResult) (*types.BroadcastResult, error) {
	if m.monitor != nil {
		m.monitor.RecordBroadcast(m.cfg.Chain, string(res.Status), res.Rebuilds)
	}
	switch res.Status {
	case types.StatusConfirmed:
		m.log.Info().Str("hash", res.TxHash).Str("block", res.BlockRef).Msg("Confirmed")
		return res, nil
	case types.StatusFailed:
		m.log.Error().Str("hash", res.TxHash).Str("error", res.RawError).Msg("Transaction failed on chain")
		return res, types.E(types.TransactionFailed, "broadcast", "transaction %s failed: %s", res.TxHash, res.RawError)
	default:
		m.log.Warn().Str("hash", res.TxHash).Msg("Confirmation timed out, transaction may still land")
		return res, types.E(types.TransactionTimedOut, "broadcast", "transaction %s not final within bound; check again later", res.TxHash)
	}
}

// Package bridge moves assets across chains through the 1Click API. The
// deposit leg is an ordinary engine transfer from a managed wallet to the
// quoted deposit address.
package bridge

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wallet-engine/pkg/cache"
	"wallet-engine/pkg/client"
	"wallet-engine/pkg/engine"
	"wallet-engine/pkg/retry"
	"wallet-engine/pkg/types"
)

// DefaultPollInterval is the pause between status checks while watching
const DefaultPollInterval = 10 * time.Second

// chainNames maps engine chain ids to the API's blockchain names
var chainNames = map[types.ChainID]string{
	"eth":      "eth",
	"bsc":      "bsc",
	"arbitrum": "arb",
	"base":     "base",
	"solana":   "sol",
	"matic":    "pol",
	"polygon":  "pol",
	"avax":     "avax",
	"optimism": "op",
}

// Blockchain returns the API's name for a chain. Chains the engine does not
// manage, such as near or btc, pass through unchanged.
func Blockchain(id types.ChainID) string {
	id = id.Normalize()
	if name, ok := chainNames[id]; ok {
		return name
	}
	return string(id)
}

// API is the subset of the 1Click client the bridge uses
type API interface {
	Tokens(ctx context.Context) ([]client.Token, error)
	Quote(ctx context.Context, req client.QuoteRequest) (*client.Quote, error)
	Status(ctx context.Context, depositAddress string) (*types.BridgeStatus, error)
	SubmitDeposit(ctx context.Context, depositAddress, txHash string) error
}

// Executor sends the deposit transaction
type Executor interface {
	Execute(ctx context.Context, intent *types.Intent, opts engine.ExecuteOptions) (*types.BroadcastResult, error)
}

// Request is one cross-chain transfer
type Request struct {
	FromChain types.ChainID
	ToChain   types.ChainID
	FromToken string
	ToToken   string
	Amount    decimal.Decimal
	Recipient string
	// RefundTo receives the funds on the source chain if the bridge fails
	RefundTo    string
	WalletID    string
	SlippageBps int32
}

// Plan is a priced request
type Plan struct {
	Origin      client.Token  `json:"origin"`
	Destination client.Token  `json:"destination"`
	Quote       *client.Quote `json:"quote"`
}

// Result is the outcome of Execute
type Result struct {
	Plan
	Deposit  *types.BroadcastResult `json:"deposit,omitempty"`
	Warnings []string               `json:"warnings,omitempty"`
}

// Options wires optional collaborators
type Options struct {
	PollInterval time.Duration
	Statuses     *cache.TTL[string, types.BridgeStatus]
	Retry        retry.Policy
	Log          zerolog.Logger
}

// Bridge runs cross-chain transfers
type Bridge struct {
	api      API
	exec     Executor
	statuses *cache.TTL[string, types.BridgeStatus]
	poll     time.Duration
	retry    retry.Policy
	log      zerolog.Logger
}

// New creates a bridge; exec may be nil for quote-only use
func New(api API, exec Executor, opts Options) *Bridge {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Statuses == nil {
		opts.Statuses = cache.NewTTL[string, types.BridgeStatus](cache.DefaultSize, cache.DefaultStatusTTL)
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.Default
	}
	return &Bridge{api: api, exec: exec, statuses: opts.Statuses, poll: opts.PollInterval, retry: opts.Retry, log: opts.Log}
}

// Tokens lists the bridgeable tokens
func (b *Bridge) Tokens(ctx context.Context) ([]client.Token, error) {
	var tokens []client.Token
	err := retry.Do(ctx, b.retry, retry.Transient, func(ctx context.Context) error {
		var err error
		tokens, err = b.api.Tokens(ctx)
		return err
	})
	return tokens, err
}

func (b *Bridge) resolve(ctx context.Context, req *Request) (*Plan, error) {
	const op = "bridge.resolve"
	if !req.Amount.IsPositive() {
		return nil, types.E(types.InvalidAmount, op, "amount must be greater than 0, got %s", req.Amount)
	}
	if req.Recipient == "" {
		return nil, types.E(types.InvalidAddress, op, "recipient address is required")
	}

	tokens, err := b.Tokens(ctx)
	if err != nil {
		return nil, err
	}
	origin, err := client.MatchToken(tokens, req.FromToken, Blockchain(req.FromChain))
	if err != nil {
		return nil, err
	}
	dest, err := client.MatchToken(tokens, req.ToToken, Blockchain(req.ToChain))
	if err != nil {
		return nil, err
	}
	if origin.AssetID == dest.AssetID {
		return nil, types.E(types.RouteMismatch, op, "source and destination are the same asset %s", origin.AssetID)
	}
	return &Plan{Origin: *origin, Destination: *dest}, nil
}

func (b *Bridge) quote(ctx context.Context, req *Request, plan *Plan, dry bool) error {
	return retry.Do(ctx, b.retry, retry.OnlyKinds(types.RateLimited, types.NodeUnavailable), func(ctx context.Context) error {
		q, err := b.api.Quote(ctx, client.QuoteRequest{
			Dry:              dry,
			OriginAsset:      plan.Origin.AssetID,
			DestinationAsset: plan.Destination.AssetID,
			Amount:           plan.Origin.BaseUnits(req.Amount),
			SlippageBps:      req.SlippageBps,
			Recipient:        req.Recipient,
			RefundTo:         req.RefundTo,
		})
		if err != nil {
			return err
		}
		plan.Quote = q
		return nil
	})
}

// Quote prices a request without reserving a deposit address
func (b *Bridge) Quote(ctx context.Context, req Request) (*Plan, error) {
	plan, err := b.resolve(ctx, &req)
	if err != nil {
		return nil, err
	}
	if err := b.quote(ctx, &req, plan, true); err != nil {
		return nil, err
	}
	return plan, nil
}

// Execute quotes the request for real, sends the deposit from the wallet and
// reports the deposit hash to the API. The API status is not awaited; use
// Watch for that.
func (b *Bridge) Execute(ctx context.Context, req Request) (*Result, error) {
	const op = "bridge.execute"
	if b.exec == nil {
		return nil, types.E(types.ExecutionFailed, op, "bridge has no executor")
	}
	if req.WalletID == "" {
		return nil, types.E(types.WalletUnavailable, op, "a wallet is required to send the deposit")
	}
	if req.RefundTo == "" {
		return nil, types.E(types.InvalidAddress, op, "refund address on %s is required", req.FromChain)
	}

	plan, err := b.resolve(ctx, &req)
	if err != nil {
		return nil, err
	}
	if err := b.quote(ctx, &req, plan, false); err != nil {
		return nil, err
	}
	q := plan.Quote
	if q.DepositAddress == "" {
		return nil, types.E(types.QuoteUnavailable, op, "quote carries no deposit address")
	}
	if q.DepositMemo != "" {
		return nil, types.E(types.ExecutionFailed, op, "deposit to %s requires memo %q, send it manually", q.DepositAddress, q.DepositMemo)
	}

	intent := &types.Intent{
		Kind:     types.OpNativeTransfer,
		Chain:    req.FromChain,
		WalletID: req.WalletID,
		To:       q.DepositAddress,
		Asset:    types.NativeAsset,
		Amount:   req.Amount,
	}
	if plan.Origin.ContractAddress != "" {
		intent.Kind = types.OpTokenTransfer
		intent.Asset = plan.Origin.ContractAddress
	}

	log := b.log.With().Str("deposit_address", q.DepositAddress).Logger()
	log.Info().Str("origin", plan.Origin.AssetID).Str("destination", plan.Destination.AssetID).
		Str("amount", req.Amount.String()).Msg("Sending bridge deposit")

	out := &Result{Plan: *plan}
	res, err := b.exec.Execute(ctx, intent, engine.ExecuteOptions{})
	out.Deposit = res
	if err != nil {
		return out, err
	}

	if err := b.api.SubmitDeposit(ctx, q.DepositAddress, res.TxHash); err != nil {
		// the API also detects deposits on its own
		log.Warn().Err(err).Str("tx_hash", res.TxHash).Msg("Failed to submit deposit hash")
		out.Warnings = append(out.Warnings, "deposit hash not submitted: "+err.Error())
	}
	return out, nil
}

// Status returns the execution status of a deposit, served from cache while fresh
func (b *Bridge) Status(ctx context.Context, depositAddress string) (*types.BridgeStatus, error) {
	if st, ok := b.statuses.Get(cache.StatusKey(depositAddress)); ok {
		return &st, nil
	}
	return b.refresh(ctx, depositAddress)
}

func (b *Bridge) refresh(ctx context.Context, depositAddress string) (*types.BridgeStatus, error) {
	depositAddress = strings.TrimSpace(depositAddress)
	if depositAddress == "" {
		return nil, types.E(types.InvalidAddress, "bridge.status", "deposit address is required")
	}
	var st *types.BridgeStatus
	err := retry.Do(ctx, b.retry, retry.OnlyKinds(types.RateLimited, types.NodeUnavailable), func(ctx context.Context) error {
		var err error
		st, err = b.api.Status(ctx, depositAddress)
		return err
	})
	if err != nil {
		return nil, err
	}
	b.statuses.Put(cache.StatusKey(depositAddress), *st)
	return st, nil
}

// Watch polls the deposit until it settles or ctx ends. onUpdate sees every
// status change.
func (b *Bridge) Watch(ctx context.Context, depositAddress string, onUpdate func(*types.BridgeStatus)) (*types.BridgeStatus, error) {
	var last string
	for {
		st, err := b.refresh(ctx, depositAddress)
		if err != nil {
			return nil, err
		}
		if st.Status != last {
			last = st.Status
			b.log.Info().Str("deposit_address", depositAddress).Str("status", st.Status).Msg("Bridge status changed")
			if onUpdate != nil {
				onUpdate(st)
			}
		}
		if st.Terminal() {
			return st, nil
		}
		if err := retry.Sleep(ctx, b.poll); err != nil {
			return st, types.Wrap(types.TransactionTimedOut, "bridge.watch", err)
		}
	}
}

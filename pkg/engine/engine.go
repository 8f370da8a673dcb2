// Package engine is the public entry point of the wallet engine. It resolves
// the chain adapter for an intent, enforces the chain-independent checks and
// hands terminal outcomes to the recorder.
package engine

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wallet-engine/pkg/chain"
	"wallet-engine/pkg/health"
	"wallet-engine/pkg/price"
	"wallet-engine/pkg/recorder"
	"wallet-engine/pkg/store"
	"wallet-engine/pkg/types"
)

// DefaultQuoteTTL is how long a quote may be executed after it was fetched
const DefaultQuoteTTL = 60 * time.Second

// Wallets is the key-store collaborator
type Wallets interface {
	Wallet(ctx context.Context, id string) (*types.Wallet, error)
	// Decrypt returns key material the engine wipes after one operation
	Decrypt(ctx context.Context, w *types.Wallet) (chain.Signer, error)
}

// Prices values fees and balances in USD
type Prices interface {
	Price(ctx context.Context, chain types.ChainID, address string) (*types.Price, error)
}

// Tokens caches token metadata across runs
type Tokens interface {
	GetToken(ctx context.Context, chain types.ChainID, address string) (*types.Token, error)
	PutToken(ctx context.Context, t *types.Token) error
}

// Options wires optional collaborators
type Options struct {
	QuoteTTL time.Duration
	// AllowSelfTransfer disables the sender == recipient check
	AllowSelfTransfer bool
	Prices            Prices
	Tokens            Tokens
	Monitor           *health.Monitor
	// Checkers are probed by CheckHealth next to the adapters
	Checkers []health.Checker
	Log      zerolog.Logger
	Now      func() time.Time
}

// Engine executes intents against registered chains
type Engine struct {
	registry *chain.Registry
	wallets  Wallets
	recorder *recorder.Recorder
	prices   Prices
	tokens   Tokens
	monitor  *health.Monitor
	checkers []health.Checker
	log      zerolog.Logger
	now      func() time.Time

	quoteTTL          time.Duration
	allowSelfTransfer bool
}

// New creates an engine
func New(registry *chain.Registry, wallets Wallets, rec *recorder.Recorder, opts Options) *Engine {
	if opts.QuoteTTL <= 0 {
		opts.QuoteTTL = DefaultQuoteTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Monitor == nil {
		opts.Monitor = health.NewMonitor(0)
	}
	return &Engine{
		registry:          registry,
		wallets:           wallets,
		recorder:          rec,
		prices:            opts.Prices,
		tokens:            opts.Tokens,
		monitor:           opts.Monitor,
		checkers:          opts.Checkers,
		log:               opts.Log,
		now:               opts.Now,
		quoteTTL:          opts.QuoteTTL,
		allowSelfTransfer: opts.AllowSelfTransfer,
	}
}

// Registry exposes the configured chains
func (e *Engine) Registry() *chain.Registry {
	return e.registry
}

// GetQuote fetches a fresh swap quote
func (e *Engine) GetQuote(ctx context.Context, intent *types.Intent) (*types.Quote, error) {
	const op = "engine.quote"
	if intent.Kind != types.OpSwap {
		return nil, types.E(types.QuoteUnavailable, op, "only swaps are quoted, got %s", intent.Kind)
	}
	if err := e.validate(intent); err != nil {
		return nil, err
	}
	swapper, err := e.registry.Swapper(intent.Chain)
	if err != nil {
		return nil, err
	}
	q, err := swapper.Quote(ctx, intent)
	return q, types.Boundary(op, err)
}

// EstimateFee estimates the fee of an intent. Swaps use quote, fetching one
// when it is nil. The USD valuation is best effort.
func (e *Engine) EstimateFee(ctx context.Context, intent *types.Intent, quote *types.Quote) (*types.FeeEstimate, error) {
	const op = "engine.fee"
	if err := e.validate(intent); err != nil {
		return nil, err
	}

	var (
		fee *types.FeeEstimate
		err error
	)
	switch intent.Kind {
	case types.OpNativeTransfer, types.OpTokenTransfer:
		var t chain.Transfer
		if t, err = e.registry.Transferer(intent.Chain); err == nil {
			fee, err = t.EstimateTransferFee(ctx, intent)
		}
	case types.OpNFTTransfer:
		var n chain.NFT
		if n, err = e.registry.NFTs(intent.Chain); err == nil {
			fee, err = n.EstimateNFTFee(ctx, intent)
		}
	case types.OpSwap:
		var s chain.Swap
		if s, err = e.registry.Swapper(intent.Chain); err != nil {
			break
		}
		if quote == nil {
			if quote, err = s.Quote(ctx, intent); err != nil {
				break
			}
		}
		fee, err = s.EstimateSwapFee(ctx, intent, quote)
	}
	if err != nil {
		return nil, types.Boundary(op, err)
	}

	e.valueFee(ctx, intent.Chain, fee)
	return fee, nil
}

func (e *Engine) valueFee(ctx context.Context, id types.ChainID, fee *types.FeeEstimate) {
	if e.prices == nil || fee == nil {
		return
	}
	entry, err := e.registry.Get(id)
	if err != nil {
		return
	}
	p, err := e.prices.Price(ctx, id, types.NativeAsset)
	if err != nil {
		e.log.Debug().Err(err).Str("chain", string(id)).Msg("Fee left unpriced")
		return
	}
	native := types.FromBaseUnits(fee.MaxCost(), entry.Adapter.Params().NativeDecimals)
	fee.ValueUSD = price.Value(p, native).Round(4)
}

// ExecuteOptions carries the optional inputs of Execute
type ExecuteOptions struct {
	// Fee replaces the adapter's own estimate
	Fee *types.FeeEstimate
	// Quote is the swap quote to execute; a fresh one is fetched when nil
	Quote *types.Quote
}

// Execute signs, broadcasts and confirms an intent, then records the outcome.
// Once a transaction hash exists the result is returned even when err is set.
func (e *Engine) Execute(ctx context.Context, in *types.Intent, opts ExecuteOptions) (*types.BroadcastResult, error) {
	const op = "engine.execute"

	entry, err := e.registry.Get(in.Chain)
	if err != nil {
		return nil, err
	}
	w, err := e.wallets.Wallet(ctx, in.WalletID)
	if err != nil {
		return nil, types.Boundary(op, err)
	}

	intent := *in
	if intent.From == "" {
		intent.From = w.Address
	}
	if err := e.checkWallet(w, &intent); err != nil {
		return nil, err
	}
	if err := e.validate(&intent); err != nil {
		return nil, err
	}
	if opts.Fee != nil {
		if err := opts.Fee.Validate(); err != nil {
			return nil, err
		}
	}

	quote := opts.Quote
	if intent.Kind == types.OpSwap && quote != nil {
		if entry.Swap == nil {
			return nil, types.E(types.UnsupportedChain, op, "chain %s does not support swaps", intent.Chain)
		}
		if quote.Expired(e.now(), e.quoteTTL) {
			return nil, types.E(types.RouteMismatch, op, "quote expired %s ago, fetch a new one",
				e.now().Sub(quote.CreatedAt).Round(time.Second))
		}
		if err := entry.Swap.ValidateRoute(&intent, quote); err != nil {
			return nil, err
		}
	}

	signer, err := e.wallets.Decrypt(ctx, w)
	if err != nil {
		return nil, types.Boundary(op, err)
	}
	defer signer.Wipe()

	exec := chain.Execution{
		Intent: &intent,
		Signer: signer,
		Fee:    opts.Fee,
		Quote:  quote,
		OnSubmitted: func(hash string) {
			marker := &types.BroadcastResult{Chain: intent.Chain, Kind: intent.Kind, TxHash: hash, Status: types.StatusSubmitted}
			if err := e.recorder.MarkSubmitted(ctx, recorder.Entry{Intent: &intent, Wallet: w.ID, Result: marker}); err != nil {
				e.log.Warn().Err(err).Str("tx_hash", hash).Msg("Failed to write submitted marker")
			}
		},
	}

	log := e.log.With().Str("chain", string(intent.Chain)).Str("kind", string(intent.Kind)).Str("wallet", w.ID).Logger()
	log.Info().Str("from", intent.From).Str("to", intent.To).Str("amount", intent.Amount.String()).Msg("Executing intent")

	res, err := e.dispatch(ctx, entry, &intent, exec)
	if res != nil {
		if res.Explorer == "" {
			res.Explorer = entry.Adapter.Params().ExplorerTxURL(res.TxHash)
		}
		// broadcast outcomes are counted by the adapter's state machine
		e.recorder.Save(ctx, recorder.Entry{Intent: &intent, Wallet: w.ID, Result: res})
		log.Info().Str("tx_hash", res.TxHash).Str("status", string(res.Status)).Int("rebuilds", res.Rebuilds).Msg("Execution finished")
	}
	if err != nil {
		log.Error().Err(err).Msg("Execution failed")
	}
	return res, types.Boundary(op, err)
}

func (e *Engine) dispatch(ctx context.Context, entry *chain.Entry, intent *types.Intent, exec chain.Execution) (*types.BroadcastResult, error) {
	switch intent.Kind {
	case types.OpNativeTransfer, types.OpTokenTransfer:
		if entry.Transfer == nil {
			return nil, types.E(types.UnsupportedChain, "engine.execute", "chain %s does not support transfers", intent.Chain)
		}
		return entry.Transfer.Transfer(ctx, exec)
	case types.OpNFTTransfer:
		if entry.NFT == nil {
			return nil, types.E(types.UnsupportedChain, "engine.execute", "chain %s does not support nft transfers", intent.Chain)
		}
		return entry.NFT.TransferNFT(ctx, exec)
	case types.OpSwap:
		if entry.Swap == nil {
			return nil, types.E(types.UnsupportedChain, "engine.execute", "chain %s does not support swaps", intent.Chain)
		}
		if exec.Quote == nil {
			q, err := entry.Swap.Quote(ctx, intent)
			if err != nil {
				return nil, err
			}
			exec.Quote = q
		}
		return entry.Swap.Swap(ctx, exec)
	}
	return nil, types.E(types.ExecutionFailed, "engine.execute", "unsupported operation %q", intent.Kind)
}

func (e *Engine) checkWallet(w *types.Wallet, intent *types.Intent) error {
	const op = "engine.wallet"
	switch {
	case !w.Active:
		return types.E(types.WalletUnavailable, op, "wallet %s is inactive", w.ID)
	case w.WatchOnly:
		return types.E(types.WalletUnavailable, op, "wallet %s is watch-only", w.ID)
	case w.Chain.Normalize() != intent.Chain.Normalize():
		return types.E(types.WalletUnavailable, op, "wallet %s belongs to %s, not %s", w.ID, w.Chain, intent.Chain)
	case !sameAddress(w.Address, intent.From):
		return types.E(types.InvalidAddress, op, "sender %s is not the address of wallet %s", intent.From, w.ID)
	}
	return nil
}

// validate runs the intent invariants, address checks and the self-transfer policy
func (e *Engine) validate(intent *types.Intent) error {
	if err := intent.Validate(); err != nil {
		return err
	}
	entry, err := e.registry.Get(intent.Chain)
	if err != nil {
		return err
	}
	if err := entry.Adapter.ValidateAddress(intent.From); err != nil {
		return err
	}
	if intent.Kind != types.OpSwap {
		if err := entry.Adapter.ValidateAddress(intent.To); err != nil {
			return err
		}
		if !e.allowSelfTransfer && sameAddress(intent.From, intent.To) {
			return types.E(types.InvalidAddress, "engine.validate", "cannot send to the sender's own address")
		}
	}
	return nil
}

func sameAddress(a, b string) bool {
	if strings.HasPrefix(a, "0x") || strings.HasPrefix(a, "0X") {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// History lists recent activity of an address. Chains without an indexer
// fall back to the records this engine wrote.
func (e *Engine) History(ctx context.Context, id types.ChainID, owner string, limit int) ([]types.HistoryEntry, error) {
	const op = "engine.history"
	entry, err := e.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if err := entry.Adapter.ValidateAddress(owner); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	if entry.History != nil {
		h, err := entry.History.History(ctx, owner, limit)
		return h, types.Boundary(op, err)
	}

	recs, err := e.recorder.List(ctx, store.RecordFilter{Chain: entry.Adapter.Params().ID})
	if err != nil {
		return nil, err
	}
	out := make([]types.HistoryEntry, 0, limit)
	for _, r := range recs {
		if !sameAddress(r.From, owner) && !sameAddress(r.To, owner) {
			continue
		}
		out = append(out, types.HistoryEntry{
			Chain:     r.Chain,
			TxHash:    r.TxHash,
			Status:    r.Status,
			BlockRef:  r.BlockRef,
			Timestamp: r.UpdatedAt,
			Memo:      string(r.Kind),
			Error:     r.Error,
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Records lists stored transaction records
func (e *Engine) Records(ctx context.Context, f store.RecordFilter) ([]*types.TransactionRecord, error) {
	return e.recorder.List(ctx, f)
}

// TokenInfo resolves token metadata, consulting the token store first
func (e *Engine) TokenInfo(ctx context.Context, id types.ChainID, asset string) (*types.Token, error) {
	const op = "engine.token"
	entry, err := e.registry.Get(id)
	if err != nil {
		return nil, err
	}
	params := entry.Adapter.Params()
	if types.IsNative(asset) {
		return &types.Token{Chain: params.ID, Address: types.NativeAsset, Symbol: params.NativeSymbol,
			Name: params.Name, Decimals: params.NativeDecimals}, nil
	}
	if e.tokens != nil {
		if t, err := e.tokens.GetToken(ctx, params.ID, asset); err == nil {
			return t, nil
		}
	}
	if entry.TokenInfo == nil {
		return nil, types.E(types.UnsupportedChain, op, "chain %s does not support token info", id)
	}
	t, err := entry.TokenInfo.TokenInfo(ctx, asset)
	if err != nil {
		return nil, types.Boundary(op, err)
	}
	if e.tokens != nil {
		if err := e.tokens.PutToken(ctx, t); err != nil {
			e.log.Warn().Err(err).Str("token", asset).Msg("Failed to cache token metadata")
		}
	}
	return t, nil
}

// Holding is one balance line
type Holding struct {
	Asset    string          `json:"asset"`
	Symbol   string          `json:"symbol"`
	Amount   decimal.Decimal `json:"amount"`
	ValueUSD decimal.Decimal `json:"value_usd"`
}

// Balances reads the native balance and the given tokens of owner
func (e *Engine) Balances(ctx context.Context, id types.ChainID, owner string, assets ...string) ([]Holding, error) {
	const op = "engine.balances"
	bal, err := e.registry.Balances(id)
	if err != nil {
		return nil, err
	}
	entry, _ := e.registry.Get(id)
	if err := entry.Adapter.ValidateAddress(owner); err != nil {
		return nil, err
	}

	assets = append([]string{types.NativeAsset}, assets...)
	out := make([]Holding, 0, len(assets))
	for _, asset := range assets {
		if asset != types.NativeAsset && types.IsNative(asset) {
			continue
		}
		token, err := e.TokenInfo(ctx, id, asset)
		if err != nil {
			return nil, err
		}
		var n *big.Int
		if types.IsNative(asset) {
			n, err = bal.NativeBalance(ctx, owner)
		} else {
			n, err = bal.TokenBalance(ctx, owner, asset)
		}
		if err != nil {
			return nil, types.Boundary(op, err)
		}
		out = append(out, Holding{Asset: asset, Symbol: token.Symbol, Amount: types.FromBaseUnits(n, token.Decimals)})
	}

	if e.prices != nil {
		for i := range out {
			if p, err := e.prices.Price(ctx, id, out[i].Asset); err == nil {
				out[i].ValueUSD = price.Value(p, out[i].Amount).Round(2)
			}
		}
	}
	return out, nil
}

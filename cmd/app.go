package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wallet-engine/config"
	"wallet-engine/pkg/bridge"
	"wallet-engine/pkg/broadcast"
	"wallet-engine/pkg/cache"
	"wallet-engine/pkg/chain"
	"wallet-engine/pkg/chain/evm"
	"wallet-engine/pkg/chain/solana"
	"wallet-engine/pkg/client"
	"wallet-engine/pkg/engine"
	"wallet-engine/pkg/health"
	"wallet-engine/pkg/keystore"
	"wallet-engine/pkg/log"
	"wallet-engine/pkg/price"
	"wallet-engine/pkg/recorder"
	"wallet-engine/pkg/retry"
	"wallet-engine/pkg/store"
	"wallet-engine/pkg/transport"
	"wallet-engine/pkg/types"
)

const httpTimeout = 30 * time.Second

// app holds the components one command run needs
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    store.Store
	keystore *keystore.Keystore
	caches   *cache.Service
	monitor  *health.Monitor
	registry *chain.Registry
	prices   *price.Provider
	engine   *engine.Engine
	retry    retry.Policy
}

// newApp wires the engine from configuration. Nothing here talks to the
// network; clients connect lazily on first use.
func newApp(ctx context.Context) (*app, error) {
	cfg := config.Get()

	a := &app{
		cfg:      cfg,
		log:      log.WithComponent("cli"),
		caches:   cache.New(cache.Config{Size: cfg.Cache.Size, PriceTTL: cfg.Cache.PriceTTL, StatusTTL: cfg.Cache.StatusTTL, TokenTTL: cfg.Cache.TokenTTL}),
		monitor:  health.NewMonitor(cfg.Health.Timeout),
		registry: chain.NewRegistry(),
		retry:    retry.Policy{MaxAttempts: cfg.Retry.MaxAttempts, BaseDelay: cfg.Retry.BaseDelay, MaxDelay: cfg.Retry.MaxDelay},
	}

	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.store = st
	a.keystore = keystore.New(st, cfg.Keystore.Passphrase, keystore.DefaultParams(), log.WithComponent("keystore"))

	for _, c := range cfg.EVMChains() {
		if err := a.addEVM(ctx, c); err != nil {
			a.Close()
			return nil, err
		}
	}

	var checkers []health.Checker
	if cfg.Solana.Enabled {
		pool, err := a.addSolana()
		if err != nil {
			a.Close()
			return nil, err
		}
		checkers = append(checkers, pool.Checkers()...)
	}

	pt := transport.New(transport.Options{Chain: "price", Target: cfg.Price.EVMBaseURL, Monitor: a.monitor})
	a.prices = price.New(price.Config{
		EVMBaseURL:    cfg.Price.EVMBaseURL,
		SolanaBaseURL: cfg.Price.SolanaBaseURL,
		APIKey:        cfg.Price.APIKey,
	}, pt.Client(httpTimeout), pt, a.caches.Prices, a.retry, log.WithComponent("price"))
	for _, ad := range a.registry.Adapters() {
		a.prices.Register(ad.Params())
	}

	a.engine = engine.New(a.registry, a.keystore, recorder.New(st, log.WithComponent("recorder")), engine.Options{
		QuoteTTL:          cfg.Policy.QuoteTTL,
		AllowSelfTransfer: !cfg.Policy.RejectSelfTransfer,
		Prices:            a.prices,
		Tokens:            st,
		Monitor:           a.monitor,
		Checkers:          checkers,
		Log:               log.WithComponent("engine"),
	})
	return a, nil
}

func (a *app) submitPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: a.cfg.Broadcast.RateLimitRetries + 1, BaseDelay: a.cfg.Retry.BaseDelay, MaxDelay: a.cfg.Retry.MaxDelay}
}

func (a *app) addEVM(ctx context.Context, c evm.Config) error {
	b := a.cfg.Broadcast
	tr := transport.New(transport.Options{Chain: string(c.ID), Target: c.RPCURL, RPS: c.RPS, Monitor: a.monitor})
	ec, err := evm.Dial(ctx, c.RPCURL, tr.Client(httpTimeout))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.ID, err)
	}
	adapter := evm.New(c, ec, evm.Options{
		Broadcast: broadcast.Config{
			MaxRebuilds: b.MaxRebuilds,
			Submit:      a.submitPolicy(),
			Poll: broadcast.PollPolicy{
				Timeout: b.ReceiptTimeout,
				Step:    b.ReceiptPollInterval,
				Cap:     b.ReceiptPollInterval,
			},
		},
		Retry:   a.retry,
		Log:     log.WithComponent("evm"),
		Monitor: a.monitor,
		Hints:   tr,
		Tokens:  a.caches.Tokens,
	})
	return a.registry.Register(adapter)
}

func (a *app) addSolana() (*solana.Pool, error) {
	sc := a.cfg.SolanaChain()
	b := a.cfg.Broadcast

	var endpoints []solana.Endpoint
	for _, url := range sc.URLs() {
		tr := transport.New(transport.Options{Chain: string(sc.ID), Target: url, RPS: sc.RPS, Monitor: a.monitor})
		endpoints = append(endpoints, solana.Endpoint{URL: url, Client: solana.NewRPC(url, tr.Client(httpTimeout)), Hints: tr})
	}
	pool, err := solana.NewPool(string(sc.ID), endpoints, a.retry, a.monitor, log.WithChain("pool", string(sc.ID)))
	if err != nil {
		return nil, err
	}

	jt := transport.New(transport.Options{Chain: string(sc.ID), Target: sc.JupiterURL, Monitor: a.monitor})
	adapter := solana.New(sc, pool, solana.Options{
		Broadcast: broadcast.Config{
			MaxRebuilds: b.MaxRebuilds,
			Submit:      a.submitPolicy(),
			Poll:        broadcast.PollPolicy{MaxAttempts: b.MaxPolls, Step: b.PollStep, Cap: b.PollCap},
		},
		Log:     log.WithComponent("solana"),
		Monitor: a.monitor,
		Tokens:  a.caches.Tokens,
		Jupiter: solana.NewJupiter(sc.JupiterURL, jt.Client(httpTimeout), jt, a.retry),
	})
	if err := a.registry.Register(adapter); err != nil {
		return nil, err
	}
	return pool, nil
}

// bridge builds the 1Click bridge on demand; it needs a JWT token
func (a *app) bridge() (*bridge.Bridge, error) {
	return a.pollingBridge(0)
}

// pollingBridge is bridge with a custom watch interval, zero for the default
func (a *app) pollingBridge(interval time.Duration) (*bridge.Bridge, error) {
	if err := a.cfg.RequireOneClick(); err != nil {
		return nil, err
	}
	tr := transport.New(transport.Options{Chain: "oneclick", Target: a.cfg.OneClick.BaseURL, Monitor: a.monitor})
	api := client.NewOneClick(client.Config{JWTToken: a.cfg.OneClick.JWTToken, BaseURL: a.cfg.OneClick.BaseURL}, tr.Client(httpTimeout))
	return bridge.New(api, a.engine, bridge.Options{
		PollInterval: interval,
		Statuses:     a.caches.Status,
		Retry:        a.retry,
		Log:          log.WithComponent("bridge"),
	}), nil
}

// resolveAsset turns a symbol or address typed on the command line into an
// asset reference for the chain. Symbols other than the native one are
// looked up in the bridge token list.
func (a *app) resolveAsset(ctx context.Context, id types.ChainID, ref string) (string, error) {
	entry, err := a.registry.Get(id)
	if err != nil {
		return "", err
	}
	params := entry.Adapter.Params()
	if types.IsNative(ref) || strings.EqualFold(ref, params.NativeSymbol) {
		return types.NativeAsset, nil
	}
	if entry.Adapter.ValidateAddress(ref) == nil {
		return ref, nil
	}

	b, err := a.bridge()
	if err != nil {
		return "", fmt.Errorf("cannot resolve symbol %s without the token list (%v); pass the token address instead", ref, err)
	}
	tokens, err := b.Tokens(ctx)
	if err != nil {
		return "", err
	}
	tok, err := client.MatchToken(tokens, ref, bridge.Blockchain(id))
	if err != nil {
		return "", err
	}
	if tok.ContractAddress == "" {
		return types.NativeAsset, nil
	}
	return tok.ContractAddress, nil
}

func (a *app) Close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close store")
	}
}

// withApp runs fn against a freshly wired app and closes it afterwards
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

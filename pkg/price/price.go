// Package price looks up USD token prices from a Moralis-style HTTP API and
// caches them in the shared price cache.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"wallet-engine/pkg/cache"
	"wallet-engine/pkg/retry"
	"wallet-engine/pkg/transport"
	"wallet-engine/pkg/types"
)

const (
	DefaultEVMBaseURL    = "https://deep-index.moralis.io/api/v2.2"
	DefaultSolanaBaseURL = "https://solana-gateway.moralis.io"

	// batchConcurrency bounds concurrent lookups of one batch
	batchConcurrency = 8
)

// moralisChains maps engine chain ids to the API's chain names
var moralisChains = map[types.ChainID]string{
	"eth":      "eth",
	"bsc":      "bsc",
	"matic":    "polygon",
	"polygon":  "polygon",
	"avax":     "avalanche",
	"arbitrum": "arbitrum",
	"optimism": "optimism",
	"base":     "base",
}

// Config points the provider at the API
type Config struct {
	EVMBaseURL    string
	SolanaBaseURL string
	APIKey        string
}

// Provider fetches prices; safe for concurrent use
type Provider struct {
	cfg    Config
	http   *http.Client
	hints  transport.HintSource
	cache  *cache.TTL[string, types.Price]
	retry  retry.Policy
	log    zerolog.Logger
	now    func() time.Time
	mu     sync.RWMutex
	chains map[types.ChainID]types.ChainParams
}

// New creates a provider. prices may be shared with other components.
func New(cfg Config, httpClient *http.Client, hints transport.HintSource, prices *cache.TTL[string, types.Price], policy retry.Policy, logger zerolog.Logger) *Provider {
	if cfg.EVMBaseURL == "" {
		cfg.EVMBaseURL = DefaultEVMBaseURL
	}
	if cfg.SolanaBaseURL == "" {
		cfg.SolanaBaseURL = DefaultSolanaBaseURL
	}
	cfg.EVMBaseURL = strings.TrimRight(cfg.EVMBaseURL, "/")
	cfg.SolanaBaseURL = strings.TrimRight(cfg.SolanaBaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if prices == nil {
		prices = cache.NewTTL[string, types.Price](cache.DefaultSize, cache.DefaultPriceTTL)
	}
	return &Provider{
		cfg:    cfg,
		http:   httpClient,
		hints:  hints,
		cache:  prices,
		retry:  policy,
		log:    logger,
		now:    time.Now,
		chains: make(map[types.ChainID]types.ChainParams),
	}
}

// Register makes a chain priceable
func (p *Provider) Register(params types.ChainParams) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chains[params.ID] = params
}

func (p *Provider) params(id types.ChainID) (types.ChainParams, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	params, ok := p.chains[id]
	if !ok {
		return types.ChainParams{}, types.E(types.UnsupportedChain, "price", "no price source for chain %s", id)
	}
	return params, nil
}

// response covers both the EVM and the Solana payloads
type response struct {
	UsdPrice                  decimal.Decimal  `json:"usdPrice"`
	PercentChange24h          *decimal.Decimal `json:"24hrPercentChange"`
	UsdPrice24hrPercentChange *decimal.Decimal `json:"usdPrice24hrPercentChange"`
}

func (p *Provider) endpoint(params types.ChainParams, address string) (string, error) {
	switch params.Family {
	case types.FamilyEVM:
		name, ok := moralisChains[params.ID]
		if !ok {
			return "", types.E(types.UnsupportedChain, "price", "no price source for chain %s", params.ID)
		}
		return fmt.Sprintf("%s/erc20/%s/price?chain=%s", p.cfg.EVMBaseURL, url.PathEscape(address), name), nil
	case types.FamilySolana:
		return fmt.Sprintf("%s/token/mainnet/%s/price", p.cfg.SolanaBaseURL, url.PathEscape(address)), nil
	}
	return "", types.E(types.UnsupportedChain, "price", "no price source for chain %s", params.ID)
}

// Price returns the USD price of a token, serving from cache while fresh.
// The native asset is priced through the chain's wrapped native token.
func (p *Provider) Price(ctx context.Context, chain types.ChainID, address string) (*types.Price, error) {
	const op = "price.get"
	params, err := p.params(chain)
	if err != nil {
		return nil, err
	}
	if types.IsNative(address) {
		address = params.WrappedNative
	}

	key := cache.PriceKey(chain, address)
	if cached, ok := p.cache.Get(key); ok {
		return &cached, nil
	}

	endpoint, err := p.endpoint(params, address)
	if err != nil {
		return nil, err
	}

	var body []byte
	err = retry.Do(ctx, p.retry, retry.OnlyKinds(types.RateLimited, types.NodeUnavailable), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		body, err = p.do(op, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode price response: %w", err)
	}
	if !resp.UsdPrice.IsPositive() {
		return nil, types.E(types.QuoteUnavailable, op, "no price for %s on %s", address, chain)
	}

	price := types.Price{Chain: chain, Address: address, PriceUSD: resp.UsdPrice, FetchedAt: p.now().UTC()}
	switch {
	case resp.PercentChange24h != nil:
		price.PriceChange24h = *resp.PercentChange24h
	case resp.UsdPrice24hrPercentChange != nil:
		price.PriceChange24h = *resp.UsdPrice24hrPercentChange
	}
	p.cache.Put(key, price)
	return &price, nil
}

// Prices looks up several tokens concurrently. Tokens without a price are
// left out of the result; the call only fails if every lookup failed.
func (p *Provider) Prices(ctx context.Context, chain types.ChainID, addresses []string) (map[string]types.Price, error) {
	var (
		mu      sync.Mutex
		out     = make(map[string]types.Price, len(addresses))
		lastErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for _, address := range addresses {
		address := address
		g.Go(func() error {
			price, err := p.Price(gctx, chain, address)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				p.log.Debug().Err(err).Str("address", address).Msg("Price lookup failed")
				return nil
			}
			out[address] = *price
			return nil
		})
	}
	_ = g.Wait()

	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// NativePrice prices the chain's native coin
func (p *Provider) NativePrice(ctx context.Context, chain types.ChainID) (*types.Price, error) {
	return p.Price(ctx, chain, types.NativeAsset)
}

func (p *Provider) do(op string, req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", p.cfg.APIKey)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, transport.Classify(op, err, p.hints)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, transport.Classify(op, err, p.hints)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e := &types.Error{Kind: types.RateLimited, Op: op, Msg: "price api rate limit"}
		if p.hints != nil {
			e.RetryAfter = p.hints.RetryAfter()
		}
		return nil, e
	case resp.StatusCode >= 500:
		return nil, types.E(types.NodeUnavailable, op, "price api returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, types.E(types.QuoteUnavailable, op, "price api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// Value prices a human-unit amount in USD
func Value(p *types.Price, amount decimal.Decimal) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return amount.Mul(p.PriceUSD)
}

package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"wallet-engine/pkg/broadcast"
	"wallet-engine/pkg/cache"
	"wallet-engine/pkg/chain"
	"wallet-engine/pkg/health"
	"wallet-engine/pkg/retry"
	"wallet-engine/pkg/transport"
	"wallet-engine/pkg/types"
)

// Options wires an Adapter's collaborators
type Options struct {
	Broadcast broadcast.Config
	Retry     retry.Policy
	Log       zerolog.Logger
	Monitor   *health.Monitor
	// Hints yields the endpoint's Retry-After after a 429, may be nil
	Hints  transport.HintSource
	Tokens *cache.TTL[string, types.Token]
	// SwapDeadline is added to the current time for router calls
	SwapDeadline time.Duration
	Now          func() time.Time
}

// Adapter implements the chain capabilities for one EVM network
type Adapter struct {
	cfg     Config
	client  Client
	machine *broadcast.Machine
	retry   retry.Policy
	log     zerolog.Logger
	hints   transport.HintSource
	tokens  *cache.TTL[string, types.Token]
	now     func() time.Time

	deadline time.Duration
}

var (
	_ chain.Adapter   = (*Adapter)(nil)
	_ chain.Balance   = (*Adapter)(nil)
	_ chain.Transfer  = (*Adapter)(nil)
	_ chain.Swap      = (*Adapter)(nil)
	_ chain.TokenInfo = (*Adapter)(nil)
)

// New creates an EVM adapter over a connected client
func New(cfg Config, client Client, opts Options) *Adapter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.Default
	}
	if opts.SwapDeadline <= 0 {
		opts.SwapDeadline = 20 * time.Minute
	}
	if opts.Tokens == nil {
		opts.Tokens = cache.NewTTL[string, types.Token](cache.DefaultSize, cache.DefaultTokenTTL)
	}
	bc := opts.Broadcast
	bc.Chain = string(cfg.ID)
	if bc.Poll.Timeout <= 0 && bc.Poll.MaxAttempts <= 0 {
		// receipt wait: 60s, polling every 2s
		bc.Poll = broadcast.PollPolicy{Timeout: 60 * time.Second, Step: 2 * time.Second, Cap: 2 * time.Second}
	}
	log := opts.Log.With().Str("chain", string(cfg.ID)).Logger()

	return &Adapter{
		cfg:      cfg,
		client:   client,
		machine:  broadcast.New(bc, log, opts.Monitor),
		retry:    opts.Retry,
		log:      log,
		hints:    opts.Hints,
		tokens:   opts.Tokens,
		now:      opts.Now,
		deadline: opts.SwapDeadline,
	}
}

// Params returns the chain parameters
func (a *Adapter) Params() types.ChainParams {
	return a.cfg.Params()
}

// ValidateAddress checks for a 20-byte hex address
func (a *Adapter) ValidateAddress(address string) error {
	if !common.IsHexAddress(address) {
		return types.E(types.InvalidAddress, "evm.address", "invalid %s address: %s", a.cfg.Name, address)
	}
	return nil
}

// Ping asks the node for its latest block number
func (a *Adapter) Ping(ctx context.Context) error {
	_, err := a.client.BlockNumber(ctx)
	return a.classify("evm.ping", err)
}

// call runs a read with the small fixed retry budget
func (a *Adapter) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, a.retry, retry.Transient, func(ctx context.Context) error {
		return a.classify(op, fn(ctx))
	})
}

func (a *Adapter) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	return transport.Classify(op, err, a.hints)
}

// NativeBalance returns the balance in wei
func (a *Adapter) NativeBalance(ctx context.Context, owner string) (*big.Int, error) {
	if err := a.ValidateAddress(owner); err != nil {
		return nil, err
	}
	var bal *big.Int
	err := a.call(ctx, "evm.balance", func(ctx context.Context) error {
		var err error
		bal, err = a.client.BalanceAt(ctx, common.HexToAddress(owner), nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return bal, nil
}

// TokenBalance returns an ERC20 balance in the token's smallest unit
func (a *Adapter) TokenBalance(ctx context.Context, owner, asset string) (*big.Int, error) {
	if types.IsNative(asset) {
		return a.NativeBalance(ctx, owner)
	}
	if err := a.ValidateAddress(owner); err != nil {
		return nil, err
	}
	if err := a.ValidateAddress(asset); err != nil {
		return nil, err
	}

	out, err := a.callERC20(ctx, common.HexToAddress(asset), "balanceOf", common.HexToAddress(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to get token balance: %w", err)
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result %T", out[0])
	}
	return bal, nil
}

// TokenInfo reads ERC20 metadata, cached per chain and address
func (a *Adapter) TokenInfo(ctx context.Context, asset string) (*types.Token, error) {
	if types.IsNative(asset) {
		return &types.Token{
			Chain:    a.cfg.ID,
			Address:  types.NativeAsset,
			Symbol:   a.cfg.Symbol,
			Name:     a.cfg.Name,
			Decimals: a.cfg.Decimals,
		}, nil
	}
	if err := a.ValidateAddress(asset); err != nil {
		return nil, err
	}

	key := cache.TokenKey(a.cfg.ID, asset)
	if tok, ok := a.tokens.Get(key); ok {
		return &tok, nil
	}

	token := common.HexToAddress(asset)
	out, err := a.callERC20(ctx, token, "decimals")
	if err != nil {
		return nil, fmt.Errorf("failed to get token decimals: %w", err)
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return nil, fmt.Errorf("unexpected decimals result %T", out[0])
	}

	tok := types.Token{Chain: a.cfg.ID, Address: token.Hex(), Decimals: decimals, UpdatedAt: a.now().UTC()}
	// symbol and name are optional in the standard
	if out, err := a.callERC20(ctx, token, "symbol"); err == nil {
		tok.Symbol, _ = out[0].(string)
	}
	if out, err := a.callERC20(ctx, token, "name"); err == nil {
		tok.Name, _ = out[0].(string)
	}

	a.tokens.Put(key, tok)
	return &tok, nil
}

func (a *Adapter) decimals(ctx context.Context, asset string) (uint8, error) {
	tok, err := a.TokenInfo(ctx, asset)
	if err != nil {
		return 0, err
	}
	return tok.Decimals, nil
}

func (a *Adapter) callERC20(ctx context.Context, token common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	var raw []byte
	err = a.call(ctx, "evm."+method, func(ctx context.Context) error {
		var err error
		raw, err = a.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	out, err := erc20ABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty %s result", method)
	}
	return out, nil
}

// parseKey turns the signer's secret into an ECDSA key
func parseKey(signer chain.Signer) (*ecdsa.PrivateKey, common.Address, error) {
	if signer == nil {
		return nil, common.Address{}, types.E(types.WalletUnavailable, "evm.key", "no signing key")
	}
	key, err := crypto.ToECDSA(signer.Secret())
	if err != nil {
		return nil, common.Address{}, types.E(types.WalletUnavailable, "evm.key", "invalid private key: %v", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}

package solana

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"wallet-engine/pkg/broadcast"
	"wallet-engine/pkg/cache"
	"wallet-engine/pkg/chain"
	"wallet-engine/pkg/health"
	"wallet-engine/pkg/types"
)

// Options wires an Adapter's collaborators
type Options struct {
	Broadcast broadcast.Config
	Log       zerolog.Logger
	Monitor   *health.Monitor
	Tokens    *cache.TTL[string, types.Token]
	Jupiter   *Jupiter
	Now       func() time.Time
}

// Adapter implements the chain capabilities for Solana
type Adapter struct {
	cfg     Config
	pool    *Pool
	machine *broadcast.Machine
	jupiter *Jupiter
	atas    *ATAResolver
	tokens  *cache.TTL[string, types.Token]
	log     zerolog.Logger
	now     func() time.Time
	commit  rpc.CommitmentType
}

var (
	_ chain.Adapter   = (*Adapter)(nil)
	_ chain.Balance   = (*Adapter)(nil)
	_ chain.Transfer  = (*Adapter)(nil)
	_ chain.Swap      = (*Adapter)(nil)
	_ chain.NFT       = (*Adapter)(nil)
	_ chain.TokenInfo = (*Adapter)(nil)
	_ chain.History   = (*Adapter)(nil)
)

// New creates a Solana adapter over an endpoint pool
func New(cfg Config, pool *Pool, opts Options) *Adapter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Tokens == nil {
		opts.Tokens = cache.NewTTL[string, types.Token](cache.DefaultSize, cache.DefaultTokenTTL)
	}
	bc := opts.Broadcast
	bc.Chain = string(cfg.ID)
	if bc.Poll.MaxAttempts <= 0 && bc.Poll.Timeout <= 0 {
		bc.Poll = broadcast.PollPolicy{MaxAttempts: 30, Step: 2 * time.Second, Cap: 10 * time.Second}
	}
	log := opts.Log.With().Str("chain", string(cfg.ID)).Logger()

	a := &Adapter{
		cfg:     cfg,
		pool:    pool,
		machine: broadcast.New(bc, log, opts.Monitor),
		jupiter: opts.Jupiter,
		tokens:  opts.Tokens,
		log:     log,
		now:     opts.Now,
		commit:  commitment(cfg.Commitment),
	}
	a.atas = NewATAResolver(pool, a.commit)
	return a
}

// Params returns the chain parameters
func (a *Adapter) Params() types.ChainParams {
	return a.cfg.Params()
}

// Pool exposes the endpoint pool for health reporting
func (a *Adapter) Pool() *Pool {
	return a.pool
}

// ValidateAddress checks for a base58 ed25519 public key
func (a *Adapter) ValidateAddress(address string) error {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return types.E(types.InvalidAddress, "solana.address", "invalid Solana address %s: %v", address, err)
	}
	return nil
}

func parsePublicKey(address string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, types.E(types.InvalidAddress, "solana.address", "invalid Solana address %s: %v", address, err)
	}
	return pk, nil
}

// mintOf maps an asset reference to its mint; native SOL trades as wrapped SOL
func mintOf(asset string) (solana.PublicKey, error) {
	if types.IsNative(asset) {
		return solana.MustPublicKeyFromBase58(WrappedSOLMint), nil
	}
	return parsePublicKey(asset)
}

func assetRef(asset string) string {
	if types.IsNative(asset) || asset == WrappedSOLMint {
		return types.NativeAsset
	}
	return asset
}

// Ping asks the active endpoint for its health
func (a *Adapter) Ping(ctx context.Context) error {
	return a.pool.Once(ctx, "solana.ping", func(ctx context.Context, c RPC) error {
		status, err := c.GetHealth(ctx)
		if err != nil {
			return err
		}
		if status != "" && status != "ok" {
			return types.E(types.NodeUnavailable, "solana.ping", "node reports %s", status)
		}
		return nil
	})
}

// NativeBalance returns the balance in lamports
func (a *Adapter) NativeBalance(ctx context.Context, owner string) (*big.Int, error) {
	pk, err := parsePublicKey(owner)
	if err != nil {
		return nil, err
	}
	lamports, err := a.lamports(ctx, pk)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(lamports), nil
}

func (a *Adapter) lamports(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	var bal uint64
	err := a.pool.Do(ctx, "solana.balance", func(ctx context.Context, c RPC) error {
		out, err := c.GetBalance(ctx, owner, a.commit)
		if err != nil {
			return err
		}
		bal = out.Value
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return bal, nil
}

// TokenBalance returns the balance of the owner's associated token account;
// a missing account holds zero
func (a *Adapter) TokenBalance(ctx context.Context, owner, asset string) (*big.Int, error) {
	if types.IsNative(asset) {
		return a.NativeBalance(ctx, owner)
	}
	ownerPK, err := parsePublicKey(owner)
	if err != nil {
		return nil, err
	}
	mint, err := parsePublicKey(asset)
	if err != nil {
		return nil, err
	}
	ata, _, err := solana.FindAssociatedTokenAddress(ownerPK, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive associated token address: %w", err)
	}
	amount, err := a.tokenAccountBalance(ctx, ata)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(amount), nil
}

func (a *Adapter) tokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	var amount uint64
	err := a.pool.Do(ctx, "solana.token_balance", func(ctx context.Context, c RPC) error {
		out, err := c.GetTokenAccountBalance(ctx, account, a.commit)
		if err != nil {
			return err
		}
		if out == nil || out.Value == nil {
			return nil
		}
		amount, err = strconv.ParseUint(out.Value.Amount, 10, 64)
		return err
	})
	if err != nil {
		if accountMissing(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get token balance: %w", err)
	}
	return amount, nil
}

func accountMissing(err error) bool {
	if errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "could not find account") || strings.Contains(lower, "invalid param: could not find")
}

// TokenInfo reads the mint account; symbols are known only for common mints
func (a *Adapter) TokenInfo(ctx context.Context, asset string) (*types.Token, error) {
	if types.IsNative(asset) {
		return &types.Token{Chain: a.cfg.ID, Address: types.NativeAsset, Symbol: "SOL", Name: "Solana", Decimals: 9}, nil
	}
	mintPK, err := parsePublicKey(asset)
	if err != nil {
		return nil, err
	}

	key := cache.TokenKey(a.cfg.ID, asset)
	if tok, ok := a.tokens.Get(key); ok {
		return &tok, nil
	}

	var data []byte
	err = a.pool.Do(ctx, "solana.mint", func(ctx context.Context, c RPC) error {
		out, err := c.GetAccountInfoWithOpts(ctx, mintPK, &rpc.GetAccountInfoOpts{Encoding: solana.EncodingBase64, Commitment: a.commit})
		if err != nil {
			return err
		}
		if out == nil || out.Value == nil || out.Value.Data == nil {
			return rpc.ErrNotFound
		}
		data = out.Value.Data.GetBinary()
		return nil
	})
	if err != nil {
		if accountMissing(err) {
			return nil, types.E(types.InvalidAddress, "solana.mint", "mint account %s not found", asset)
		}
		return nil, fmt.Errorf("failed to get mint account info: %w", err)
	}

	var mint token.Mint
	if err := bin.NewBinDecoder(data).Decode(&mint); err != nil {
		return nil, types.E(types.InvalidAddress, "solana.mint", "account %s is not a token mint: %v", asset, err)
	}

	tok := types.Token{
		Chain:     a.cfg.ID,
		Address:   asset,
		Decimals:  mint.Decimals,
		IsNFT:     mint.Decimals == 0 && mint.Supply == 1,
		UpdatedAt: a.now().UTC(),
	}
	switch asset {
	case WrappedSOLMint:
		tok.Symbol, tok.Name = "SOL", "Wrapped SOL"
	case USDCMint:
		tok.Symbol, tok.Name = "USDC", "USD Coin"
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

// parseKey turns the signer's 64-byte secret into a keypair and checks it
// controls the intent's sender
func parseKey(exec chain.Execution) (solana.PrivateKey, error) {
	if exec.Signer == nil {
		return nil, types.E(types.WalletUnavailable, "solana.key", "no signing key")
	}
	secret := exec.Signer.Secret()
	if len(secret) != 64 {
		return nil, types.E(types.WalletUnavailable, "solana.key", "invalid private key length %d", len(secret))
	}
	key := solana.PrivateKey(secret)
	if exec.Intent.From != "" && key.PublicKey().String() != exec.Intent.From {
		return nil, types.E(types.WalletUnavailable, "solana.key", "key controls %s, not %s", key.PublicKey(), exec.Intent.From)
	}
	return key, nil
}

func sol(lamports uint64) string {
	return types.FromBaseUnits(new(big.Int).SetUint64(lamports), 9).String()
}

// insufficient formats the balance shortfall message shared by all guards
func insufficient(amount, fees, have uint64) error {
	return types.E(types.InsufficientBalance, "solana.balance",
		"insufficient balance: need at least %s SOL (amount %s + fees %s), have %s",
		sol(amount+fees), sol(amount), sol(fees), sol(have))
}

// broadcast runs a driver through the state machine and decorates the result
func (a *Adapter) broadcast(ctx context.Context, kind types.OperationKind, d *driver, onSubmitted func(string)) (*types.BroadcastResult, error) {
	res, err := a.machine.Run(ctx, d, onSubmitted)
	if res != nil {
		res.Chain = a.cfg.ID
		res.Kind = kind
		res.Explorer = a.Params().ExplorerTxURL(res.TxHash)
	}
	return res, err
}

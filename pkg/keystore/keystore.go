// Package keystore manages wallets and their encrypted private keys. Keys are
// sealed with Argon2id and XChaCha20-Poly1305 and only opened for the
// duration of one operation.
package keystore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wallet-engine/pkg/chain"
	"wallet-engine/pkg/store"
	"wallet-engine/pkg/types"
)

// Keystore stores wallets in a store and seals their keys with a passphrase
type Keystore struct {
	store      store.Store
	passphrase []byte
	params     Params
	log        zerolog.Logger
	now        func() time.Time
}

// New creates a keystore. An empty passphrase allows watch-only use only.
func New(s store.Store, passphrase string, params Params, logger zerolog.Logger) *Keystore {
	if params.Iterations == 0 {
		params = DefaultParams()
	}
	return &Keystore{store: s, passphrase: []byte(passphrase), params: params, log: logger, now: time.Now}
}

// parseSecret decodes a family-specific private key encoding into raw key
// bytes and the address it controls
func parseSecret(family types.Family, secret string) ([]byte, string, error) {
	secret = strings.TrimSpace(secret)
	switch family {
	case types.FamilyEVM:
		raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(secret, "0x"), "0X"))
		if err != nil {
			return nil, "", fmt.Errorf("private key is not hex: %w", err)
		}
		key, err := crypto.ToECDSA(raw)
		if err != nil {
			wipe(raw)
			return nil, "", fmt.Errorf("invalid private key: %w", err)
		}
		return raw, crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
	case types.FamilySolana:
		key, err := solana.PrivateKeyFromBase58(secret)
		if err != nil {
			return nil, "", fmt.Errorf("invalid private key: %w", err)
		}
		if len(key) != 64 {
			return nil, "", fmt.Errorf("invalid private key length %d", len(key))
		}
		return []byte(key), key.PublicKey().String(), nil
	}
	return nil, "", fmt.Errorf("unsupported chain family %q", family)
}

// Import seals a private key and stores a new active wallet
func (k *Keystore) Import(ctx context.Context, name string, params types.ChainParams, secret string) (*types.Wallet, error) {
	const op = "keystore.import"
	if len(k.passphrase) == 0 {
		return nil, types.E(types.WalletUnavailable, op, "keystore passphrase is not configured")
	}

	raw, address, err := parseSecret(params.Family, secret)
	if err != nil {
		return nil, types.E(types.WalletUnavailable, op, "%v", err)
	}
	defer wipe(raw)

	existing, err := k.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, w := range existing {
		if w.Chain == params.ID && strings.EqualFold(w.Address, address) && w.Active {
			return nil, types.E(types.WalletUnavailable, op, "wallet for %s on %s already exists (%s)", address, params.ID, w.ID)
		}
	}

	w := &types.Wallet{
		ID:        uuid.NewString(),
		Name:      name,
		Chain:     params.ID,
		Address:   address,
		Active:    true,
		CreatedAt: k.now().UTC(),
	}
	if w.EncryptedKey, err = seal(raw, k.passphrase, []byte(w.ID), k.params); err != nil {
		return nil, types.Wrap(types.WalletUnavailable, op, err)
	}
	if err := k.store.PutWallet(ctx, w); err != nil {
		return nil, types.Wrap(types.PersistenceFailed, op, err)
	}

	k.log.Info().Str("wallet", w.ID).Str("chain", string(w.Chain)).Str("address", w.Address).Msg("Imported wallet")
	return w, nil
}

// AddWatchOnly stores an address without a key
func (k *Keystore) AddWatchOnly(ctx context.Context, name string, id types.ChainID, address string) (*types.Wallet, error) {
	w := &types.Wallet{
		ID:        uuid.NewString(),
		Name:      name,
		Chain:     id,
		Address:   address,
		Active:    true,
		WatchOnly: true,
		CreatedAt: k.now().UTC(),
	}
	if err := k.store.PutWallet(ctx, w); err != nil {
		return nil, types.Wrap(types.PersistenceFailed, "keystore.watch", err)
	}
	return w, nil
}

// Wallet loads a wallet record
func (k *Keystore) Wallet(ctx context.Context, id string) (*types.Wallet, error) {
	w, err := k.store.GetWallet(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, types.E(types.WalletUnavailable, "keystore.wallet", "wallet %s not found", id)
	}
	if err != nil {
		return nil, types.Wrap(types.PersistenceFailed, "keystore.wallet", err)
	}
	return w, nil
}

// List returns all wallets
func (k *Keystore) List(ctx context.Context) ([]*types.Wallet, error) {
	ws, err := k.store.ListWallets(ctx)
	if err != nil {
		return nil, types.Wrap(types.PersistenceFailed, "keystore.list", err)
	}
	return ws, nil
}

// Deactivate marks a wallet unusable for signing
func (k *Keystore) Deactivate(ctx context.Context, id string) error {
	w, err := k.Wallet(ctx, id)
	if err != nil {
		return err
	}
	if !w.Active {
		return nil
	}
	w.Active = false
	if err := k.store.PutWallet(ctx, w); err != nil {
		return types.Wrap(types.PersistenceFailed, "keystore.deactivate", err)
	}
	k.log.Info().Str("wallet", id).Msg("Deactivated wallet")
	return nil
}

// Decrypt opens the wallet's key. The caller owns the returned signer and
// must Wipe it when the operation ends.
func (k *Keystore) Decrypt(ctx context.Context, w *types.Wallet) (chain.Signer, error) {
	const op = "keystore.decrypt"
	switch {
	case !w.Active:
		return nil, types.E(types.WalletUnavailable, op, "wallet %s is inactive", w.ID)
	case w.WatchOnly || len(w.EncryptedKey) == 0:
		return nil, types.E(types.WalletUnavailable, op, "wallet %s is watch-only", w.ID)
	case len(k.passphrase) == 0:
		return nil, types.E(types.WalletUnavailable, op, "keystore passphrase is not configured")
	}

	raw, err := open(w.EncryptedKey, k.passphrase, []byte(w.ID))
	if err != nil {
		return nil, types.E(types.WalletUnavailable, op, "cannot open key for wallet %s: %v", w.ID, err)
	}
	return chain.Secret(raw), nil
}

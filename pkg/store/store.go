// Package store persists transaction records, token metadata and wallets.
//
// Three backends share one contract: a badger key-value store for long-running
// use, a JSON file for the CLI, and an in-memory store for tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"wallet-engine/pkg/types"
)

// ErrNotFound is returned when a key does not exist
var ErrNotFound = errors.New("not found")

// Drivers
const (
	DriverBadger = "badger"
	DriverFile   = "file"
	DriverMemory = "memory"
)

// UpdateFunc receives the stored record (nil if absent) and returns the record
// to write. Returning nil leaves the store unchanged.
type UpdateFunc func(existing *types.TransactionRecord) (*types.TransactionRecord, error)

// RecordFilter narrows ListRecords; zero fields match everything
type RecordFilter struct {
	Chain  types.ChainID
	Wallet string
	Status types.TxStatus
	Limit  int
}

func (f RecordFilter) match(r *types.TransactionRecord) bool {
	if f.Chain != "" && r.Chain != f.Chain {
		return false
	}
	if f.Wallet != "" && r.Wallet != f.Wallet {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// Store is the persistence collaborator of the engine
type Store interface {
	// UpdateRecord atomically reads and rewrites the record under key
	UpdateRecord(ctx context.Context, key types.RecordKey, fn UpdateFunc) error
	GetRecord(ctx context.Context, key types.RecordKey) (*types.TransactionRecord, error)
	// ListRecords returns matching records, newest first
	ListRecords(ctx context.Context, f RecordFilter) ([]*types.TransactionRecord, error)

	GetToken(ctx context.Context, chain types.ChainID, address string) (*types.Token, error)
	PutToken(ctx context.Context, t *types.Token) error

	GetWallet(ctx context.Context, id string) (*types.Wallet, error)
	PutWallet(ctx context.Context, w *types.Wallet) error
	ListWallets(ctx context.Context) ([]*types.Wallet, error)

	Close() error
}

// Open creates a store for the given driver
func Open(driver, path string) (Store, error) {
	switch strings.ToLower(driver) {
	case DriverBadger:
		db, err := NewBadger(path)
		if err != nil {
			return nil, err
		}
		return NewKV(db), nil
	case DriverFile, "":
		return NewFileStore(path)
	case DriverMemory:
		return NewKV(NewMemory()), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}

func recordKey(k types.RecordKey) string {
	return fmt.Sprintf("%s/%s/%s", k.Chain, k.TxHash, k.Wallet)
}

// tokenKey lower-cases hex addresses; base58 is case-sensitive
func tokenKey(chain types.ChainID, address string) string {
	if strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X") {
		address = strings.ToLower(address)
	}
	return fmt.Sprintf("%s/%s", chain, address)
}

func sortRecords(recs []*types.TransactionRecord, limit int) []*types.TransactionRecord {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}

func sortWallets(ws []*types.Wallet) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].CreatedAt.Equal(ws[j].CreatedAt) {
			return ws[i].ID < ws[j].ID
		}
		return ws[i].CreatedAt.Before(ws[j].CreatedAt)
	})
}

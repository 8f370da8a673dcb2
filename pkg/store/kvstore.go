package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wallet-engine/pkg/types"
)

// Key prefixes
var (
	prefixRecord = []byte("rec/")
	prefixToken  = []byte("tok/")
	prefixWallet = []byte("wal/")
)

func prefixed(prefix []byte, key string) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	return append(out, key...)
}

// KVStore implements Store as JSON values over a DB
type KVStore struct {
	db DB
}

// NewKV wraps a key-value database
func NewKV(db DB) *KVStore {
	return &KVStore{db: db}
}

func (s *KVStore) UpdateRecord(ctx context.Context, key types.RecordKey, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(prefixed(prefixRecord, recordKey(key)), func(old []byte) ([]byte, error) {
		var existing *types.TransactionRecord
		if old != nil {
			existing = new(types.TransactionRecord)
			if err := json.Unmarshal(old, existing); err != nil {
				return nil, fmt.Errorf("failed to decode record %s: %w", key, err)
			}
		}
		next, err := fn(existing)
		if err != nil || next == nil {
			return nil, err
		}
		return json.Marshal(next)
	})
}

func (s *KVStore) GetRecord(ctx context.Context, key types.RecordKey) (*types.TransactionRecord, error) {
	var rec types.TransactionRecord
	if err := s.get(prefixed(prefixRecord, recordKey(key)), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *KVStore) ListRecords(ctx context.Context, f RecordFilter) ([]*types.TransactionRecord, error) {
	prefix := prefixRecord
	if f.Chain != "" {
		prefix = prefixed(prefixRecord, string(f.Chain)+"/")
	}

	var out []*types.TransactionRecord
	err := s.db.ForEach(prefix, func(_, value []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var rec types.TransactionRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("failed to decode record: %w", err)
		}
		if f.match(&rec) {
			out = append(out, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sortRecords(out, f.Limit), nil
}

func (s *KVStore) GetToken(ctx context.Context, chain types.ChainID, address string) (*types.Token, error) {
	var t types.Token
	if err := s.get(prefixed(prefixToken, tokenKey(chain, address)), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *KVStore) PutToken(ctx context.Context, t *types.Token) error {
	return s.put(prefixed(prefixToken, tokenKey(t.Chain, t.Address)), t)
}

func (s *KVStore) GetWallet(ctx context.Context, id string) (*types.Wallet, error) {
	var w types.Wallet
	if err := s.get(prefixed(prefixWallet, id), &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *KVStore) PutWallet(ctx context.Context, w *types.Wallet) error {
	if w.ID == "" {
		return errors.New("wallet has no id")
	}
	return s.put(prefixed(prefixWallet, w.ID), w)
}

func (s *KVStore) ListWallets(ctx context.Context) ([]*types.Wallet, error) {
	var out []*types.Wallet
	err := s.db.ForEach(prefixWallet, func(_, value []byte) error {
		var w types.Wallet
		if err := json.Unmarshal(value, &w); err != nil {
			return fmt.Errorf("failed to decode wallet: %w", err)
		}
		out = append(out, &w)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortWallets(out)
	return out, nil
}

func (s *KVStore) Close() error {
	return s.db.Close()
}

func (s *KVStore) get(key []byte, v interface{}) error {
	data, err := s.db.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) put(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.db.Put(key, data)
}

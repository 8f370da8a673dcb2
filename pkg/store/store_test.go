package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-engine/pkg/types"
)

// testStore runs the shared suite against a Store implementation
func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("UpdateCreatesRecord", func(t *testing.T) {
		key := types.RecordKey{Chain: "eth", TxHash: "0xaa", Wallet: "w1"}
		err := s.UpdateRecord(ctx, key, func(existing *types.TransactionRecord) (*types.TransactionRecord, error) {
			assert.Nil(t, existing)
			return &types.TransactionRecord{ID: "r1", Chain: "eth", TxHash: "0xaa", Wallet: "w1", Status: types.StatusConfirmed, CreatedAt: base}, nil
		})
		require.NoError(t, err)

		rec, err := s.GetRecord(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "r1", rec.ID)
		assert.Equal(t, types.StatusConfirmed, rec.Status)
	})

	t.Run("UpdateSeesExisting", func(t *testing.T) {
		key := types.RecordKey{Chain: "eth", TxHash: "0xaa", Wallet: "w1"}
		err := s.UpdateRecord(ctx, key, func(existing *types.TransactionRecord) (*types.TransactionRecord, error) {
			require.NotNil(t, existing)
			assert.Equal(t, "r1", existing.ID)
			return nil, nil
		})
		require.NoError(t, err)
	})

	t.Run("UpdateErrorLeavesRecord", func(t *testing.T) {
		key := types.RecordKey{Chain: "eth", TxHash: "0xaa", Wallet: "w1"}
		boom := errors.New("boom")
		err := s.UpdateRecord(ctx, key, func(existing *types.TransactionRecord) (*types.TransactionRecord, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)

		rec, err := s.GetRecord(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, types.StatusConfirmed, rec.Status)
	})

	t.Run("GetMissingRecord", func(t *testing.T) {
		_, err := s.GetRecord(ctx, types.RecordKey{Chain: "eth", TxHash: "0xbb", Wallet: "w1"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListRecordsFiltersAndOrders", func(t *testing.T) {
		for i, r := range []*types.TransactionRecord{
			{ID: "r2", Chain: "solana", TxHash: "sig1", Wallet: "w2", Status: types.StatusFailed, CreatedAt: base.Add(time.Minute)},
			{ID: "r3", Chain: "solana", TxHash: "sig2", Wallet: "w2", Status: types.StatusConfirmed, CreatedAt: base.Add(2 * time.Minute)},
		} {
			rec := r
			require.NoError(t, s.UpdateRecord(ctx, rec.Key(), func(*types.TransactionRecord) (*types.TransactionRecord, error) {
				return rec, nil
			}), "record %d", i)
		}

		all, err := s.ListRecords(ctx, RecordFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "r3", all[0].ID)
		assert.Equal(t, "r1", all[2].ID)

		sol, err := s.ListRecords(ctx, RecordFilter{Chain: "solana", Status: types.StatusConfirmed})
		require.NoError(t, err)
		require.Len(t, sol, 1)
		assert.Equal(t, "r3", sol[0].ID)

		limited, err := s.ListRecords(ctx, RecordFilter{Wallet: "w2", Limit: 1})
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, "r3", limited[0].ID)
	})

	t.Run("Tokens", func(t *testing.T) {
		require.NoError(t, s.PutToken(ctx, &types.Token{Chain: "eth", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Symbol: "USDC", Decimals: 6}))

		tok, err := s.GetToken(ctx, "eth", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
		require.NoError(t, err)
		assert.Equal(t, "USDC", tok.Symbol)

		_, err = s.GetToken(ctx, "bsc", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Wallets", func(t *testing.T) {
		require.NoError(t, s.PutWallet(ctx, &types.Wallet{ID: "b", Chain: "solana", Address: "addr-b", Active: true, CreatedAt: base.Add(time.Second)}))
		require.NoError(t, s.PutWallet(ctx, &types.Wallet{ID: "a", Chain: "eth", Address: "addr-a", Active: true, CreatedAt: base}))
		assert.Error(t, s.PutWallet(ctx, &types.Wallet{}))

		w, err := s.GetWallet(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, "addr-b", w.Address)

		w.Active = false
		require.NoError(t, s.PutWallet(ctx, w))

		ws, err := s.ListWallets(ctx)
		require.NoError(t, err)
		require.Len(t, ws, 2)
		assert.Equal(t, "a", ws[0].ID)
		assert.False(t, ws[1].Active)

		_, err = s.GetWallet(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	s := NewKV(NewMemory())
	defer s.Close()
	testStore(t, s)
}

func TestBadgerStore(t *testing.T) {
	db, err := NewBadger("")
	require.NoError(t, err)
	s := NewKV(db)
	defer s.Close()
	testStore(t, s)
}

func TestBadgerStore_OnDisk(t *testing.T) {
	dir := t.TempDir()
	db, err := NewBadger(dir)
	require.NoError(t, err)
	s := NewKV(db)
	testStore(t, s)
	require.NoError(t, s.Close())

	db, err = NewBadger(dir)
	require.NoError(t, err)
	defer db.Close()
	rec, err := NewKV(db).GetRecord(context.Background(), types.RecordKey{Chain: "eth", TxHash: "0xaa", Wallet: "w1"})
	require.NoError(t, err)
	assert.Equal(t, "r1", rec.ID)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	testStore(t, s)

	// reload from disk
	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	recs, err := reopened.ListRecords(context.Background(), RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	ws, err := reopened.ListWallets(context.Background())
	require.NoError(t, err)
	assert.Len(t, ws, 2)
}

func TestOpen(t *testing.T) {
	s, err := Open(DriverMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &KVStore{}, s)

	s, err = Open(DriverFile, filepath.Join(t.TempDir(), "x.json"))
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = Open("postgres", "")
	assert.Error(t, err)
}

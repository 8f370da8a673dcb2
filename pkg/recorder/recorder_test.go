package recorder

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-engine/pkg/log"
	"wallet-engine/pkg/store"
	"wallet-engine/pkg/types"
)

func newRecorder() (*Recorder, store.Store) {
	s := store.NewKV(store.NewMemory())
	r := New(s, log.Nop())
	r.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return r, s
}

func transferEntry(status types.TxStatus) Entry {
	return Entry{
		Intent: &types.Intent{Kind: types.OpNativeTransfer, Chain: "eth", From: "0xfrom", To: "0xto", Asset: types.NativeAsset, Amount: decimal.RequireFromString("1.5")},
		Wallet: "wallet-1",
		Result: &types.BroadcastResult{Chain: "eth", Kind: types.OpNativeTransfer, TxHash: "0xabc", Status: status, BlockRef: "101", FeePaid: big.NewInt(672000000000000)},
	}
}

func TestRecord_SecondSaveIsNoop(t *testing.T) {
	r, s := newRecorder()
	ctx := context.Background()

	first, created, err := r.Record(ctx, transferEntry(types.StatusConfirmed))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "1.5", first.Amount)
	assert.Equal(t, "672000000000000", first.FeePaid)

	second, created, err := r.Record(ctx, transferEntry(types.StatusConfirmed))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	recs, err := s.ListRecords(ctx, store.RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRecord_TerminalIsNeverOverwritten(t *testing.T) {
	r, s := newRecorder()
	ctx := context.Background()

	_, _, err := r.Record(ctx, transferEntry(types.StatusConfirmed))
	require.NoError(t, err)
	_, created, err := r.Record(ctx, transferEntry(types.StatusTimedOut))
	require.NoError(t, err)
	assert.False(t, created)

	rec, err := s.GetRecord(ctx, types.RecordKey{Chain: "eth", TxHash: "0xabc", Wallet: "wallet-1"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusConfirmed, rec.Status)
}

func TestRecord_SameHashDifferentWallet(t *testing.T) {
	r, s := newRecorder()
	ctx := context.Background()

	e := transferEntry(types.StatusConfirmed)
	_, _, err := r.Record(ctx, e)
	require.NoError(t, err)
	e.Wallet = "wallet-2"
	_, created, err := r.Record(ctx, e)
	require.NoError(t, err)
	assert.True(t, created)

	recs, err := s.ListRecords(ctx, store.RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestMarkSubmitted_UpgradedByTerminal(t *testing.T) {
	r, s := newRecorder()
	ctx := context.Background()

	require.NoError(t, r.MarkSubmitted(ctx, transferEntry(types.StatusSubmitted)))
	key := types.RecordKey{Chain: "eth", TxHash: "0xabc", Wallet: "wallet-1"}
	provisional, err := s.GetRecord(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSubmitted, provisional.Status)

	r.now = func() time.Time { return time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC) }
	rec, created, err := r.Record(ctx, transferEntry(types.StatusFailed))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, provisional.ID, rec.ID)
	assert.Equal(t, provisional.CreatedAt, rec.CreatedAt)
	assert.Equal(t, types.StatusFailed, rec.Status)
	assert.True(t, rec.UpdatedAt.After(rec.CreatedAt))

	// a late marker does not downgrade
	require.NoError(t, r.MarkSubmitted(ctx, transferEntry(types.StatusSubmitted)))
	rec, err = s.GetRecord(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, rec.Status)
}

func TestRecord_RejectsNonTerminal(t *testing.T) {
	r, _ := newRecorder()
	_, _, err := r.Record(context.Background(), transferEntry(types.StatusSubmitted))
	assert.True(t, types.Is(err, types.PersistenceFailed))
}

type failingStore struct {
	store.Store
}

func (failingStore) UpdateRecord(context.Context, types.RecordKey, store.UpdateFunc) error {
	return errors.New("disk full")
}

func TestSave_FailureBecomesWarning(t *testing.T) {
	r := New(failingStore{}, log.Nop())
	e := transferEntry(types.StatusConfirmed)

	r.Save(context.Background(), e)
	assert.Equal(t, types.StatusConfirmed, e.Result.Status)
	require.Len(t, e.Result.Warnings, 1)
	assert.Contains(t, e.Result.Warnings[0], "disk full")
}

func TestSave_RecordsApproval(t *testing.T) {
	r, s := newRecorder()
	ctx := context.Background()

	e := Entry{
		Intent: &types.Intent{Kind: types.OpSwap, Chain: "eth", From: "0xfrom", Asset: "0xtoken", ToAsset: types.NativeAsset, Amount: decimal.NewFromInt(10)},
		Wallet: "wallet-1",
		Result: &types.BroadcastResult{
			Chain: "eth", Kind: types.OpSwap, TxHash: "0xswap", Status: types.StatusConfirmed,
			Approval: &types.BroadcastResult{Chain: "eth", Kind: types.OpApprove, TxHash: "0xapprove", Status: types.StatusConfirmed},
		},
	}
	r.Save(ctx, e)
	r.Save(ctx, e)
	assert.Empty(t, e.Result.Warnings)

	recs, err := s.ListRecords(ctx, store.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	approval, err := s.GetRecord(ctx, types.RecordKey{Chain: "eth", TxHash: "0xapprove", Wallet: "wallet-1"})
	require.NoError(t, err)
	assert.Equal(t, types.OpApprove, approval.Kind)
	assert.Empty(t, approval.Amount)
}

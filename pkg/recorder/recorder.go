// Package recorder persists terminal broadcast outcomes exactly once per
// (chain, tx hash, wallet).
package recorder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wallet-engine/pkg/store"
	"wallet-engine/pkg/types"
)

// Recorder upserts transaction records
type Recorder struct {
	store store.Store
	log   zerolog.Logger
	now   func() time.Time
}

// New creates a recorder over a store
func New(s store.Store, logger zerolog.Logger) *Recorder {
	return &Recorder{store: s, log: logger, now: time.Now}
}

// Entry is what the recorder needs to know about one attempt
type Entry struct {
	Intent *types.Intent
	Wallet string
	Result *types.BroadcastResult
}

func (e Entry) key() types.RecordKey {
	return types.RecordKey{Chain: e.Result.Chain, TxHash: e.Result.TxHash, Wallet: e.Wallet}
}

// project builds a fresh record from an entry
func (r *Recorder) project(e Entry, at time.Time) *types.TransactionRecord {
	rec := &types.TransactionRecord{
		ID:        uuid.NewString(),
		Chain:     e.Result.Chain,
		TxHash:    e.Result.TxHash,
		Wallet:    e.Wallet,
		Kind:      e.Result.Kind,
		Status:    e.Result.Status,
		BlockRef:  e.Result.BlockRef,
		Error:     e.Result.RawError,
		Explorer:  e.Result.Explorer,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if e.Result.FeePaid != nil {
		rec.FeePaid = e.Result.FeePaid.String()
	}
	if in := e.Intent; in != nil {
		rec.From = in.From
		rec.To = in.To
		rec.Asset = in.Asset
		rec.ToAsset = in.ToAsset
		if e.Result.Kind != types.OpApprove && in.Kind != types.OpNFTTransfer {
			rec.Amount = in.Amount.String()
		}
		if rec.Kind == "" {
			rec.Kind = in.Kind
		}
	}
	return rec
}

// MarkSubmitted writes a provisional record for an accepted hash. It never
// touches an existing record.
func (r *Recorder) MarkSubmitted(ctx context.Context, e Entry) error {
	if e.Result == nil || e.Result.TxHash == "" {
		return nil
	}
	at := r.now().UTC()
	err := r.store.UpdateRecord(ctx, e.key(), func(existing *types.TransactionRecord) (*types.TransactionRecord, error) {
		if existing != nil {
			return nil, nil
		}
		rec := r.project(e, at)
		rec.Status = types.StatusSubmitted
		return rec, nil
	})
	if err != nil {
		return types.Wrap(types.PersistenceFailed, "recorder.submitted", err)
	}
	return nil
}

// Record upserts a terminal result. A repeated save of the same key is a no-op;
// a provisional record is upgraded in place, keeping its id.
func (r *Recorder) Record(ctx context.Context, e Entry) (*types.TransactionRecord, bool, error) {
	const op = "recorder.record"
	if e.Result == nil || e.Result.TxHash == "" {
		return nil, false, types.E(types.PersistenceFailed, op, "result has no transaction hash")
	}
	if !e.Result.Status.Terminal() {
		return nil, false, types.E(types.PersistenceFailed, op, "status %s is not terminal", e.Result.Status)
	}

	at := r.now().UTC()
	var (
		out     *types.TransactionRecord
		changed bool
	)
	err := r.store.UpdateRecord(ctx, e.key(), func(existing *types.TransactionRecord) (*types.TransactionRecord, error) {
		changed = false
		if existing != nil && existing.Status.Terminal() {
			out = existing
			return nil, nil
		}
		rec := r.project(e, at)
		if existing != nil {
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
		}
		out, changed = rec, true
		return rec, nil
	})
	if err != nil {
		return nil, false, types.Wrap(types.PersistenceFailed, op, err)
	}

	if changed {
		r.log.Info().
			Str("chain", string(out.Chain)).
			Str("tx_hash", out.TxHash).
			Str("status", string(out.Status)).
			Msg("Recorded transaction")
	} else {
		r.log.Debug().Str("tx_hash", out.TxHash).Msg("Record already present")
	}
	return out, changed, nil
}

// Save records the result and any approval it carries. Failures are logged and
// appended to the result's warnings; they never change the outcome.
func (r *Recorder) Save(ctx context.Context, e Entry) {
	if e.Result == nil {
		return
	}
	// a failed approval comes back without a swap hash
	if a := e.Result.Approval; a != nil && a.TxHash != "" && a.Status.Terminal() {
		approval := Entry{Intent: e.Intent, Wallet: e.Wallet, Result: a}
		if _, _, err := r.Record(ctx, approval); err != nil {
			r.warn(e.Result, err)
		}
	}
	if e.Result.TxHash == "" {
		return
	}
	if _, _, err := r.Record(ctx, e); err != nil {
		r.warn(e.Result, err)
	}
}

func (r *Recorder) warn(res *types.BroadcastResult, err error) {
	r.log.Warn().Err(err).Str("tx_hash", res.TxHash).Msg("Failed to persist transaction record")
	res.Warnings = append(res.Warnings, err.Error())
}

// List returns stored records
func (r *Recorder) List(ctx context.Context, f store.RecordFilter) ([]*types.TransactionRecord, error) {
	recs, err := r.store.ListRecords(ctx, f)
	if err != nil {
		return nil, types.Wrap(types.PersistenceFailed, "recorder.list", err)
	}
	return recs, nil
}

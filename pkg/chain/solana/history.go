package solana

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"wallet-engine/pkg/types"
)

const maxHistory = 1000

// feePaid reads the fee charged for a landed transaction; unknown is nil
func (a *Adapter) feePaid(ctx context.Context, sig solana.Signature) *big.Int {
	tx, err := a.finalizedTx(ctx, sig)
	if err != nil {
		a.log.Debug().Err(err).Str("signature", sig.String()).Msg("Fee lookup failed")
		return nil
	}
	if tx.Meta == nil {
		return nil
	}
	return new(big.Int).SetUint64(tx.Meta.Fee)
}

// finalizedTx fetches a transaction at finalized commitment; rpc.ErrNotFound
// when the node has not seen it finalized
func (a *Adapter) finalizedTx(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	version := uint64(0)
	var tx *rpc.GetTransactionResult
	err := a.pool.Once(ctx, "solana.tx", func(ctx context.Context, c RPC) error {
		out, err := c.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentFinalized,
			MaxSupportedTransactionVersion: &version,
		})
		if err != nil {
			return err
		}
		if out == nil {
			return rpc.ErrNotFound
		}
		tx = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// History lists the most recent signatures touching the address
func (a *Adapter) History(ctx context.Context, owner string, limit int) ([]types.HistoryEntry, error) {
	pk, err := parsePublicKey(owner)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxHistory {
		limit = maxHistory
	}

	var sigs []*rpc.TransactionSignature
	err = a.pool.Do(ctx, "solana.history", func(ctx context.Context, c RPC) error {
		var err error
		sigs, err = c.GetSignaturesForAddressWithOpts(ctx, pk, &rpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Commitment: rpc.CommitmentFinalized,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get signatures: %w", err)
	}

	entries := make([]types.HistoryEntry, 0, len(sigs))
	for _, s := range sigs {
		if s == nil {
			continue
		}
		e := types.HistoryEntry{
			Chain:    a.cfg.ID,
			TxHash:   s.Signature.String(),
			Status:   types.StatusConfirmed,
			BlockRef: strconv.FormatUint(s.Slot, 10),
		}
		if s.BlockTime != nil {
			e.Timestamp = time.Unix(int64(*s.BlockTime), 0).UTC()
		}
		if s.Memo != nil {
			e.Memo = *s.Memo
		}
		if s.Err != nil {
			e.Status = types.StatusFailed
			e.Error = fmt.Sprintf("%v", s.Err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

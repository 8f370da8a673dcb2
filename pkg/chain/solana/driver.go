package solana

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"wallet-engine/pkg/broadcast"
	"wallet-engine/pkg/types"
)

// prepareFunc returns an unsigned transaction against a fresh blockhash
type prepareFunc func(ctx context.Context) (*solana.Transaction, error)

// driver signs whatever prepare yields; a rebuild calls prepare again so a
// stale blockhash is never reused
type driver struct {
	a       *Adapter
	prepare prepareFunc
	key     solana.PrivateKey
}

var _ broadcast.Driver = (*driver)(nil)

// localPrepare builds instructions against the latest blockhash
func (a *Adapter) localPrepare(ixs []solana.Instruction, payer solana.PublicKey) prepareFunc {
	return func(ctx context.Context) (*solana.Transaction, error) {
		var blockhash solana.Hash
		err := a.pool.Once(ctx, "solana.blockhash", func(ctx context.Context, c RPC) error {
			out, err := c.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
			if err != nil {
				return err
			}
			if out == nil || out.Value == nil {
				return types.E(types.NodeUnavailable, "solana.blockhash", "node returned no blockhash")
			}
			blockhash = out.Value.Blockhash
			return nil
		})
		if err != nil {
			return nil, err
		}
		return newTx(ixs, blockhash, payer)
	}
}

func (d *driver) Sign(ctx context.Context) (*broadcast.Signed, error) {
	tx, err := d.prepare(ctx)
	if err != nil {
		return nil, err
	}
	if err := signAs(tx, d.key); err != nil {
		return nil, err
	}
	return &broadcast.Signed{Hash: tx.Signatures[0].String(), Payload: tx}, nil
}

func (d *driver) Submit(ctx context.Context, s *broadcast.Signed) (string, error) {
	const op = "solana.submit"
	tx, ok := s.Payload.(*solana.Transaction)
	if !ok {
		return "", types.E(types.ExecutionFailed, op, "unexpected payload %T", s.Payload)
	}

	var sig solana.Signature
	err := d.a.pool.Once(ctx, op, func(ctx context.Context, c RPC) error {
		var err error
		sig, err = c.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       d.a.cfg.SkipPreflight,
			PreflightCommitment: d.a.commit,
		})
		return err
	})
	if err == nil {
		return sig.String(), nil
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "already been processed"), strings.Contains(lower, "alreadyprocessed"):
		// same signature landed through an earlier attempt
		return s.Hash, nil
	case strings.Contains(lower, "insufficient funds"), strings.Contains(lower, "insufficient lamports"):
		return "", types.Wrap(types.InsufficientBalance, op, err)
	}
	return "", types.Wrap(types.ExecutionFailed, op, err)
}

// Poll counts only finalized signatures as confirmed. A missing or failed
// status lookup falls back to getTransaction since either source may lag.
func (d *driver) Poll(ctx context.Context, hash string) (*broadcast.Observation, error) {
	sig, err := solana.SignatureFromBase58(hash)
	if err != nil {
		return nil, types.E(types.ExecutionFailed, "solana.poll", "invalid signature %s: %v", hash, err)
	}

	var status *rpc.SignatureStatusesResult
	statusErr := d.a.pool.Once(ctx, "solana.poll", func(ctx context.Context, c RPC) error {
		out, err := c.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			return err
		}
		if out != nil && len(out.Value) > 0 {
			status = out.Value[0]
		}
		return nil
	})
	if statusErr != nil || status == nil {
		return d.pollTransaction(ctx, sig, statusErr)
	}

	obs := &broadcast.Observation{BlockRef: strconv.FormatUint(status.Slot, 10)}
	switch {
	case status.Err != nil:
		obs.Status = types.StatusFailed
		obs.Err = fmt.Sprintf("%v", status.Err)
	case status.ConfirmationStatus == rpc.ConfirmationStatusFinalized:
		obs.Status = types.StatusConfirmed
	default:
		return &broadcast.Observation{Status: types.StatusPending}, nil
	}
	obs.FeePaid = d.a.feePaid(ctx, sig)
	return obs, nil
}

func (d *driver) pollTransaction(ctx context.Context, sig solana.Signature, statusErr error) (*broadcast.Observation, error) {
	tx, err := d.a.finalizedTx(ctx, sig)
	if err != nil {
		if statusErr != nil {
			return nil, statusErr
		}
		if !errors.Is(err, rpc.ErrNotFound) {
			d.a.log.Debug().Err(err).Str("signature", sig.String()).Msg("Transaction lookup failed")
		}
		return &broadcast.Observation{Status: types.StatusPending}, nil
	}

	obs := &broadcast.Observation{
		Status:   types.StatusConfirmed,
		BlockRef: strconv.FormatUint(tx.Slot, 10),
	}
	if tx.Meta != nil {
		obs.FeePaid = new(big.Int).SetUint64(tx.Meta.Fee)
		if tx.Meta.Err != nil {
			obs.Status = types.StatusFailed
			obs.Err = fmt.Sprintf("%v", tx.Meta.Err)
		}
	}
	return obs, nil
}

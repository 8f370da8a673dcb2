package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"wallet-engine/pkg/broadcast"
	"wallet-engine/pkg/types"
)

// driver signs one call against a fresh pending nonce on every attempt
type driver struct {
	a     *Adapter
	call  txCall
	fee   *types.FeeEstimate
	key   *ecdsa.PrivateKey
	fixed bool // caller supplied the fee

	signs int
}

var _ broadcast.Driver = (*driver)(nil)

func (d *driver) Sign(ctx context.Context) (*broadcast.Signed, error) {
	const op = "evm.sign"

	// a rebuild also reprices unless the caller pinned the fee
	if d.signs > 0 && !d.fixed {
		fee, err := d.a.estimateFee(ctx, d.call)
		if err != nil {
			return nil, err
		}
		d.fee = fee
	}
	d.signs++

	var nonce uint64
	err := d.a.call(ctx, op, func(ctx context.Context) error {
		var err error
		nonce, err = d.a.client.PendingNonceAt(ctx, d.call.from)
		return err
	})
	if err != nil {
		return nil, err
	}

	chainID := big.NewInt(d.a.cfg.ChainID)
	tx, err := buildTx(d.call, d.fee, nonce, chainID)
	if err != nil {
		return nil, err
	}
	signed, err := signTx(tx, chainID, d.key)
	if err != nil {
		return nil, types.Wrap(types.ExecutionFailed, op, err)
	}
	return &broadcast.Signed{Hash: signed.Hash().Hex(), Payload: signed}, nil
}

func (d *driver) Submit(ctx context.Context, s *broadcast.Signed) (string, error) {
	const op = "evm.submit"
	tx, ok := s.Payload.(*gethtypes.Transaction)
	if !ok {
		return "", types.E(types.ExecutionFailed, op, "unexpected payload %T", s.Payload)
	}

	err := d.a.client.SendTransaction(ctx, tx)
	if err == nil {
		return tx.Hash().Hex(), nil
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "already known"):
		// a retried submission of the same signed bytes
		return tx.Hash().Hex(), nil
	case strings.Contains(lower, "insufficient funds"):
		return "", types.Wrap(types.InsufficientBalance, op, err)
	}
	return "", types.Wrap(types.ExecutionFailed, op, d.a.classify(op, err))
}

func (d *driver) Poll(ctx context.Context, hash string) (*broadcast.Observation, error) {
	receipt, err := d.a.client.TransactionReceipt(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return &broadcast.Observation{Status: types.StatusPending}, nil
	}
	if err != nil {
		return nil, d.a.classify("evm.poll", err)
	}
	if receipt == nil {
		return &broadcast.Observation{Status: types.StatusPending}, nil
	}

	obs := &broadcast.Observation{FeePaid: d.feePaid(receipt)}
	if receipt.BlockNumber != nil {
		obs.BlockRef = receipt.BlockNumber.String()
	}
	if receipt.Status == gethtypes.ReceiptStatusSuccessful {
		obs.Status = types.StatusConfirmed
	} else {
		obs.Status = types.StatusFailed
		obs.Err = "execution reverted"
	}
	return obs, nil
}

// feePaid is gas used times the effective price, falling back to the
// price the transaction was signed with
func (d *driver) feePaid(r *gethtypes.Receipt) *big.Int {
	price := r.EffectiveGasPrice
	if price == nil || price.Sign() == 0 {
		switch d.fee.Model {
		case types.FeeModelLegacy:
			price = d.fee.GasPrice
		default:
			price = new(big.Int).Add(d.fee.BaseFee, d.fee.PriorityFee)
		}
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), price)
}

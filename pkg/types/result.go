package types

import (
	"fmt"
	"math/big"
	"time"
)

// TxStatus is the lifecycle state of a broadcast attempt
type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusSubmitted TxStatus = "submitted"
	StatusConfirmed TxStatus = "confirmed"
	StatusFailed    TxStatus = "failed"
	StatusTimedOut  TxStatus = "timed_out"
)

// Terminal reports whether no further transition is possible
func (s TxStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusTimedOut
}

// BroadcastResult is the outcome of one execution
type BroadcastResult struct {
	Chain    ChainID       `json:"chain"`
	Kind     OperationKind `json:"kind"`
	TxHash   string        `json:"tx_hash"`
	Status   TxStatus      `json:"status"`
	BlockRef string        `json:"block_ref,omitempty"`
	// FeePaid is in the native smallest unit
	FeePaid  *big.Int `json:"fee_paid,omitempty"`
	RawError string   `json:"raw_error,omitempty"`
	Rebuilds int      `json:"rebuilds"`
	Explorer string   `json:"explorer,omitempty"`
	// Warnings carry secondary failures that did not change the outcome
	Warnings []string `json:"warnings,omitempty"`
	// Approval is set when a token swap needed a separate allowance transaction
	Approval *BroadcastResult `json:"approval,omitempty"`
}

// RecordKey identifies a TransactionRecord
type RecordKey struct {
	Chain  ChainID
	TxHash string
	Wallet string
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Chain, k.TxHash, k.Wallet)
}

// TransactionRecord is the persisted projection of a BroadcastResult
type TransactionRecord struct {
	ID        string        `json:"id"`
	Chain     ChainID       `json:"chain"`
	TxHash    string        `json:"tx_hash"`
	Wallet    string        `json:"wallet"`
	Kind      OperationKind `json:"kind"`
	Status    TxStatus      `json:"status"`
	From      string        `json:"from"`
	To        string        `json:"to,omitempty"`
	Asset     string        `json:"asset,omitempty"`
	ToAsset   string        `json:"to_asset,omitempty"`
	Amount    string        `json:"amount,omitempty"`
	FeePaid   string        `json:"fee_paid,omitempty"`
	BlockRef  string        `json:"block_ref,omitempty"`
	Error     string        `json:"error,omitempty"`
	Explorer  string        `json:"explorer,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Key returns the idempotency key of the record
func (r *TransactionRecord) Key() RecordKey {
	return RecordKey{Chain: r.Chain, TxHash: r.TxHash, Wallet: r.Wallet}
}

package types

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// FeeEstimate is a tagged union over the supported fee models. Only the fields of
// the selected Model are set; use the constructors to keep them exclusive.
type FeeEstimate struct {
	Model FeeModelKind `json:"model"`

	// legacy
	GasPrice *big.Int `json:"gas_price,omitempty"`

	// eip1559
	BaseFee     *big.Int `json:"base_fee,omitempty"`
	PriorityFee *big.Int `json:"priority_fee,omitempty"`
	MaxFee      *big.Int `json:"max_fee,omitempty"`

	// flat
	Lamports      uint64 `json:"lamports,omitempty"`
	RentSurcharge uint64 `json:"rent_surcharge,omitempty"`

	// GasLimit is the gas limit (EVM) or compute budget (Solana), buffer included
	GasLimit uint64 `json:"gas_limit"`

	// ValueUSD is a best-effort valuation of MaxCost, zero when unpriced
	ValueUSD decimal.Decimal `json:"value_usd"`
}

// NewLegacyFee builds a single gas price estimate
func NewLegacyFee(gasPrice *big.Int, gasLimit uint64) *FeeEstimate {
	return &FeeEstimate{Model: FeeModelLegacy, GasPrice: new(big.Int).Set(gasPrice), GasLimit: gasLimit}
}

// NewEIP1559Fee builds a base/priority fee estimate
func NewEIP1559Fee(baseFee, priorityFee, maxFee *big.Int, gasLimit uint64) *FeeEstimate {
	return &FeeEstimate{
		Model:       FeeModelEIP1559,
		BaseFee:     new(big.Int).Set(baseFee),
		PriorityFee: new(big.Int).Set(priorityFee),
		MaxFee:      new(big.Int).Set(maxFee),
		GasLimit:    gasLimit,
	}
}

// NewFlatFee builds a flat network fee estimate with an optional rent surcharge
func NewFlatFee(lamports, rentSurcharge, computeBudget uint64) *FeeEstimate {
	return &FeeEstimate{Model: FeeModelFlat, Lamports: lamports, RentSurcharge: rentSurcharge, GasLimit: computeBudget}
}

// Validate checks field exclusivity and rejects zero fees
func (f *FeeEstimate) Validate() error {
	if f == nil {
		return E(FeeEstimationFailed, "fee.validate", "missing fee estimate")
	}
	legacy := f.GasPrice != nil
	dynamic := f.BaseFee != nil || f.PriorityFee != nil || f.MaxFee != nil
	flat := f.Lamports != 0 || f.RentSurcharge != 0

	switch f.Model {
	case FeeModelLegacy:
		if !legacy || dynamic || flat {
			return E(FeeEstimationFailed, "fee.validate", "legacy estimate must carry only gas_price")
		}
		if f.GasPrice.Sign() <= 0 {
			return E(FeeEstimationFailed, "fee.validate", "zero gas price")
		}
	case FeeModelEIP1559:
		if legacy || flat || f.BaseFee == nil || f.PriorityFee == nil || f.MaxFee == nil {
			return E(FeeEstimationFailed, "fee.validate", "eip1559 estimate must carry only base/priority/max fee")
		}
		if f.MaxFee.Sign() <= 0 {
			return E(FeeEstimationFailed, "fee.validate", "zero max fee")
		}
	case FeeModelFlat:
		if legacy || dynamic {
			return E(FeeEstimationFailed, "fee.validate", "flat estimate must carry only lamports")
		}
		if f.Lamports == 0 {
			return E(FeeEstimationFailed, "fee.validate", "zero network fee")
		}
	default:
		return E(FeeEstimationFailed, "fee.validate", "unknown fee model %q", f.Model)
	}
	if f.GasLimit == 0 {
		return E(FeeEstimationFailed, "fee.validate", "zero gas limit")
	}
	return nil
}

// MaxCost is the most the sender can be charged, in the native smallest unit
func (f *FeeEstimate) MaxCost() *big.Int {
	switch f.Model {
	case FeeModelLegacy:
		return new(big.Int).Mul(f.GasPrice, new(big.Int).SetUint64(f.GasLimit))
	case FeeModelEIP1559:
		return new(big.Int).Mul(f.MaxFee, new(big.Int).SetUint64(f.GasLimit))
	case FeeModelFlat:
		return new(big.Int).SetUint64(f.Lamports + f.RentSurcharge)
	}
	return big.NewInt(0)
}

func (f *FeeEstimate) String() string {
	switch f.Model {
	case FeeModelLegacy:
		return fmt.Sprintf("legacy gas_price=%s gas_limit=%d", f.GasPrice, f.GasLimit)
	case FeeModelEIP1559:
		return fmt.Sprintf("eip1559 base=%s priority=%s max=%s gas_limit=%d", f.BaseFee, f.PriorityFee, f.MaxFee, f.GasLimit)
	case FeeModelFlat:
		return fmt.Sprintf("flat lamports=%d rent=%d compute=%d", f.Lamports, f.RentSurcharge, f.GasLimit)
	}
	return string(f.Model)
}

package evm

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-engine/pkg/broadcast"
	"wallet-engine/pkg/chain"
	"wallet-engine/pkg/log"
	"wallet-engine/pkg/retry"
	"wallet-engine/pkg/types"
)

const (
	testToken     = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	testRecipient = "0x1111111111111111111111111111111111111111"
)

// fakeClient is an in-memory node
type fakeClient struct {
	mu sync.Mutex

	baseFee  *big.Int
	gasPrice *big.Int
	tip      *big.Int
	rewards  [][]*big.Int
	gas      uint64
	gasErr   error
	balance  *big.Int
	nonce    uint64

	calls   map[string]func(args []interface{}) ([]byte, error)
	sendErr []error
	sent    []*gethtypes.Transaction
	receipt func(n int) (*gethtypes.Receipt, error)
	polls   int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		baseFee:  big.NewInt(30e9),
		gasPrice: big.NewInt(5e9),
		tip:      big.NewInt(2e9),
		gas:      21000,
		balance:  new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18)),
		calls:    map[string]func(args []interface{}) ([]byte, error){},
	}
}

func (f *fakeClient) handle(a abi.ABI, method string, fn func(args []interface{}) ([]interface{}, error)) {
	m := a.Methods[method]
	f.calls[string(m.ID)] = func(args []interface{}) ([]byte, error) {
		out, err := fn(args)
		if err != nil {
			return nil, err
		}
		return m.Outputs.Pack(out...)
	}
}

func (f *fakeClient) ChainID(ctx context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (f *fakeClient) BlockNumber(ctx context.Context) (uint64, error) { return 100, nil }

func (f *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) { return f.gasPrice, nil }

func (f *fakeClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) { return f.tip, nil }

func (f *fakeClient) HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error) {
	return &gethtypes.Header{Number: big.NewInt(100), BaseFee: f.baseFee}, nil
}

func (f *fakeClient) FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error) {
	if f.rewards == nil {
		return nil, errors.New("method not supported")
	}
	return &ethereum.FeeHistory{Reward: f.rewards}, nil
}

func (f *fakeClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return f.gas, f.gasErr
}

func (f *fakeClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if len(msg.Data) < 4 {
		return nil, errors.New("execution reverted")
	}
	for _, a := range []abi.ABI{erc20ABI, routerABI} {
		m, err := a.MethodById(msg.Data[:4])
		if err != nil {
			continue
		}
		fn, ok := f.calls[string(m.ID)]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		args, err := m.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		return fn(args)
	}
	return nil, errors.New("execution reverted")
}

func (f *fakeClient) SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	if len(f.sendErr) > 0 {
		err := f.sendErr[0]
		f.sendErr = f.sendErr[1:]
		if err != nil {
			return err
		}
	}
	f.nonce++
	return nil
}

func (f *fakeClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	f.polls++
	if f.receipt != nil {
		return f.receipt(f.polls)
	}
	return &gethtypes.Receipt{
		Status:            gethtypes.ReceiptStatusSuccessful,
		GasUsed:           21000,
		EffectiveGasPrice: big.NewInt(32e9),
		BlockNumber:       big.NewInt(101),
		TxHash:            txHash,
	}, nil
}

func newTestAdapter(client Client) *Adapter {
	fast := retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return New(DefaultChains["eth"], client, Options{
		Log:   log.Nop(),
		Retry: fast,
		Broadcast: broadcast.Config{
			MaxRebuilds: 2,
			Submit:      fast,
			Poll:        broadcast.PollPolicy{MaxAttempts: 3, Step: time.Millisecond, Cap: time.Millisecond},
		},
		Now: func() time.Time { return time.Unix(1700000000, 0) },
	})
}

func testKey(t *testing.T) (chain.Secret, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return chain.Secret(crypto.FromECDSA(key)), crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func TestEstimateFee_ModelFollowsBaseFee(t *testing.T) {
	c := newFakeClient()
	a := newTestAdapter(c)
	intent := &types.Intent{Kind: types.OpNativeTransfer, From: testRecipient, To: testRecipient, Asset: types.NativeAsset, Amount: decimal.NewFromInt(1)}

	fee, err := a.EstimateTransferFee(context.Background(), intent)
	require.NoError(t, err)
	require.NoError(t, fee.Validate())
	assert.Equal(t, types.FeeModelEIP1559, fee.Model)
	assert.Nil(t, fee.GasPrice)
	assert.Equal(t, big.NewInt(2e9), fee.PriorityFee)
	assert.Equal(t, big.NewInt(62e9), fee.MaxFee)
	assert.Equal(t, uint64(21000), fee.GasLimit)

	c.baseFee = nil
	fee, err = a.EstimateTransferFee(context.Background(), intent)
	require.NoError(t, err)
	require.NoError(t, fee.Validate())
	assert.Equal(t, types.FeeModelLegacy, fee.Model)
	assert.Equal(t, big.NewInt(5e9), fee.GasPrice)
	assert.Nil(t, fee.BaseFee)
	assert.Nil(t, fee.MaxFee)
}

func TestEstimateFee_PriorityFeeFromHistoryMedian(t *testing.T) {
	c := newFakeClient()
	c.rewards = [][]*big.Int{{big.NewInt(1e9)}, {big.NewInt(3e9)}, {big.NewInt(2e9)}}
	a := newTestAdapter(c)

	tip, err := a.priorityFee(context.Background())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2e9), tip)
}

func TestEstimateFee_ZeroGasPrice(t *testing.T) {
	c := newFakeClient()
	c.baseFee = nil
	c.gasPrice = big.NewInt(0)
	a := newTestAdapter(c)

	_, err := a.estimateFee(context.Background(), nativeTransferCall(common.Address{}, common.Address{}, big.NewInt(1)))
	assert.True(t, types.Is(err, types.FeeEstimationFailed))
}

func TestEstimateGasLimit(t *testing.T) {
	c := newFakeClient()
	a := newTestAdapter(c)
	ctx := context.Background()
	to := common.HexToAddress(testRecipient)

	assert.Equal(t, uint64(21000), a.estimateGasLimit(ctx, nativeTransferCall(to, to, big.NewInt(1))))

	c.gas = 50000
	call, err := tokenTransferCall(to, common.HexToAddress(testToken), to, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(60000), a.estimateGasLimit(ctx, call))

	c.gasErr = errors.New("execution reverted")
	assert.Equal(t, GasTokenTransfer, a.estimateGasLimit(ctx, call))
}

func TestTransfer_NativeConfirmed(t *testing.T) {
	c := newFakeClient()
	a := newTestAdapter(c)
	secret, from := testKey(t)

	var submitted string
	res, err := a.Transfer(context.Background(), chain.Execution{
		Intent: &types.Intent{
			Kind:   types.OpNativeTransfer,
			Chain:  "eth",
			From:   from,
			To:     testRecipient,
			Asset:  types.NativeAsset,
			Amount: decimal.RequireFromString("1.5"),
		},
		Signer:      secret,
		OnSubmitted: func(h string) { submitted = h },
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusConfirmed, res.Status)
	assert.Equal(t, types.OpNativeTransfer, res.Kind)
	assert.Equal(t, "101", res.BlockRef)
	assert.Equal(t, 1, res.FeePaid.Sign())
	assert.Equal(t, submitted, res.TxHash)
	assert.Contains(t, res.Explorer, res.TxHash)

	require.Len(t, c.sent, 1)
	tx := c.sent[0]
	assert.Equal(t, uint8(gethtypes.DynamicFeeTxType), tx.Type())
	assert.Equal(t, "1500000000000000000", tx.Value().String())
	assert.Equal(t, common.HexToAddress(testRecipient), *tx.To())
}

func TestTransfer_StaleNonceRebuilds(t *testing.T) {
	c := newFakeClient()
	c.sendErr = []error{errors.New("nonce too low")}
	a := newTestAdapter(c)
	secret, from := testKey(t)

	res, err := a.Transfer(context.Background(), chain.Execution{
		Intent: &types.Intent{Kind: types.OpNativeTransfer, From: from, To: testRecipient, Asset: types.NativeAsset, Amount: decimal.NewFromInt(1)},
		Signer: secret,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rebuilds)
	assert.Len(t, c.sent, 2)
}

func TestTransfer_AlreadyKnownIsAccepted(t *testing.T) {
	c := newFakeClient()
	c.sendErr = []error{errors.New("already known")}
	a := newTestAdapter(c)
	secret, from := testKey(t)

	res, err := a.Transfer(context.Background(), chain.Execution{
		Intent: &types.Intent{Kind: types.OpNativeTransfer, From: from, To: testRecipient, Asset: types.NativeAsset, Amount: decimal.NewFromInt(1)},
		Signer: secret,
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusConfirmed, res.Status)
	assert.Equal(t, 0, res.Rebuilds)
	assert.Equal(t, c.sent[0].Hash().Hex(), res.TxHash)
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	c := newFakeClient()
	c.balance = big.NewInt(1e18)
	a := newTestAdapter(c)
	secret, from := testKey(t)

	res, err := a.Transfer(context.Background(), chain.Execution{
		Intent: &types.Intent{Kind: types.OpNativeTransfer, From: from, To: testRecipient, Asset: types.NativeAsset, Amount: decimal.NewFromInt(1)},
		Signer: secret,
	})
	assert.Nil(t, res)
	assert.True(t, types.Is(err, types.InsufficientBalance))
	assert.Empty(t, c.sent)
}

func TestTransfer_KeyMustControlSender(t *testing.T) {
	a := newTestAdapter(newFakeClient())
	secret, _ := testKey(t)

	_, err := a.Transfer(context.Background(), chain.Execution{
		Intent: &types.Intent{Kind: types.OpNativeTransfer, From: testRecipient, To: testRecipient, Asset: types.NativeAsset, Amount: decimal.NewFromInt(1)},
		Signer: secret,
	})
	assert.True(t, types.Is(err, types.WalletUnavailable))
}

func TestTransfer_RevertedReceiptFails(t *testing.T) {
	c := newFakeClient()
	c.receipt = func(n int) (*gethtypes.Receipt, error) {
		if n == 1 {
			return nil, ethereum.NotFound
		}
		return &gethtypes.Receipt{Status: gethtypes.ReceiptStatusFailed, GasUsed: 21000, EffectiveGasPrice: big.NewInt(1e9), BlockNumber: big.NewInt(7)}, nil
	}
	a := newTestAdapter(c)
	secret, from := testKey(t)

	res, err := a.Transfer(context.Background(), chain.Execution{
		Intent: &types.Intent{Kind: types.OpNativeTransfer, From: from, To: testRecipient, Asset: types.NativeAsset, Amount: decimal.NewFromInt(1)},
		Signer: secret,
	})
	require.NotNil(t, res)
	assert.True(t, types.Is(err, types.TransactionFailed))
	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Equal(t, big.NewInt(21000*1e9), res.FeePaid)
}

// quoteRouter prices WETH at 2000 tokens per unit with 1% impact on anything
// above one unit
func quoteRouter(c *fakeClient) {
	c.handle(routerABI, "getAmountsOut", func(args []interface{}) ([]interface{}, error) {
		in := args[0].(*big.Int)
		out := new(big.Int).Mul(in, big.NewInt(2000))
		if in.Cmp(big.NewInt(1e18)) > 0 {
			out.Mul(out, big.NewInt(99)).Div(out, big.NewInt(100))
		}
		return []interface{}{[]*big.Int{in, out}}, nil
	})
}

func swapIntent(from string) *types.Intent {
	return &types.Intent{
		Kind:        types.OpSwap,
		Chain:       "eth",
		From:        from,
		Asset:       types.NativeAsset,
		ToAsset:     testToken,
		Amount:      decimal.NewFromInt(2),
		SlippagePct: decimal.NewFromInt(1),
	}
}

func TestQuote_MinimumReceivedAndImpact(t *testing.T) {
	c := newFakeClient()
	quoteRouter(c)
	a := newTestAdapter(c)

	q, err := a.Quote(context.Background(), swapIntent(testRecipient))
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", q.InputAmount.String())
	assert.Equal(t, "3960000000000000000000", q.OutputAmount.String())
	assert.Equal(t, "3920400000000000000000", q.MinimumReceived.String())
	require.NotNil(t, q.PriceImpactPct)
	assert.True(t, decimal.NewFromInt(1).Equal(*q.PriceImpactPct))
	assert.False(t, q.ImpactClamped)
	assert.Equal(t, types.NativeAsset, q.FromAsset)
	assert.Contains(t, q.RouteID, DefaultChains["eth"].Router)
}

func TestQuote_NoLiquidity(t *testing.T) {
	a := newTestAdapter(newFakeClient())

	_, err := a.Quote(context.Background(), swapIntent(testRecipient))
	assert.True(t, types.Is(err, types.QuoteUnavailable))
}

func TestPriceImpact(t *testing.T) {
	one := big.NewInt(1e18)

	impact, clamped := priceImpact(big.NewInt(2e18), big.NewInt(1e18), one, one)
	require.NotNil(t, impact)
	assert.True(t, MaxDisplayedImpact.Equal(*impact))
	assert.True(t, clamped)

	impact, clamped = priceImpact(one, big.NewInt(2e18), one, one)
	require.NotNil(t, impact)
	assert.True(t, impact.IsZero())
	assert.False(t, clamped)

	impact, _ = priceImpact(one, one, one, big.NewInt(0))
	assert.Nil(t, impact)
}

func TestValidateRoute_RejectsMismatchedAssets(t *testing.T) {
	c := newFakeClient()
	quoteRouter(c)
	a := newTestAdapter(c)

	intent := swapIntent(testRecipient)
	q, err := a.Quote(context.Background(), intent)
	require.NoError(t, err)
	require.NoError(t, a.ValidateRoute(intent, q))

	other := *intent
	other.ToAsset = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	assert.True(t, types.Is(a.ValidateRoute(&other, q), types.RouteMismatch))

	foreign := *q
	foreign.RouteID = "0x0000000000000000000000000000000000000001:x>y"
	assert.True(t, types.Is(a.ValidateRoute(intent, &foreign), types.RouteMismatch))
}

func TestSwap_NativeForToken(t *testing.T) {
	c := newFakeClient()
	c.gas = 150000
	quoteRouter(c)
	a := newTestAdapter(c)
	secret, from := testKey(t)
	intent := swapIntent(from)

	q, err := a.Quote(context.Background(), intent)
	require.NoError(t, err)

	res, err := a.Swap(context.Background(), chain.Execution{Intent: intent, Quote: q, Signer: secret})
	require.NoError(t, err)
	assert.Equal(t, types.StatusConfirmed, res.Status)
	assert.Equal(t, types.OpSwap, res.Kind)
	assert.Nil(t, res.Approval)

	require.Len(t, c.sent, 1)
	tx := c.sent[0]
	assert.Equal(t, common.HexToAddress(DefaultChains["eth"].Router), *tx.To())
	assert.Equal(t, q.InputAmount, tx.Value())

	m, err := routerABI.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "swapExactETHForTokens", m.Name)
	args, err := m.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, q.MinimumReceived, args[0].(*big.Int))
}

func TestSwap_TokenApprovesFirst(t *testing.T) {
	c := newFakeClient()
	c.handle(erc20ABI, "decimals", func([]interface{}) ([]interface{}, error) { return []interface{}{uint8(6)}, nil })
	c.handle(erc20ABI, "balanceOf", func([]interface{}) ([]interface{}, error) { return []interface{}{big.NewInt(5e6)}, nil })
	c.handle(erc20ABI, "allowance", func([]interface{}) ([]interface{}, error) { return []interface{}{big.NewInt(0)}, nil })
	c.handle(erc20ABI, "symbol", func([]interface{}) ([]interface{}, error) { return []interface{}{"USDC"}, nil })
	c.handle(erc20ABI, "name", func([]interface{}) ([]interface{}, error) { return []interface{}{"USD Coin"}, nil })
	c.handle(routerABI, "getAmountsOut", func(args []interface{}) ([]interface{}, error) {
		in := args[0].(*big.Int)
		return []interface{}{[]*big.Int{in, new(big.Int).Mul(in, big.NewInt(1e9))}}, nil
	})
	a := newTestAdapter(c)
	secret, from := testKey(t)

	intent := &types.Intent{Kind: types.OpSwap, From: from, Asset: testToken, ToAsset: types.NativeAsset, Amount: decimal.NewFromInt(2)}
	q, err := a.Quote(context.Background(), intent)
	require.NoError(t, err)

	res, err := a.Swap(context.Background(), chain.Execution{Intent: intent, Quote: q, Signer: secret})
	require.NoError(t, err)
	require.NotNil(t, res.Approval)
	assert.Equal(t, types.OpApprove, res.Approval.Kind)
	assert.Equal(t, types.StatusConfirmed, res.Approval.Status)

	require.Len(t, c.sent, 2)
	m, err := erc20ABI.MethodById(c.sent[0].Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "approve", m.Name)
	m, err = routerABI.MethodById(c.sent[1].Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "swapExactTokensForETH", m.Name)
	assert.Equal(t, c.sent[0].Nonce()+1, c.sent[1].Nonce())
}

func TestSwap_AmountChangedSinceQuote(t *testing.T) {
	c := newFakeClient()
	quoteRouter(c)
	a := newTestAdapter(c)
	secret, from := testKey(t)
	intent := swapIntent(from)

	q, err := a.Quote(context.Background(), intent)
	require.NoError(t, err)

	changed := *intent
	changed.Amount = decimal.NewFromInt(3)
	_, err = a.Swap(context.Background(), chain.Execution{Intent: &changed, Quote: q, Signer: secret})
	assert.True(t, types.Is(err, types.RouteMismatch))
	assert.Empty(t, c.sent)
}

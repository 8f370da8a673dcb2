package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-engine/pkg/chain"
	"wallet-engine/pkg/health"
	"wallet-engine/pkg/retry"
	"wallet-engine/pkg/types"
)

const testRecipient = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

func solIntent(from string, amount string) *types.Intent {
	return &types.Intent{
		Kind:   types.OpNativeTransfer,
		Chain:  "solana",
		From:   from,
		To:     testRecipient,
		Asset:  types.NativeAsset,
		Amount: decimal.RequireFromString(amount),
	}
}

func TestValidateAddress(t *testing.T) {
	a := testAdapter(testPool(newFakeRPC()), nil)
	assert.NoError(t, a.ValidateAddress(testRecipient))
	assert.True(t, types.Is(a.ValidateAddress("0x1111111111111111111111111111111111111111"), types.InvalidAddress))
}

func TestTransfer_NativeFinalized(t *testing.T) {
	node := newFakeRPC()
	key, secret := newWallet()
	node.lamports[key.PublicKey()] = 2 * solana.LAMPORTS_PER_SOL
	a := testAdapter(testPool(node), nil)

	res, err := a.Transfer(context.Background(), chain.Execution{
		Intent: solIntent(key.PublicKey().String(), "1.5"),
		Signer: chain.Secret(secret),
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusConfirmed, res.Status)
	assert.Equal(t, "250", res.BlockRef)
	assert.Equal(t, uint64(5000), res.FeePaid.Uint64())
	assert.Equal(t, 0, res.Rebuilds)

	require.Len(t, node.sent, 1)
	tx := node.sent[0]
	require.NoError(t, tx.VerifySignatures())
	assert.Equal(t, tx.Signatures[0].String(), res.TxHash)
}

func TestTransfer_StaleBlockhashRebuildsOnce(t *testing.T) {
	node := newFakeRPC()
	node.sendErr = []error{errors.New("Transaction simulation failed: Blockhash not found")}
	key, secret := newWallet()
	node.lamports[key.PublicKey()] = 2 * solana.LAMPORTS_PER_SOL
	a := testAdapter(testPool(node), nil)

	res, err := a.Transfer(context.Background(), chain.Execution{
		Intent: solIntent(key.PublicKey().String(), "1"),
		Signer: chain.Secret(secret),
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusConfirmed, res.Status)
	assert.Equal(t, 1, res.Rebuilds)
	assert.Equal(t, 2, node.blockhashes)

	require.Len(t, node.sent, 2)
	assert.NotEqual(t, node.sent[0].Message.RecentBlockhash, node.sent[1].Message.RecentBlockhash)
}

func TestTransfer_OnChainError(t *testing.T) {
	node := newFakeRPC()
	node.status = func(n int) *rpc.SignatureStatusesResult {
		if n == 1 {
			return &rpc.SignatureStatusesResult{Slot: 249, ConfirmationStatus: rpc.ConfirmationStatusConfirmed}
		}
		return &rpc.SignatureStatusesResult{Slot: 250, Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}}
	}
	key, secret := newWallet()
	node.lamports[key.PublicKey()] = 2 * solana.LAMPORTS_PER_SOL
	a := testAdapter(testPool(node), nil)

	res, err := a.Transfer(context.Background(), chain.Execution{
		Intent: solIntent(key.PublicKey().String(), "1"),
		Signer: chain.Secret(secret),
	})
	require.NotNil(t, res)
	assert.True(t, types.Is(err, types.TransactionFailed))
	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Contains(t, res.RawError, "InstructionError")
}

func TestTransfer_NotFinalizedTimesOut(t *testing.T) {
	node := newFakeRPC()
	node.status = func(int) *rpc.SignatureStatusesResult {
		return &rpc.SignatureStatusesResult{Slot: 249, ConfirmationStatus: rpc.ConfirmationStatusConfirmed}
	}
	key, secret := newWallet()
	node.lamports[key.PublicKey()] = 2 * solana.LAMPORTS_PER_SOL
	a := testAdapter(testPool(node), nil)

	res, err := a.Transfer(context.Background(), chain.Execution{
		Intent: solIntent(key.PublicKey().String(), "1"),
		Signer: chain.Secret(secret),
	})
	require.NotNil(t, res)
	assert.True(t, types.Is(err, types.TransactionTimedOut))
	assert.Equal(t, types.StatusTimedOut, res.Status)
	assert.Equal(t, 3, node.polls)
}

func TestTransfer_StatusLagConfirmsFromTransaction(t *testing.T) {
	node := newFakeRPC()
	node.status = func(int) *rpc.SignatureStatusesResult { return nil }
	key, secret := newWallet()
	node.lamports[key.PublicKey()] = 2 * solana.LAMPORTS_PER_SOL
	a := testAdapter(testPool(node), nil)

	res, err := a.Transfer(context.Background(), chain.Execution{
		Intent: solIntent(key.PublicKey().String(), "1"),
		Signer: chain.Secret(secret),
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusConfirmed, res.Status)
	assert.Equal(t, "250", res.BlockRef)
	assert.Equal(t, uint64(5000), res.FeePaid.Uint64())
	assert.Equal(t, 1, node.polls)
}

func TestTransfer_StatusErrorFallsBackToTransaction(t *testing.T) {
	node := newFakeRPC()
	node.statusErr = errors.New("invalid param: signature status unavailable")
	node.txErr = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
	key, secret := newWallet()
	node.lamports[key.PublicKey()] = 2 * solana.LAMPORTS_PER_SOL
	a := testAdapter(testPool(node), nil)

	res, err := a.Transfer(context.Background(), chain.Execution{
		Intent: solIntent(key.PublicKey().String(), "1"),
		Signer: chain.Secret(secret),
	})
	require.NotNil(t, res)
	assert.True(t, types.Is(err, types.TransactionFailed))
	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Contains(t, res.RawError, "InstructionError")
}

func TestTransfer_UnknownEverywhereTimesOut(t *testing.T) {
	node := newFakeRPC()
	node.status = func(int) *rpc.SignatureStatusesResult { return nil }
	node.txMissing = true
	key, secret := newWallet()
	node.lamports[key.PublicKey()] = 2 * solana.LAMPORTS_PER_SOL
	a := testAdapter(testPool(node), nil)

	res, err := a.Transfer(context.Background(), chain.Execution{
		Intent: solIntent(key.PublicKey().String(), "1"),
		Signer: chain.Secret(secret),
	})
	require.NotNil(t, res)
	assert.True(t, types.Is(err, types.TransactionTimedOut))
	assert.Equal(t, 3, node.polls)
	assert.Equal(t, 3, node.txLookups)
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	node := newFakeRPC()
	key, secret := newWallet()
	node.lamports[key.PublicKey()] = solana.LAMPORTS_PER_SOL
	a := testAdapter(testPool(node), nil)

	_, err := a.Transfer(context.Background(), chain.Execution{
		Intent: solIntent(key.PublicKey().String(), "1"),
		Signer: chain.Secret(secret),
	})
	assert.True(t, types.Is(err, types.InsufficientBalance))
	assert.Contains(t, err.Error(), "need at least 1.000005 SOL (amount 1 + fees 0.000005), have 1")
	assert.Empty(t, node.sent)
}

func TestEstimateTransferFee_TokenAccountRent(t *testing.T) {
	node := newFakeRPC()
	usdc := solana.MustPublicKeyFromBase58(USDCMint)
	node.accounts[usdc] = mintData(6, 1_000_000)
	a := testAdapter(testPool(node), nil)

	recipient := solana.NewWallet().PublicKey()
	intent := &types.Intent{Kind: types.OpTokenTransfer, From: testRecipient, To: recipient.String(), Asset: USDCMint, Amount: decimal.NewFromInt(5)}
	fee, err := a.EstimateTransferFee(context.Background(), intent)
	require.NoError(t, err)
	require.NoError(t, fee.Validate())
	assert.Equal(t, types.FeeModelFlat, fee.Model)
	assert.Equal(t, LamportsPerSignature, fee.Lamports)
	assert.Equal(t, TokenAccountRent, fee.RentSurcharge)
	assert.Equal(t, uint64(440000), fee.GasLimit)

	// recipient account now exists
	dest, _, err := solana.FindAssociatedTokenAddress(recipient, usdc)
	require.NoError(t, err)
	node.accounts[dest] = tokenAccountData(usdc, recipient, 0)

	fee, err = a.EstimateTransferFee(context.Background(), intent)
	require.NoError(t, err)
	assert.Zero(t, fee.RentSurcharge)
	assert.Equal(t, uint64(220000), fee.GasLimit)
}

func TestTokenInfo_DecodesMint(t *testing.T) {
	node := newFakeRPC()
	node.accounts[solana.MustPublicKeyFromBase58(USDCMint)] = mintData(6, 1_000_000)
	a := testAdapter(testPool(node), nil)

	tok, err := a.TokenInfo(context.Background(), USDCMint)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), tok.Decimals)
	assert.Equal(t, "USDC", tok.Symbol)
	assert.False(t, tok.IsNFT)
}

func TestPool_FailsOverToHealthyNode(t *testing.T) {
	down := newFakeRPC()
	down.balanceErr = errors.New("dial tcp: connection refused")
	up := newFakeRPC()
	owner := solana.MustPublicKeyFromBase58(testRecipient)
	up.lamports[owner] = 42

	pool := testPool(down, up)
	a := testAdapter(pool, nil)

	bal, err := a.NativeBalance(context.Background(), testRecipient)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), bal.Uint64())
	assert.Equal(t, "node-1", pool.Active().URL)
}

func TestPool_SkipsUnhealthyBackup(t *testing.T) {
	down := newFakeRPC()
	down.balanceErr = errors.New("503 Service Unavailable")
	sick := newFakeRPC()
	sick.healthErr = errors.New("Node is behind by 120 slots")

	pool := testPool(down, sick)
	_, err := testAdapter(pool, nil).NativeBalance(context.Background(), testRecipient)
	assert.True(t, types.Is(err, types.NodeUnavailable))
	assert.Equal(t, "node-0", pool.Active().URL)
}

func TestPool_FailsOverByRecentSuccess(t *testing.T) {
	down := newFakeRPC()
	down.balanceErr = errors.New("dial tcp: connection refused")
	flaky := newFakeRPC()
	steady := newFakeRPC()
	owner := solana.MustPublicKeyFromBase58(testRecipient)
	flaky.lamports[owner] = 7
	steady.lamports[owner] = 42

	mon := health.NewMonitor(time.Second)
	mon.Observe("solana", "node-1", time.Millisecond, errors.New("timeout"))
	mon.Observe("solana", "node-2", time.Millisecond, nil)

	pool := testPoolWith(mon, down, flaky, steady)
	bal, err := testAdapter(pool, nil).NativeBalance(context.Background(), testRecipient)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), bal.Uint64())
	assert.Equal(t, "node-2", pool.Active().URL)
}

func TestPool_NonNodeErrorDoesNotFailOver(t *testing.T) {
	first := newFakeRPC()
	first.balanceErr = errors.New("invalid param: WrongSize")
	second := newFakeRPC()

	pool := testPool(first, second)
	_, err := testAdapter(pool, nil).NativeBalance(context.Background(), testRecipient)
	require.Error(t, err)
	assert.Equal(t, "node-0", pool.Active().URL)
}

func TestHistory(t *testing.T) {
	node := newFakeRPC()
	bt := solana.UnixTimeSeconds(1700000000)
	memo := "invoice 7"
	node.history = []*rpc.TransactionSignature{
		{Signature: solana.Signature{1}, Slot: 10, BlockTime: &bt, Memo: &memo},
		{Signature: solana.Signature{2}, Slot: 11, Err: "InstructionError"},
	}
	a := testAdapter(testPool(node), nil)

	entries, err := a.History(context.Background(), testRecipient, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, types.StatusConfirmed, entries[0].Status)
	assert.Equal(t, "invoice 7", entries[0].Memo)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), entries[0].Timestamp)
	assert.Equal(t, types.StatusFailed, entries[1].Status)
	assert.Equal(t, "11", entries[1].BlockRef)
}

func TestTransferNFT(t *testing.T) {
	node := newFakeRPC()
	key, secret := newWallet()
	owner := key.PublicKey()
	node.lamports[owner] = solana.LAMPORTS_PER_SOL

	mint := solana.NewWallet().PublicKey()
	empty := solana.NewWallet().PublicKey()
	holder := solana.NewWallet().PublicKey()
	node.holders = []*rpc.TokenAccount{
		{Pubkey: empty, Account: rpc.Account{Data: rpc.DataBytesOrJSONFromBytes(tokenAccountData(mint, owner, 0))}},
		{Pubkey: holder, Account: rpc.Account{Data: rpc.DataBytesOrJSONFromBytes(tokenAccountData(mint, owner, 1))}},
	}
	a := testAdapter(testPool(node), nil)

	intent := &types.Intent{Kind: types.OpNFTTransfer, From: owner.String(), To: testRecipient, Asset: mint.String()}
	fee, err := a.EstimateNFTFee(context.Background(), intent)
	require.NoError(t, err)
	assert.Equal(t, TokenAccountRent, fee.RentSurcharge)

	res, err := a.TransferNFT(context.Background(), chain.Execution{Intent: intent, Signer: chain.Secret(secret)})
	require.NoError(t, err)
	assert.Equal(t, types.OpNFTTransfer, res.Kind)
	assert.Equal(t, types.StatusConfirmed, res.Status)

	require.Len(t, node.sent, 1)
	ixs := node.sent[0].Message.Instructions
	require.Len(t, ixs, 2)
	accounts := node.sent[0].Message.AccountKeys
	// TransferChecked takes the holder account first
	assert.Equal(t, holder, accounts[ixs[1].Accounts[0]])
}

func TestTransferNFT_NotHeld(t *testing.T) {
	node := newFakeRPC()
	key, secret := newWallet()
	node.lamports[key.PublicKey()] = solana.LAMPORTS_PER_SOL
	a := testAdapter(testPool(node), nil)

	intent := &types.Intent{Kind: types.OpNFTTransfer, From: key.PublicKey().String(), To: testRecipient, Asset: USDCMint}
	_, err := a.TransferNFT(context.Background(), chain.Execution{Intent: intent, Signer: chain.Secret(secret)})
	assert.True(t, types.Is(err, types.InsufficientBalance))
}

// jupiterServer serves a fixed SOL -> USDC route and assembles swaps into a
// transfer signed by nobody
func jupiterServer(t *testing.T, user solana.PublicKey) (*httptest.Server, *int) {
	t.Helper()
	swaps := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("outputMint") == "11111111111111111111111111111111" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"Could not find any route","errorCode":"COULD_NOT_FIND_ANY_ROUTE"}`)
			return
		}
		assert.Equal(t, "100", q.Get("slippageBps"))
		fmt.Fprintf(w, `{"inputMint":%q,"inAmount":%q,"outputMint":%q,"outAmount":"150000000","otherAmountThreshold":"148500000","swapMode":"ExactIn","slippageBps":100,"priceImpactPct":"0.0012","routePlan":[{"swapInfo":{"ammKey":"x","label":"Orca"},"percent":100}],"contextSlot":5}`,
			q.Get("inputMint"), q.Get("amount"), q.Get("outputMint"))
	})
	mux.HandleFunc("/swap", func(w http.ResponseWriter, r *http.Request) {
		swaps++
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, user.String(), body["userPublicKey"])
		assert.Equal(t, true, body["wrapAndUnwrapSol"])

		var h solana.Hash
		h[0] = byte(swaps)
		tx, err := solana.NewTransaction([]solana.Instruction{
			system.NewTransferInstruction(1, user, solana.MustPublicKeyFromBase58(testRecipient)).Build(),
		}, h, solana.TransactionPayer(user))
		require.NoError(t, err)
		tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
		raw, err := tx.MarshalBinary()
		require.NoError(t, err)
		fmt.Fprintf(w, `{"swapTransaction":%q,"lastValidBlockHeight":100}`, base64.StdEncoding.EncodeToString(raw))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &swaps
}

func swapSetup(t *testing.T, lamports uint64, ataExists bool) (*Adapter, *fakeRPC, *types.Intent, chain.Secret, *int) {
	t.Helper()
	node := newFakeRPC()
	key, secret := newWallet()
	owner := key.PublicKey()
	node.lamports[owner] = lamports
	usdc := solana.MustPublicKeyFromBase58(USDCMint)
	node.accounts[usdc] = mintData(6, 1_000_000_000)
	if ataExists {
		ata, _, err := solana.FindAssociatedTokenAddress(owner, usdc)
		require.NoError(t, err)
		node.accounts[ata] = tokenAccountData(usdc, owner, 0)
	}

	srv, swaps := jupiterServer(t, owner)
	jup := NewJupiter(srv.URL, srv.Client(), nil, retry.Policy{MaxAttempts: 1})
	intent := &types.Intent{
		Kind:        types.OpSwap,
		Chain:       "solana",
		From:        owner.String(),
		Asset:       types.NativeAsset,
		ToAsset:     USDCMint,
		Amount:      decimal.NewFromInt(1),
		SlippagePct: decimal.NewFromInt(1),
	}
	return testAdapter(testPool(node), jup), node, intent, chain.Secret(secret), swaps
}

func TestQuote_Jupiter(t *testing.T) {
	a, _, intent, _, _ := swapSetup(t, solana.LAMPORTS_PER_SOL, true)

	q, err := a.Quote(context.Background(), intent)
	require.NoError(t, err)
	assert.Equal(t, "1000000000", q.InputAmount.String())
	assert.Equal(t, "150000000", q.OutputAmount.String())
	assert.Equal(t, "148500000", q.MinimumReceived.String())
	assert.Equal(t, types.NativeAsset, q.FromAsset)
	assert.Equal(t, USDCMint, q.ToAsset)
	require.NotNil(t, q.PriceImpactPct)
	assert.Equal(t, "0.12", q.PriceImpactPct.String())
	require.NoError(t, a.ValidateRoute(intent, q))
}

func TestQuote_NoRoute(t *testing.T) {
	a, _, intent, _, _ := swapSetup(t, solana.LAMPORTS_PER_SOL, true)
	intent.ToAsset = "11111111111111111111111111111111"

	_, err := a.Quote(context.Background(), intent)
	assert.True(t, types.Is(err, types.QuoteUnavailable))
}

func TestValidateRoute_TamperedRoute(t *testing.T) {
	a, _, intent, _, _ := swapSetup(t, solana.LAMPORTS_PER_SOL, true)
	q, err := a.Quote(context.Background(), intent)
	require.NoError(t, err)

	tampered := *q
	tampered.Route = json.RawMessage(`{"inputMint":"So11111111111111111111111111111111111111112","outputMint":"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB","inAmount":"1000000000"}`)
	assert.True(t, types.Is(a.ValidateRoute(intent, &tampered), types.RouteMismatch))

	changed := *intent
	changed.ToAsset = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	assert.True(t, types.Is(a.ValidateRoute(&changed, q), types.RouteMismatch))
}

func TestSwap_MissingTokenAccountRaisesFloor(t *testing.T) {
	// enough for the existing-account floor but not for account creation
	a, node, intent, secret, swaps := swapSetup(t, 1_002_000_000, false)
	q, err := a.Quote(context.Background(), intent)
	require.NoError(t, err)

	_, err = a.Swap(context.Background(), chain.Execution{Intent: intent, Quote: q, Signer: secret})
	require.Error(t, err)
	assert.True(t, types.Is(err, types.InsufficientBalance))
	assert.Contains(t, err.Error(), "need at least 1.003 SOL (amount 1 + fees 0.003), have 1.002")
	assert.Empty(t, node.sent)
	assert.Zero(t, *swaps)
}

func TestEstimateSwapFee_IncludesPriorityFee(t *testing.T) {
	a, _, intent, _, _ := swapSetup(t, solana.LAMPORTS_PER_SOL, true)
	q, err := a.Quote(context.Background(), intent)
	require.NoError(t, err)

	fee, err := a.EstimateSwapFee(context.Background(), intent, q)
	require.NoError(t, err)
	// 4 instructions * 200k units + 10% at 1000 micro-lamports per unit
	assert.Equal(t, uint64(880000), fee.GasLimit)
	assert.Equal(t, LamportsPerSignature+880, fee.Lamports)
	assert.Zero(t, fee.RentSurcharge)
}

func TestSwap_ExistingTokenAccount(t *testing.T) {
	a, node, intent, secret, swaps := swapSetup(t, 1_002_000_000, true)
	q, err := a.Quote(context.Background(), intent)
	require.NoError(t, err)

	res, err := a.Swap(context.Background(), chain.Execution{Intent: intent, Quote: q, Signer: secret})
	require.NoError(t, err)
	assert.Equal(t, types.OpSwap, res.Kind)
	assert.Equal(t, types.StatusConfirmed, res.Status)
	assert.Equal(t, 1, *swaps)

	require.Len(t, node.sent, 1)
	require.NoError(t, node.sent[0].VerifySignatures())
}

func TestSwap_StaleRouteReassembles(t *testing.T) {
	a, node, intent, secret, swaps := swapSetup(t, 2*solana.LAMPORTS_PER_SOL, true)
	node.sendErr = []error{errors.New("Transaction simulation failed: Blockhash not found")}
	q, err := a.Quote(context.Background(), intent)
	require.NoError(t, err)

	res, err := a.Swap(context.Background(), chain.Execution{Intent: intent, Quote: q, Signer: secret})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rebuilds)
	assert.Equal(t, 2, *swaps)
}

func TestSwap_AmountChangedSinceQuote(t *testing.T) {
	a, node, intent, secret, _ := swapSetup(t, 2*solana.LAMPORTS_PER_SOL, true)
	q, err := a.Quote(context.Background(), intent)
	require.NoError(t, err)

	changed := *intent
	changed.Amount = decimal.RequireFromString("1.5")
	_, err = a.Swap(context.Background(), chain.Execution{Intent: &changed, Quote: q, Signer: secret})
	assert.True(t, types.Is(err, types.RouteMismatch))
	assert.Empty(t, node.sent)
}

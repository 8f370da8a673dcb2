package solana

import (
	"context"
	"encoding/binary"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"wallet-engine/pkg/broadcast"
	"wallet-engine/pkg/health"
	"wallet-engine/pkg/log"
	"wallet-engine/pkg/retry"
)

// fakeRPC is an in-memory node
type fakeRPC struct {
	mu sync.Mutex

	health     string
	healthErr  error
	balanceErr error
	lamports   map[solana.PublicKey]uint64
	accounts   map[solana.PublicKey][]byte
	tokens     map[solana.PublicKey]uint64
	holders    []*rpc.TokenAccount
	rent       uint64

	blockhashes int
	sendErr     []error
	sent        []*solana.Transaction
	status      func(n int) *rpc.SignatureStatusesResult
	statusErr   error
	polls       int
	fee         uint64
	txMissing   bool
	txErr       interface{}
	txLookups   int
	history     []*rpc.TransactionSignature
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		health:   "ok",
		lamports: map[solana.PublicKey]uint64{},
		accounts: map[solana.PublicKey][]byte{},
		tokens:   map[solana.PublicKey]uint64{},
		rent:     TokenAccountRent,
		fee:      5000,
	}
}

func (f *fakeRPC) GetHealth(ctx context.Context) (string, error) {
	return f.health, f.healthErr
}

func (f *fakeRPC) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return &rpc.GetBalanceResult{Value: f.lamports[account]}, nil
}

func (f *fakeRPC) GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	data, ok := f.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: &rpc.Account{Data: rpc.DataBytesOrJSONFromBytes(data)}}, nil
}

func (f *fakeRPC) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockhashes++
	var h solana.Hash
	h[0] = byte(f.blockhashes)
	return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: h, LastValidBlockHeight: 1000}}, nil
}

func (f *fakeRPC) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error) {
	return f.rent, nil
}

func (f *fakeRPC) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	amount, ok := f.tokens[account]
	if !ok {
		return nil, errors.New("Invalid param: could not find account")
	}
	return &rpc.GetTokenAccountBalanceResult{Value: &rpc.UiTokenAmount{Amount: strconv.FormatUint(amount, 10)}}, nil
}

func (f *fakeRPC) GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error) {
	return &rpc.GetTokenAccountsResult{Value: f.holders}, nil
}

func (f *fakeRPC) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	if len(f.sendErr) > 0 {
		err := f.sendErr[0]
		f.sendErr = f.sendErr[1:]
		if err != nil {
			return solana.Signature{}, err
		}
	}
	return tx.Signatures[0], nil
}

func (f *fakeRPC) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	f.polls++
	n := f.polls
	f.mu.Unlock()

	if f.statusErr != nil {
		return nil, f.statusErr
	}
	st := &rpc.SignatureStatusesResult{Slot: 250, ConfirmationStatus: rpc.ConfirmationStatusFinalized}
	if f.status != nil {
		st = f.status(n)
	}
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{st}}, nil
}

func (f *fakeRPC) GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	f.mu.Lock()
	f.txLookups++
	f.mu.Unlock()
	if f.txMissing {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetTransactionResult{Slot: 250, Meta: &rpc.TransactionMeta{Fee: f.fee, Err: f.txErr}}, nil
}

func (f *fakeRPC) GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	return f.history, nil
}

// mintData lays out an initialized SPL mint account
func mintData(decimals uint8, supply uint64) []byte {
	data := make([]byte, 82)
	binary.LittleEndian.PutUint64(data[36:], supply)
	data[44] = decimals
	data[45] = 1
	return data
}

// tokenAccountData lays out an initialized SPL token account
func tokenAccountData(mint, owner solana.PublicKey, amount uint64) []byte {
	data := make([]byte, 165)
	copy(data[0:], mint[:])
	copy(data[32:], owner[:])
	binary.LittleEndian.PutUint64(data[64:], amount)
	data[108] = 1
	return data
}

func testPool(nodes ...*fakeRPC) *Pool {
	return testPoolWith(health.NewMonitor(time.Second), nodes...)
}

func testPoolWith(monitor *health.Monitor, nodes ...*fakeRPC) *Pool {
	eps := make([]Endpoint, 0, len(nodes))
	for i, n := range nodes {
		eps = append(eps, Endpoint{URL: "node-" + strconv.Itoa(i), Client: n})
	}
	p, err := NewPool("solana", eps, retry.Policy{MaxAttempts: 1}, monitor, log.Nop())
	if err != nil {
		panic(err)
	}
	return p
}

func testAdapter(pool *Pool, jup *Jupiter) *Adapter {
	return New(DefaultConfig(), pool, Options{
		Log:     log.Nop(),
		Jupiter: jup,
		Broadcast: broadcast.Config{
			MaxRebuilds: 3,
			Submit:      retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond},
			Poll:        broadcast.PollPolicy{MaxAttempts: 3, Step: time.Millisecond, Cap: time.Millisecond},
		},
		Now: func() time.Time { return time.Unix(1700000000, 0) },
	})
}

func newWallet() (solana.PrivateKey, []byte) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		panic(err)
	}
	secret := make([]byte, len(key))
	copy(secret, key)
	return key, secret
}

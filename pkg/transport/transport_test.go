package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-engine/pkg/health"
	"wallet-engine/pkg/types"
)

func TestTransport_RecordsRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "4")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	mon := health.NewMonitor(0)
	tr := New(Options{Chain: "eth", Target: srv.URL, Monitor: mon})

	resp, err := tr.Client(time.Second).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	err = Classify("evm.call", errors.New("429 Too Many Requests"), tr)
	assert.True(t, types.Is(err, types.RateLimited))
	assert.Equal(t, 4*time.Second, types.RetryAfterOf(err))
	// the hint is consumed
	assert.Zero(t, tr.RetryAfter())

	snap := mon.Snapshot("eth", srv.URL)
	assert.Equal(t, int64(1), snap.Failed)
}

func TestTransport_RateLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	tr := New(Options{Chain: "solana", Target: srv.URL, RPS: 1, Burst: 1})
	client := tr.Client(time.Second)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	// the second request would wait a full second
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	_, err = client.Do(req)
	assert.Error(t, err)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 2*time.Second, ParseRetryAfter("2", now))
	assert.Equal(t, 30*time.Second, ParseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now))
	assert.Zero(t, ParseRetryAfter("", now))
	assert.Zero(t, ParseRetryAfter("-1", now))
	assert.Zero(t, ParseRetryAfter("soon", now))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		kind types.ErrorKind
	}{
		{errors.New("Blockhash not found"), types.StaleSigningContext},
		{errors.New("nonce too low"), types.StaleSigningContext},
		{errors.New("rate limit exceeded"), types.RateLimited},
		{errors.New("dial tcp: connection refused"), types.NodeUnavailable},
		{errors.New("http status 503"), types.NodeUnavailable},
		{fmt.Errorf("call: %w", context.DeadlineExceeded), types.NodeUnavailable},
		{types.E(types.InsufficientBalance, "x", "y"), types.InsufficientBalance},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, types.KindOf(Classify("op", tt.err, nil)), tt.err.Error())
	}

	assert.Nil(t, Classify("op", nil, nil))

	// transport failures are matched by type
	for _, err := range []error{
		fmt.Errorf("read body: %w", io.ErrUnexpectedEOF),
		fmt.Errorf("post: %w", io.EOF),
		&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")},
	} {
		assert.Equal(t, types.NodeUnavailable, types.KindOf(Classify("op", err, nil)), err.Error())
	}
	// chain errors that merely mention the words stay unclassified
	for _, msg := range []string{
		"program error: escrow timeout not reached",
		"invalid account data: unexpected eof in instruction",
	} {
		assert.Equal(t, types.ErrorKind(""), types.KindOf(Classify("op", errors.New(msg), nil)), msg)
	}
	assert.Equal(t, types.ErrorKind(""), types.KindOf(Classify("op", errors.New("execution reverted"), nil)))
	assert.ErrorIs(t, Classify("op", context.Canceled, nil), context.Canceled)
}

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"wallet-engine/pkg/types"
)

// HintSource yields the pending Retry-After hint of an endpoint
type HintSource interface {
	RetryAfter() time.Duration
}

var rateLimitTokens = []string{"429", "too many requests", "rate limit", "rate-limit"}

var staleTokens = []string{
	"blockhash not found",
	"blockhashnotfound",
	"block hash not found",
	"transaction expired",
	"nonce too low",
	"nonce too high",
	"replacement transaction underpriced",
	"invalid nonce",
}

var nodeTokens = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"network is unreachable",
	"broken pipe",
	"i/o timeout",
	"deadline exceeded",
	"http status 5",
	"500 internal",
	"502 bad gateway",
	"503 service unavailable",
	"504 gateway",
	"bad gateway",
	"service unavailable",
	"node is behind",
	"node is unhealthy",
}

// Classify maps a raw client error onto the engine taxonomy. Already
// classified errors pass through; unknown errors are returned unchanged so the
// caller decides their kind.
func Classify(op string, err error, hints HintSource) error {
	if err == nil {
		return nil
	}
	if types.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	lower := strings.ToLower(err.Error())
	switch {
	case containsAny(lower, rateLimitTokens):
		e := &types.Error{Kind: types.RateLimited, Op: op, Err: err}
		if hints != nil {
			e.RetryAfter = hints.RetryAfter()
		}
		return e
	case containsAny(lower, staleTokens):
		return &types.Error{Kind: types.StaleSigningContext, Op: op, Err: err}
	}

	if nodeFailure(err) || containsAny(lower, nodeTokens) {
		return &types.Error{Kind: types.NodeUnavailable, Op: op, Err: err}
	}
	return err
}

// nodeFailure matches transport failures by type rather than message
func nodeFailure(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"wallet-engine/pkg/retry"
	"wallet-engine/pkg/transport"
	"wallet-engine/pkg/types"
)

// Jupiter is a client for the Jupiter v6 swap aggregator
type Jupiter struct {
	baseURL string
	http    *http.Client
	hints   transport.HintSource
	retry   retry.Policy
}

// NewJupiter creates an aggregator client; hints may be nil
func NewJupiter(baseURL string, httpClient *http.Client, hints transport.HintSource, policy retry.Policy) *Jupiter {
	if baseURL == "" {
		baseURL = DefaultJupiterURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if policy.MaxAttempts <= 0 {
		policy = retry.Default
	}
	return &Jupiter{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, hints: hints, retry: policy}
}

// JupiterQuote is the part of a quote response the engine reads. The full
// response is kept raw and replayed to /swap.
type JupiterQuote struct {
	InputMint            string `json:"inputMint"`
	InAmount             string `json:"inAmount"`
	OutputMint           string `json:"outputMint"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	SwapMode             string `json:"swapMode"`
	SlippageBps          int    `json:"slippageBps"`
	PriceImpactPct       string `json:"priceImpactPct"`
	RoutePlan            []struct {
		SwapInfo struct {
			AmmKey string `json:"ammKey"`
			Label  string `json:"label"`
		} `json:"swapInfo"`
		Percent int `json:"percent"`
	} `json:"routePlan"`
	ContextSlot uint64 `json:"contextSlot"`
}

// Labels lists the AMMs the route passes through
func (q *JupiterQuote) Labels() []string {
	out := make([]string, 0, len(q.RoutePlan))
	for _, step := range q.RoutePlan {
		out = append(out, step.SwapInfo.Label)
	}
	return out
}

// ParseJupiterQuote decodes a stored route
func ParseJupiterQuote(raw json.RawMessage) (*JupiterQuote, error) {
	var q JupiterQuote
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// Quote asks for the best route of amount base units of inputMint
func (j *Jupiter) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps uint64) (*JupiterQuote, json.RawMessage, error) {
	const op = "jupiter.quote"

	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", strconv.FormatUint(amount, 10))
	params.Set("slippageBps", strconv.FormatUint(slippageBps, 10))

	var raw []byte
	err := retry.Do(ctx, j.retry, retry.Transient, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.baseURL+"/quote?"+params.Encode(), nil)
		if err != nil {
			return err
		}
		raw, err = j.do(op, req)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	q, err := ParseJupiterQuote(raw)
	if err != nil {
		return nil, nil, types.E(types.QuoteUnavailable, op, "malformed quote response: %v", err)
	}
	if q.OutAmount == "" || q.OutAmount == "0" {
		return nil, nil, types.E(types.QuoteUnavailable, op, "no route from %s to %s", inputMint, outputMint)
	}
	return q, json.RawMessage(raw), nil
}

type swapRequest struct {
	QuoteResponse                 json.RawMessage `json:"quoteResponse"`
	UserPublicKey                 string          `json:"userPublicKey"`
	WrapAndUnwrapSol              bool            `json:"wrapAndUnwrapSol"`
	ComputeUnitPriceMicroLamports uint64          `json:"computeUnitPriceMicroLamports,omitempty"`
	DestinationTokenAccount       string          `json:"destinationTokenAccount,omitempty"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// SwapTransaction assembles the route into an unsigned transaction carrying
// a fresh blockhash. destination is set only for an existing token account.
func (j *Jupiter) SwapTransaction(ctx context.Context, route json.RawMessage, user, destination string, computeUnitPrice uint64) (*solana.Transaction, error) {
	const op = "jupiter.swap"

	body, err := json.Marshal(swapRequest{
		QuoteResponse:                 route,
		UserPublicKey:                 user,
		WrapAndUnwrapSol:              true,
		ComputeUnitPriceMicroLamports: computeUnitPrice,
		DestinationTokenAccount:       destination,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode swap request: %w", err)
	}

	var raw []byte
	err = retry.Do(ctx, j.retry, retry.OnlyKinds(types.RateLimited, types.NodeUnavailable), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+"/swap", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		raw, err = j.do(op, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	var resp swapResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.SwapTransaction == "" {
		return nil, types.E(types.QuoteUnavailable, op, "aggregator returned no transaction")
	}
	txBytes, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("failed to decode swap transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(txBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse swap transaction: %w", err)
	}
	return tx, nil
}

// do sends the request and maps HTTP failures onto the error taxonomy
func (j *Jupiter) do(op string, req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := j.http.Do(req)
	if err != nil {
		return nil, transport.Classify(op, err, j.hints)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, transport.Classify(op, err, j.hints)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e := &types.Error{Kind: types.RateLimited, Op: op, Msg: "aggregator rate limit"}
		if j.hints != nil {
			e.RetryAfter = j.hints.RetryAfter()
		}
		return nil, e
	case resp.StatusCode >= 500:
		return nil, types.E(types.NodeUnavailable, op, "aggregator returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, types.E(types.QuoteUnavailable, op, "aggregator returned %d: %s", resp.StatusCode, errorMessage(body))
	}
	return body, nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error     string `json:"error"`
		ErrorCode string `json:"errorCode"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-engine/pkg/types"
)

var tokens = []Token{
	{AssetID: "nep141:wrap.near", Symbol: "wNEAR", Blockchain: "near", Decimals: 24},
	{AssetID: "nep141:sol.omft.near", Symbol: "SOL", Blockchain: "sol", Decimals: 9},
	{AssetID: "nep141:eth-usdc", Symbol: "USDC", Blockchain: "eth", Decimals: 6, ContractAddress: "0xa0b8"},
	{AssetID: "nep141:sol-usdc", Symbol: "USDC", Blockchain: "sol", Decimals: 6},
}

func TestMatchToken(t *testing.T) {
	tok, err := MatchToken(tokens, "usdc", "SOL")
	require.NoError(t, err)
	assert.Equal(t, "nep141:sol-usdc", tok.AssetID)

	tok, err = MatchToken(tokens, "USDC", "")
	require.NoError(t, err)
	assert.Equal(t, "eth", tok.Blockchain)

	// partial match only without a chain
	tok, err = MatchToken(tokens, "NEAR", "")
	require.NoError(t, err)
	assert.Equal(t, "wNEAR", tok.Symbol)

	_, err = MatchToken(tokens, "NEAR", "near")
	assert.True(t, types.Is(err, types.QuoteUnavailable))
	assert.Contains(t, err.Error(), "not found on chain 'near'")
}

func TestTokenBaseUnits(t *testing.T) {
	tok := tokens[1]
	assert.Equal(t, "1500000000", tok.BaseUnits(decimal.RequireFromString("1.5")))
	assert.Equal(t, "1", tok.BaseUnits(decimal.RequireFromString("0.0000000019")))
}

func response(code int, body string) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(body))}
}

func TestAPIError(t *testing.T) {
	sdkErr := errors.New("400 Bad Request")

	err := apiError("op", response(http.StatusBadRequest, `{"message":"amount is too low"}`), sdkErr)
	assert.True(t, types.Is(err, types.QuoteUnavailable))
	assert.Contains(t, err.Error(), "amount is too low")

	err = apiError("op", response(http.StatusUnauthorized, `{"errors":["jwt expired"]}`), sdkErr)
	assert.True(t, types.Is(err, types.ExecutionFailed))
	assert.Contains(t, err.Error(), "jwt expired")

	err = apiError("op", response(http.StatusTooManyRequests, "slow down"), sdkErr)
	assert.True(t, types.Is(err, types.RateLimited))
	assert.Contains(t, err.Error(), "slow down")

	err = apiError("op", response(http.StatusBadGateway, ""), sdkErr)
	assert.True(t, types.Is(err, types.NodeUnavailable))

	err = apiError("op", nil, errors.New("dial tcp: connection refused"))
	assert.True(t, types.Is(err, types.NodeUnavailable))
}

func TestQuote_SendsSlippageInBasisPoints(t *testing.T) {
	var bodies []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/quote", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"amount is too low"}`)
	}))
	defer srv.Close()

	c := NewOneClick(Config{BaseURL: srv.URL}, srv.Client())
	req := QuoteRequest{Dry: true, OriginAsset: "nep141:sol.omft.near", DestinationAsset: "nep141:eth-usdc",
		Amount: "1000", Recipient: "0xa0b8", SlippageBps: 50}

	_, err := c.Quote(context.Background(), req)
	assert.True(t, types.Is(err, types.QuoteUnavailable))

	req.SlippageBps = 0
	_, err = c.Quote(context.Background(), req)
	assert.Error(t, err)

	require.Len(t, bodies, 2)
	assert.Equal(t, float64(50), bodies[0]["slippageTolerance"])
	assert.Equal(t, float64(100), bodies[1]["slippageTolerance"])
	assert.Equal(t, "0xa0b8", bodies[0]["refundTo"])
}

// Package client wraps the NEAR Intents 1Click API used for cross-chain
// bridging.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/shopspring/decimal"

	"wallet-engine/pkg/types"
)

// Config configures the API client
type Config struct {
	JWTToken string
	// BaseURL overrides the SDK's default server
	BaseURL string
}

// OneClick wraps the 1Click SDK
type OneClick struct {
	api   *oneclick.APIClient
	token string
}

// NewOneClick creates a new 1Click API client
func NewOneClick(cfg Config, httpClient *http.Client) *OneClick {
	conf := oneclick.NewConfiguration()
	if httpClient != nil {
		conf.HTTPClient = httpClient
	}
	if cfg.BaseURL != "" {
		conf.Servers = oneclick.ServerConfigurations{{URL: strings.TrimRight(cfg.BaseURL, "/")}}
	}
	return &OneClick{api: oneclick.NewAPIClient(conf), token: cfg.JWTToken}
}

func (c *OneClick) auth(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return context.WithValue(ctx, oneclick.ContextAccessToken, c.token)
}

// apiError turns an SDK failure into a classified error, keeping the API's
// own message when the body carries one
func apiError(op string, httpResp *http.Response, err error) error {
	if httpResp == nil {
		return types.Wrap(types.NodeUnavailable, op, err)
	}
	defer httpResp.Body.Close()

	msg := err.Error()
	if body, readErr := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20)); readErr == nil && len(body) > 0 {
		var errorResp map[string]interface{}
		if json.Unmarshal(body, &errorResp) == nil {
			if m, ok := errorResp["message"].(string); ok {
				msg = m
			} else if errs, ok := errorResp["errors"]; ok {
				msg = fmt.Sprint(errs)
			}
		} else {
			msg = strings.TrimSpace(string(body))
		}
	}

	switch code := httpResp.StatusCode; {
	case code == http.StatusTooManyRequests:
		return types.E(types.RateLimited, op, "API error (status %d): %s", code, msg)
	case code >= 500:
		return types.E(types.NodeUnavailable, op, "API error (status %d): %s", code, msg)
	case code == http.StatusBadRequest || code == http.StatusNotFound:
		return types.E(types.QuoteUnavailable, op, "API error (status %d): %s", code, msg)
	}
	return types.E(types.ExecutionFailed, op, "API error (status %d): %s", httpResp.StatusCode, msg)
}

// Token is a bridgeable asset
type Token struct {
	AssetID         string `json:"asset_id"`
	Symbol          string `json:"symbol"`
	Blockchain      string `json:"blockchain"`
	Decimals        uint8  `json:"decimals"`
	ContractAddress string `json:"contract_address,omitempty"`
}

func toToken(t *oneclick.TokenResponse) Token {
	return Token{
		AssetID:         t.GetAssetId(),
		Symbol:          t.GetSymbol(),
		Blockchain:      t.GetBlockchain(),
		Decimals:        uint8(t.GetDecimals()),
		ContractAddress: t.GetContractAddress(),
	}
}

// Tokens retrieves all supported tokens
func (c *OneClick) Tokens(ctx context.Context) ([]Token, error) {
	resp, httpResp, err := c.api.OneClickAPI.GetTokens(c.auth(ctx)).Execute()
	if err != nil {
		return nil, apiError("oneclick.tokens", httpResp, err)
	}
	defer httpResp.Body.Close()

	out := make([]Token, 0, len(resp))
	for i := range resp {
		out = append(out, toToken(&resp[i]))
	}
	return out, nil
}

// FindToken searches for a token by symbol, on one blockchain when given
func (c *OneClick) FindToken(ctx context.Context, symbol, blockchain string) (*Token, error) {
	tokens, err := c.Tokens(ctx)
	if err != nil {
		return nil, err
	}
	return MatchToken(tokens, symbol, blockchain)
}

// MatchToken picks a token by exact symbol, falling back to a partial match
// when no blockchain is given
func MatchToken(tokens []Token, symbol, blockchain string) (*Token, error) {
	symbol = strings.ToUpper(symbol)
	blockchain = strings.ToLower(blockchain)

	for i := range tokens {
		t := &tokens[i]
		if strings.ToUpper(t.Symbol) != symbol {
			continue
		}
		if blockchain == "" || strings.ToLower(t.Blockchain) == blockchain {
			return t, nil
		}
	}
	if blockchain == "" {
		for i := range tokens {
			if strings.Contains(strings.ToUpper(tokens[i].Symbol), symbol) {
				return &tokens[i], nil
			}
		}
		return nil, types.E(types.QuoteUnavailable, "oneclick.token", "token '%s' not found", symbol)
	}
	return nil, types.E(types.QuoteUnavailable, "oneclick.token", "token '%s' not found on chain '%s'", symbol, blockchain)
}

// BaseUnits converts a human amount using the token's decimals
func (t *Token) BaseUnits(amount decimal.Decimal) string {
	return types.ToBaseUnits(amount, t.Decimals).String()
}

// QuoteRequest is a bridge quote in resolved asset ids
type QuoteRequest struct {
	Dry              bool
	OriginAsset      string
	DestinationAsset string
	// Amount is in the origin asset's smallest unit
	Amount      string
	SlippageBps int32
	Recipient   string
	RefundTo    string
	Deadline    time.Duration
}

// Quote is the priced leg of a bridge request
type Quote struct {
	// DepositAddress is empty for dry quotes
	DepositAddress string  `json:"deposit_address,omitempty"`
	DepositMemo    string  `json:"deposit_memo,omitempty"`
	AmountIn       string  `json:"amount_in"`
	AmountOut      string  `json:"amount_out"`
	TimeEstimate   float64 `json:"time_estimate_sec"`
}

// Quote requests a bridge quote; a non-dry quote reserves a deposit address
func (c *OneClick) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	const op = "oneclick.quote"
	if req.Recipient == "" {
		return nil, types.E(types.InvalidAddress, op, "recipient address is required")
	}
	refundTo := req.RefundTo
	if refundTo == "" {
		refundTo = req.Recipient
	}
	if req.SlippageBps <= 0 {
		req.SlippageBps = 100
	}
	if req.Deadline <= 0 {
		req.Deadline = 24 * time.Hour
	}

	quoteReq := oneclick.NewQuoteRequest(
		req.Dry,
		"EXACT_INPUT",
		float32(req.SlippageBps),
		req.OriginAsset,
		"ORIGIN_CHAIN",
		req.DestinationAsset,
		req.Amount,
		refundTo,
		"ORIGIN_CHAIN",
		req.Recipient,
		"DESTINATION_CHAIN",
		time.Now().Add(req.Deadline),
	)

	resp, httpResp, err := c.api.OneClickAPI.GetQuote(c.auth(ctx)).QuoteRequest(*quoteReq).Execute()
	if err != nil {
		return nil, apiError(op, httpResp, err)
	}
	defer httpResp.Body.Close()
	if resp == nil {
		return nil, types.E(types.QuoteUnavailable, op, "empty quote response")
	}

	q := resp.GetQuote()
	out := &Quote{
		DepositAddress: q.GetDepositAddress(),
		AmountIn:       q.GetAmountInFormatted(),
		AmountOut:      q.GetAmountOutFormatted(),
		TimeEstimate:   float64(q.GetTimeEstimate()),
	}
	if q.HasDepositMemo() {
		out.DepositMemo = q.GetDepositMemo()
	}
	return out, nil
}

// Status checks the execution status of a bridge deposit
func (c *OneClick) Status(ctx context.Context, depositAddress string) (*types.BridgeStatus, error) {
	resp, httpResp, err := c.api.OneClickAPI.GetExecutionStatus(c.auth(ctx)).DepositAddress(depositAddress).Execute()
	if err != nil {
		return nil, apiError("oneclick.status", httpResp, err)
	}
	defer httpResp.Body.Close()

	st := &types.BridgeStatus{
		DepositAddress: depositAddress,
		Status:         strings.ToUpper(resp.GetStatus()),
		UpdatedAt:      resp.GetUpdatedAt().UTC().Format(time.RFC3339),
	}
	details := resp.GetSwapDetails()
	for _, tx := range details.GetOriginChainTxHashes() {
		if h := tx.GetHash(); h != "" {
			st.TxHashes = append(st.TxHashes, h)
		}
	}
	for _, tx := range details.GetDestinationChainTxHashes() {
		if h := tx.GetHash(); h != "" {
			st.TxHashes = append(st.TxHashes, h)
		}
	}
	if details.HasAmountOutFormatted() {
		st.AmountOut = details.GetAmountOutFormatted()
	}
	return st, nil
}

// SubmitDeposit tells the API which transaction funded the deposit address
func (c *OneClick) SubmitDeposit(ctx context.Context, depositAddress, txHash string) error {
	req := oneclick.NewSubmitDepositTxRequest(depositAddress, txHash)
	_, httpResp, err := c.api.OneClickAPI.SubmitDepositTx(c.auth(ctx)).SubmitDepositTxRequest(*req).Execute()
	if err != nil {
		return apiError("oneclick.deposit", httpResp, err)
	}
	defer httpResp.Body.Close()
	return nil
}

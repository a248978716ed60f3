package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// KisConfig holds the credentials and endpoint for a Korea Investment &
// Securities REST session (original_source's trader-exchange/kis/auth.rs
// and config.rs).
type KisConfig struct {
	AppKey       string
	AppSecret    string
	BaseURL      string
	Personalized bool
	Timeout      time.Duration
}

type kisTokenResponse struct {
	AccessToken          string `json:"access_token"`
	TokenType            string `json:"token_type"`
	ExpiresIn            int64  `json:"expires_in"`
	AccessTokenExpiredAt string `json:"access_token_token_expired"`
}

type kisErrorResponse struct {
	ReturnCode string `json:"rt_cd"`
	MessageCd  string `json:"msg_cd"`
	Message1   string `json:"msg1"`
}

// KisConnector is a REST connector against the KIS trading API. Only the
// endpoints the core execution pipeline needs are modeled; streaming
// quotes are out of scope (spec.md explicitly treats connector internals
// as an external collaborator behind the Connector interface).
type KisConnector struct {
	logger *zap.Logger
	config KisConfig
	client *http.Client
	tokens *TokenCache
}

// NewKisConnector wires a TokenCache whose RefreshFunc calls KIS's
// client-credentials token endpoint.
func NewKisConnector(logger *zap.Logger, config KisConfig) *KisConnector {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	c := &KisConnector{
		logger: logger.Named("connector.kis"),
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
	c.tokens = NewTokenCache(c.requestToken)
	return c
}

func (k *KisConnector) requestToken(ctx context.Context) (Token, error) {
	if len(k.config.AppKey) < 20 || len(k.config.AppSecret) < 20 {
		return Token{}, fmt.Errorf("%w: KIS app key/secret not configured", types.ErrUnauthorized)
	}

	body, _ := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     k.config.AppKey,
		"appsecret":  k.config.AppSecret,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.config.BaseURL+"/oauth2/tokenP", bytes.NewReader(body))
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", types.ErrNetworkError, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := k.client.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", types.ErrNetworkError, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		var kisErr kisErrorResponse
		if json.Unmarshal(respBody, &kisErr) == nil && kisErr.Message1 != "" {
			return Token{}, &types.APIError{Code: kisErr.MessageCd, Message: kisErr.Message1}
		}
		return Token{}, fmt.Errorf("%w: token request failed (%d): %s", types.ErrUnauthorized, resp.StatusCode, string(respBody))
	}

	var tr kisTokenResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return Token{}, fmt.Errorf("%w: %v", types.ErrParseError, err)
	}

	expiresAt := time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	if parsed, err := time.ParseInLocation("2006-01-02 15:04:05", tr.AccessTokenExpiredAt, kstLocation()); err == nil {
		expiresAt = parsed.UTC()
	}

	return Token{AccessToken: tr.AccessToken, TokenType: tr.TokenType, ExpiresAt: expiresAt}, nil
}

func kstLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

func (k *KisConnector) authedRequest(ctx context.Context, method, path string, body []byte, trID string) (*http.Request, error) {
	tok, err := k.tokens.Get(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, k.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrNetworkError, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("authorization", tok.AuthHeader())
	req.Header.Set("appkey", k.config.AppKey)
	req.Header.Set("appsecret", k.config.AppSecret)
	req.Header.Set("tr_id", trID)
	if k.config.Personalized {
		req.Header.Set("custtype", "P")
	}
	return req, nil
}

// Name satisfies execution.Connector.
func (k *KisConnector) Name() string { return "kis" }

// Submit places a live order. tr_id selection (cash buy vs sell, KRX vs
// overseas) is venue detail deferred to the order-routing table this stub
// does not yet implement; wiring a real order ticket is future work.
func (k *KisConnector) Submit(ctx context.Context, order types.Order) (string, error) {
	return "", fmt.Errorf("%w: live KIS order submission is not wired in this build", types.ErrAPIError)
}

// Cancel is unimplemented for the same reason as Submit.
func (k *KisConnector) Cancel(ctx context.Context, exchangeOrderID string) error {
	return fmt.Errorf("%w: live KIS order cancellation is not wired in this build", types.ErrAPIError)
}

// Modify is unimplemented for the same reason as Submit.
func (k *KisConnector) Modify(ctx context.Context, exchangeOrderID string, quantity, price *decimal.Decimal) error {
	return fmt.Errorf("%w: live KIS order modification is not wired in this build", types.ErrAPIError)
}

// Balance fetches a cash balance. Account/product codes are configuration
// this stub does not yet take; left for the connector's full build-out.
func (k *KisConnector) Balance(ctx context.Context, currency string) (decimal.Decimal, error) {
	return decimal.Zero, fmt.Errorf("%w: KIS balance inquiry is not wired in this build", types.ErrAPIError)
}

// Holdings is unimplemented; see Balance.
func (k *KisConnector) Holdings(ctx context.Context) ([]types.Position, error) {
	return nil, fmt.Errorf("%w: KIS holdings inquiry is not wired in this build", types.ErrAPIError)
}

// Subscribe is unimplemented: KIS's real-time feed is a WebSocket approval
// flow that needs its own approval-key lifecycle, out of scope here.
func (k *KisConnector) Subscribe(ctx context.Context, symbols []types.Symbol) (<-chan types.MarketData, error) {
	return nil, fmt.Errorf("%w: KIS streaming subscribe is not wired in this build, use FetchKlines", types.ErrAPIError)
}

// FetchKlines polls KIS's daily-price endpoint for a symbol's recent bars.
func (k *KisConnector) FetchKlines(ctx context.Context, symbol types.Symbol, tf types.Timeframe, limit int) ([]types.Kline, error) {
	req, err := k.authedRequest(ctx, http.MethodGet,
		fmt.Sprintf("/uapi/domestic-stock/v1/quotations/inquire-daily-price?FID_INPUT_ISCD=%s&FID_PERIOD_DIV_CODE=D&FID_ORG_ADJ_PRC=1", symbol.Base),
		nil, "FHKST01010400")
	if err != nil {
		return nil, err
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrNetworkError, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &types.RateLimitedError{RetryAfterSeconds: 1}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &types.APIError{Code: fmt.Sprintf("%d", resp.StatusCode), Message: string(body)}
	}

	var parsed struct {
		Output []struct {
			Date  string `json:"stck_bsop_date"`
			Open  string `json:"stck_oprc"`
			High  string `json:"stck_hgpr"`
			Low   string `json:"stck_lwpr"`
			Close string `json:"stck_clpr"`
			Vol   string `json:"acml_vol"`
		} `json:"output"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrParseError, err)
	}

	klines := make([]types.Kline, 0, len(parsed.Output))
	for _, row := range parsed.Output {
		if limit > 0 && len(klines) >= limit {
			break
		}
		day, err := time.ParseInLocation("20060102", row.Date, kstLocation())
		if err != nil {
			continue
		}
		klines = append(klines, types.Kline{
			Symbol:    symbol,
			Timeframe: tf,
			OpenTime:  day,
			Open:      parseDecimal(row.Open),
			High:      parseDecimal(row.High),
			Low:       parseDecimal(row.Low),
			Close:     parseDecimal(row.Close),
			Volume:    parseDecimal(row.Vol),
			CloseTime: day.Add(24*time.Hour - time.Nanosecond),
		})
	}
	return klines, nil
}

// Fills is unimplemented: KIS fill notifications arrive over the same
// WebSocket approval flow as Subscribe.
func (k *KisConnector) Fills(ctx context.Context) (<-chan types.ExecutionReport, error) {
	return nil, fmt.Errorf("%w: KIS fill stream is not wired in this build", types.ErrAPIError)
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

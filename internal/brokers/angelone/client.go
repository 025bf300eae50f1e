// Package angelone implements the Angel One SmartAPI client and its
// BrokerAdapter. SmartAPI equity symbols carry the -EQ series suffix.
// Historical data requires a separate data-feed subscription, so the
// adapter does not declare the historical capability.
package angelone

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const requestTimeout = 10 * time.Second

// Client is a thin SmartAPI HTTP client
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

// NewClient creates a SmartAPI client; no connection is opened here
func NewClient(baseURL, apiKey, accessToken string, log zerolog.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-PrivateKey", apiKey).
		SetAuthToken(accessToken)

	return &Client{
		http: http,
		log:  log.With().Str("client", "angelone").Logger(),
	}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) call(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("smartapi request failed: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("failed to decode smartapi response: %w", err)
	}
	if !env.Status {
		return fmt.Errorf("smartapi error: %s", env.Message)
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode smartapi data: %w", err)
		}
	}
	return nil
}

type smartQuote struct {
	TradingSymbol string  `json:"tradingSymbol"`
	Exchange      string  `json:"exchange"`
	LTP           float64 `json:"ltp"`
	Depth         struct {
		Buy  []struct{ Price float64 `json:"price"` } `json:"buy"`
		Sell []struct{ Price float64 `json:"price"` } `json:"sell"`
	} `json:"depth"`
}

// GetQuote fetches a full-mode quote for one symbol
func (c *Client) GetQuote(ctx context.Context, exchange, symbol string) (*smartQuote, error) {
	body := map[string]interface{}{
		"mode": "FULL",
		"exchangeTokens": map[string][]string{
			exchange: {symbol},
		},
	}
	var data struct {
		Fetched []smartQuote `json:"fetched"`
	}
	if err := c.call(ctx, resty.MethodPost, "/rest/secure/angelbroking/market/v1/quote/", body, &data); err != nil {
		return nil, err
	}
	if len(data.Fetched) == 0 {
		return nil, fmt.Errorf("no quote returned for %s", symbol)
	}
	return &data.Fetched[0], nil
}

type smartPosition struct {
	TradingSymbol string `json:"tradingsymbol"`
	Exchange      string `json:"exchange"`
	NetQty        string `json:"netqty"`
	AvgNetPrice   string `json:"avgnetprice"`
	LTP           string `json:"ltp"`
	PnL           string `json:"pnl"`
}

// GetPositions fetches net positions
func (c *Client) GetPositions(ctx context.Context) ([]smartPosition, error) {
	var data []smartPosition
	if err := c.call(ctx, resty.MethodGet, "/rest/secure/angelbroking/order/v1/getPosition", nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// PlaceOrder places a delivery order; price 0 means market order
func (c *Client) PlaceOrder(ctx context.Context, exchange, symbol, side string, quantity int64, price float64) (string, error) {
	body := map[string]string{
		"variety":         "NORMAL",
		"tradingsymbol":   symbol,
		"transactiontype": side,
		"exchange":        exchange,
		"ordertype":       "MARKET",
		"producttype":     "DELIVERY",
		"duration":        "DAY",
		"quantity":        strconv.FormatInt(quantity, 10),
	}
	if price > 0 {
		body["ordertype"] = "LIMIT"
		body["price"] = strconv.FormatFloat(price, 'f', 2, 64)
	}

	var data struct {
		OrderID string `json:"orderid"`
	}
	if err := c.call(ctx, resty.MethodPost, "/rest/secure/angelbroking/order/v1/placeOrder", body, &data); err != nil {
		return "", err
	}
	return data.OrderID, nil
}

// Ping verifies credentials via the profile endpoint
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, resty.MethodGet, "/rest/secure/angelbroking/user/v1/getProfile", nil, nil)
}

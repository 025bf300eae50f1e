// Package zerodha implements the Kite Connect REST client and its
// BrokerAdapter. Zerodha uses plain tradingsymbols (no series suffix); the
// exchange travels as a separate field.
package zerodha

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

// Client is a thin Kite Connect HTTP client
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

// NewClient creates a Kite Connect client. No connection is opened here;
// the first request happens on first use.
func NewClient(baseURL, apiKey, accessToken string, log zerolog.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetHeader("X-Kite-Version", "3").
		SetHeader("Authorization", fmt.Sprintf("token %s:%s", apiKey, accessToken))

	return &Client{
		http: http,
		log:  log.With().Str("client", "zerodha").Logger(),
	}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// call performs a request and unwraps the Kite envelope into out
func (c *Client) call(ctx context.Context, method, path string, form map[string]string, query map[string]string, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if form != nil {
		req.SetFormData(form)
	}
	if query != nil {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("kite request failed: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("failed to decode kite response: %w", err)
	}
	if env.Status != "success" {
		return fmt.Errorf("kite error: %s", env.Message)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode kite data: %w", err)
		}
	}
	return nil
}

type kiteQuote struct {
	LastPrice float64 `json:"last_price"`
	Depth     struct {
		Buy  []struct{ Price float64 `json:"price"` } `json:"buy"`
		Sell []struct{ Price float64 `json:"price"` } `json:"sell"`
	} `json:"depth"`
	Timestamp string `json:"timestamp"`
}

// GetQuote fetches a full quote for an instrument ("NSE:RELIANCE")
func (c *Client) GetQuote(ctx context.Context, instrument string) (*kiteQuote, error) {
	quotes := make(map[string]kiteQuote)
	err := c.call(ctx, resty.MethodGet, "/quote", nil, map[string]string{"i": instrument}, &quotes)
	if err != nil {
		return nil, err
	}
	q, ok := quotes[instrument]
	if !ok {
		return nil, fmt.Errorf("no quote returned for %s", instrument)
	}
	return &q, nil
}

type kitePosition struct {
	TradingSymbol string  `json:"tradingsymbol"`
	Exchange      string  `json:"exchange"`
	Quantity      int64   `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
	LastPrice     float64 `json:"last_price"`
	PnL           float64 `json:"pnl"`
}

// GetPositions fetches net positions
func (c *Client) GetPositions(ctx context.Context) ([]kitePosition, error) {
	var data struct {
		Net []kitePosition `json:"net"`
	}
	if err := c.call(ctx, resty.MethodGet, "/portfolio/positions", nil, nil, &data); err != nil {
		return nil, err
	}
	return data.Net, nil
}

// PlaceOrder places a regular order; price 0 means market order
func (c *Client) PlaceOrder(ctx context.Context, exchange, symbol, side string, quantity int64, price float64) (string, error) {
	form := map[string]string{
		"exchange":         exchange,
		"tradingsymbol":    symbol,
		"transaction_type": side,
		"quantity":         strconv.FormatInt(quantity, 10),
		"product":          "CNC",
		"order_type":       "MARKET",
	}
	if price > 0 {
		form["order_type"] = "LIMIT"
		form["price"] = strconv.FormatFloat(price, 'f', 2, 64)
	}

	var data struct {
		OrderID string `json:"order_id"`
	}
	if err := c.call(ctx, resty.MethodPost, "/orders/regular", form, nil, &data); err != nil {
		return "", err
	}
	return data.OrderID, nil
}

// GetHistorical fetches OHLCV candles for an instrument
func (c *Client) GetHistorical(ctx context.Context, instrument, interval string, from, to time.Time) ([][]interface{}, error) {
	var data struct {
		Candles [][]interface{} `json:"candles"`
	}
	path := fmt.Sprintf("/instruments/historical/%s/%s", instrument, interval)
	query := map[string]string{
		"from": from.Format("2006-01-02 15:04:05"),
		"to":   to.Format("2006-01-02 15:04:05"),
	}
	if err := c.call(ctx, resty.MethodGet, path, nil, query, &data); err != nil {
		return nil, err
	}
	return data.Candles, nil
}

// Ping verifies credentials via the margins endpoint
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, resty.MethodGet, "/user/margins", nil, nil, nil)
}

// Package fyers implements the Fyers v3 REST client and its BrokerAdapter.
// Fyers symbols are exchange-prefixed and carry the -EQ series suffix
// (NSE:RELIANCE-EQ). Order placement is not wired for this broker, so the
// adapter does not declare the order_placement capability.
package fyers

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

// Client is a thin Fyers v3 HTTP client
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

// NewClient creates a Fyers client; no connection is opened here
func NewClient(baseURL, appID, accessToken string, log zerolog.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetHeader("Authorization", fmt.Sprintf("%s:%s", appID, accessToken))

	return &Client{
		http: http,
		log:  log.With().Str("client", "fyers").Logger(),
	}
}

// get performs a GET and checks the Fyers status code ("ok")
func (c *Client) get(ctx context.Context, path string, query map[string]string, out interface{}) error {
	resp, err := c.http.R().SetContext(ctx).SetQueryParams(query).Get(path)
	if err != nil {
		return fmt.Errorf("fyers request failed: %w", err)
	}

	var status struct {
		S       string `json:"s"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body(), &status); err != nil {
		return fmt.Errorf("failed to decode fyers response: %w", err)
	}
	if status.S != "ok" {
		return fmt.Errorf("fyers error: %s", status.Message)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("failed to decode fyers data: %w", err)
		}
	}
	return nil
}

type fyersQuote struct {
	Symbol string  `json:"symbol"`
	LP     float64 `json:"lp"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// GetQuote fetches a quote for a fully-qualified symbol (NSE:RELIANCE-EQ)
func (c *Client) GetQuote(ctx context.Context, symbol string) (*fyersQuote, error) {
	var data struct {
		D []struct {
			V fyersQuote `json:"v"`
		} `json:"d"`
	}
	if err := c.get(ctx, "/data/quotes", map[string]string{"symbols": symbol}, &data); err != nil {
		return nil, err
	}
	if len(data.D) == 0 {
		return nil, fmt.Errorf("no quote returned for %s", symbol)
	}
	q := data.D[0].V
	q.Symbol = symbol
	return &q, nil
}

// GetHistory fetches candles: rows of [epoch, open, high, low, close, volume]
func (c *Client) GetHistory(ctx context.Context, symbol, resolution string, from, to time.Time) ([][]float64, error) {
	var data struct {
		Candles [][]float64 `json:"candles"`
	}
	query := map[string]string{
		"symbol":      symbol,
		"resolution":  resolution,
		"date_format": "0",
		"range_from":  strconv.FormatInt(from.Unix(), 10),
		"range_to":    strconv.FormatInt(to.Unix(), 10),
	}
	if err := c.get(ctx, "/data/history", query, &data); err != nil {
		return nil, err
	}
	return data.Candles, nil
}

type fyersPosition struct {
	Symbol   string  `json:"symbol"`
	NetQty   int64   `json:"netQty"`
	NetAvg   float64 `json:"netAvg"`
	LTP      float64 `json:"ltp"`
	PnL      float64 `json:"pl"`
	Exchange int     `json:"exchange"`
}

// GetPositions fetches net positions
func (c *Client) GetPositions(ctx context.Context) ([]fyersPosition, error) {
	var data struct {
		NetPositions []fyersPosition `json:"netPositions"`
	}
	if err := c.get(ctx, "/positions", nil, &data); err != nil {
		return nil, err
	}
	return data.NetPositions, nil
}

// Ping verifies credentials via the profile endpoint
func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, "/profile", nil, nil)
}

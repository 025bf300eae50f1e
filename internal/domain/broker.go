package domain

import (
	"context"
	"errors"
	"time"
)

// ErrUnsupportedOperation is returned by adapters for capabilities they do
// not declare. Callers should check the registry's SupportsFeature before
// relying on a capability.
var ErrUnsupportedOperation = errors.New("broker does not support this operation")

// Well-known broker identifiers
const (
	BrokerZerodha  = "zerodha"
	BrokerAngelOne = "angelone"
	BrokerFyers    = "fyers"
)

// Feature is a broker capability tag
type Feature string

const (
	FeatureQuote          Feature = "quote"
	FeatureHistorical     Feature = "historical"
	FeatureOrderPlacement Feature = "order_placement"
	FeaturePositions      Feature = "positions"
)

// BrokerMetadata describes a configured broker. Populated at discovery time
// from configuration only; read-only thereafter unless explicitly reloaded.
type BrokerMetadata struct {
	BrokerID    string    `json:"broker_id"`
	DisplayName string    `json:"display_name"`
	Enabled     bool      `json:"enabled"`
	Features    []Feature `json:"supported_features"`
}

// Supports reports whether the metadata declares the given capability
func (m BrokerMetadata) Supports(feature Feature) bool {
	for _, f := range m.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// BrokerPosition is a live position as reported by a broker, with the symbol
// already translated to its canonical EXCHANGE-independent ticker.
type BrokerPosition struct {
	Symbol       string  `json:"symbol"` // Broker-native symbol
	Exchange     string  `json:"exchange"`
	Quantity     int64   `json:"quantity"`
	AveragePrice float64 `json:"average_price"`
	CurrentPrice float64 `json:"current_price"`
	PnL          float64 `json:"pnl"`
}

// BrokerQuote is a point-in-time quote for a single instrument
type BrokerQuote struct {
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	LastPrice float64   `json:"last_price"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Timestamp time.Time `json:"timestamp"`
}

// BrokerCandle is one OHLCV bar from a historical query
type BrokerCandle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// OrderRequest is the order payload handed to the guardrail validator and,
// if allowed, to a broker adapter. Symbol is broker-native by the time it
// reaches PlaceOrder; the caller translates via the symbol transformer.
type OrderRequest struct {
	Symbol     string  `json:"symbol"`
	Exchange   string  `json:"exchange"`
	Side       Signal  `json:"side"`
	Quantity   int64   `json:"quantity"`
	LimitPrice float64 `json:"limit_price"` // 0 means market order
}

// OrderResult is the broker's acknowledgement of a placed order
type OrderResult struct {
	OrderID  string  `json:"order_id"`
	Symbol   string  `json:"symbol"`
	Side     Signal  `json:"side"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
	Status   string  `json:"status"`
}

// HealthResult reports adapter connectivity
type HealthResult struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// BrokerAdapter is the uniform interface over heterogeneous broker APIs.
// Adapters declare their capability set explicitly via Features(); calls
// outside that set return ErrUnsupportedOperation. All network operations
// take a context and honour the underlying client timeout.
type BrokerAdapter interface {
	ID() string
	Features() []Feature

	GetQuote(ctx context.Context, symbol string) (*BrokerQuote, error)
	GetHistorical(ctx context.Context, symbol string, from, to time.Time, interval string) ([]BrokerCandle, error)
	PlaceOrder(ctx context.Context, order OrderRequest) (*OrderResult, error)
	GetPositions(ctx context.Context) ([]BrokerPosition, error)
	IsHealthy(ctx context.Context) (*HealthResult, error)
}

package fyers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/domain"
)

// Adapter implements domain.BrokerAdapter over the Fyers client
type Adapter struct {
	client *Client
	log    zerolog.Logger
}

// NewAdapter builds the Fyers adapter from broker configuration
func NewAdapter(cfg config.BrokerConfig, log zerolog.Logger) (domain.BrokerAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("fyers app id not configured")
	}
	return &Adapter{
		client: NewClient(cfg.BaseURL, cfg.APIKey, cfg.AccessToken, log),
		log:    log.With().Str("adapter", domain.BrokerFyers).Logger(),
	}, nil
}

// ID implements domain.BrokerAdapter
func (a *Adapter) ID() string { return domain.BrokerFyers }

// Features implements domain.BrokerAdapter
func (a *Adapter) Features() []domain.Feature {
	return []domain.Feature{
		domain.FeatureQuote,
		domain.FeatureHistorical,
		domain.FeaturePositions,
	}
}

// GetQuote implements domain.BrokerAdapter. Symbol must already be in Fyers
// format (NSE:RELIANCE-EQ); callers translate via the symbol transformer.
func (a *Adapter) GetQuote(ctx context.Context, symbol string) (*domain.BrokerQuote, error) {
	q, err := a.client.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &domain.BrokerQuote{
		Symbol:    q.Symbol,
		Exchange:  exchangeOf(q.Symbol),
		LastPrice: q.LP,
		Bid:       q.Bid,
		Ask:       q.Ask,
		Timestamp: time.Now(),
	}, nil
}

// GetHistorical implements domain.BrokerAdapter
func (a *Adapter) GetHistorical(ctx context.Context, symbol string, from, to time.Time, interval string) ([]domain.BrokerCandle, error) {
	rows, err := a.client.GetHistory(ctx, symbol, interval, from, to)
	if err != nil {
		return nil, err
	}

	candles := make([]domain.BrokerCandle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		candles = append(candles, domain.BrokerCandle{
			Timestamp: time.Unix(int64(row[0]), 0),
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    int64(row[5]),
		})
	}
	return candles, nil
}

// PlaceOrder implements domain.BrokerAdapter. Order placement is not wired
// for Fyers.
func (a *Adapter) PlaceOrder(_ context.Context, _ domain.OrderRequest) (*domain.OrderResult, error) {
	return nil, domain.ErrUnsupportedOperation
}

// GetPositions implements domain.BrokerAdapter
func (a *Adapter) GetPositions(ctx context.Context) ([]domain.BrokerPosition, error) {
	fyersPositions, err := a.client.GetPositions(ctx)
	if err != nil {
		return nil, err
	}

	positions := make([]domain.BrokerPosition, 0, len(fyersPositions))
	for _, p := range fyersPositions {
		positions = append(positions, domain.BrokerPosition{
			Symbol:       p.Symbol,
			Exchange:     exchangeOf(p.Symbol),
			Quantity:     p.NetQty,
			AveragePrice: p.NetAvg,
			CurrentPrice: p.LTP,
			PnL:          p.PnL,
		})
	}
	return positions, nil
}

// IsHealthy implements domain.BrokerAdapter
func (a *Adapter) IsHealthy(ctx context.Context) (*domain.HealthResult, error) {
	if err := a.client.Ping(ctx); err != nil {
		return &domain.HealthResult{Healthy: false, Detail: err.Error()}, nil
	}
	return &domain.HealthResult{Healthy: true}, nil
}

// exchangeOf extracts the exchange prefix from a Fyers symbol
func exchangeOf(symbol string) string {
	if idx := strings.Index(symbol, ":"); idx > 0 {
		return symbol[:idx]
	}
	return "NSE"
}

package zerodha

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/domain"
)

// Adapter implements domain.BrokerAdapter over the Kite Connect client
type Adapter struct {
	client *Client
	log    zerolog.Logger
}

// NewAdapter builds the Zerodha adapter from broker configuration
func NewAdapter(cfg config.BrokerConfig, log zerolog.Logger) (domain.BrokerAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("zerodha api key not configured")
	}
	return &Adapter{
		client: NewClient(cfg.BaseURL, cfg.APIKey, cfg.AccessToken, log),
		log:    log.With().Str("adapter", domain.BrokerZerodha).Logger(),
	}, nil
}

// ID implements domain.BrokerAdapter
func (a *Adapter) ID() string { return domain.BrokerZerodha }

// Features implements domain.BrokerAdapter
func (a *Adapter) Features() []domain.Feature {
	return []domain.Feature{
		domain.FeatureQuote,
		domain.FeatureHistorical,
		domain.FeatureOrderPlacement,
		domain.FeaturePositions,
	}
}

// GetQuote implements domain.BrokerAdapter. Symbol is the Kite tradingsymbol;
// the instrument key is built as EXCHANGE:SYMBOL.
func (a *Adapter) GetQuote(ctx context.Context, symbol string) (*domain.BrokerQuote, error) {
	instrument := "NSE:" + symbol
	q, err := a.client.GetQuote(ctx, instrument)
	if err != nil {
		return nil, err
	}

	quote := &domain.BrokerQuote{
		Symbol:    symbol,
		Exchange:  "NSE",
		LastPrice: q.LastPrice,
		Timestamp: time.Now(),
	}
	if len(q.Depth.Buy) > 0 {
		quote.Bid = q.Depth.Buy[0].Price
	}
	if len(q.Depth.Sell) > 0 {
		quote.Ask = q.Depth.Sell[0].Price
	}
	return quote, nil
}

// GetHistorical implements domain.BrokerAdapter
func (a *Adapter) GetHistorical(ctx context.Context, symbol string, from, to time.Time, interval string) ([]domain.BrokerCandle, error) {
	raw, err := a.client.GetHistorical(ctx, "NSE:"+symbol, interval, from, to)
	if err != nil {
		return nil, err
	}

	candles := make([]domain.BrokerCandle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		candle := domain.BrokerCandle{}
		if ts, ok := row[0].(string); ok {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				candle.Timestamp = t
			}
		}
		candle.Open = asFloat(row[1])
		candle.High = asFloat(row[2])
		candle.Low = asFloat(row[3])
		candle.Close = asFloat(row[4])
		candle.Volume = int64(asFloat(row[5]))
		candles = append(candles, candle)
	}
	return candles, nil
}

// PlaceOrder implements domain.BrokerAdapter
func (a *Adapter) PlaceOrder(ctx context.Context, order domain.OrderRequest) (*domain.OrderResult, error) {
	orderID, err := a.client.PlaceOrder(ctx, order.Exchange, order.Symbol, string(order.Side), order.Quantity, order.LimitPrice)
	if err != nil {
		return nil, err
	}

	a.log.Info().
		Str("order_id", orderID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Int64("quantity", order.Quantity).
		Msg("Order placed")

	return &domain.OrderResult{
		OrderID:  orderID,
		Symbol:   order.Symbol,
		Side:     order.Side,
		Quantity: order.Quantity,
		Price:    order.LimitPrice,
		Status:   "PLACED",
	}, nil
}

// GetPositions implements domain.BrokerAdapter
func (a *Adapter) GetPositions(ctx context.Context) ([]domain.BrokerPosition, error) {
	kitePositions, err := a.client.GetPositions(ctx)
	if err != nil {
		return nil, err
	}

	positions := make([]domain.BrokerPosition, 0, len(kitePositions))
	for _, p := range kitePositions {
		positions = append(positions, domain.BrokerPosition{
			Symbol:       p.TradingSymbol,
			Exchange:     p.Exchange,
			Quantity:     p.Quantity,
			AveragePrice: p.AveragePrice,
			CurrentPrice: p.LastPrice,
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

func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

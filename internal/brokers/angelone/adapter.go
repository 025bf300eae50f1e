package angelone

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/domain"
)

// Adapter implements domain.BrokerAdapter over the SmartAPI client
type Adapter struct {
	client *Client
	log    zerolog.Logger
}

// NewAdapter builds the Angel One adapter from broker configuration
func NewAdapter(cfg config.BrokerConfig, log zerolog.Logger) (domain.BrokerAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("angelone api key not configured")
	}
	return &Adapter{
		client: NewClient(cfg.BaseURL, cfg.APIKey, cfg.AccessToken, log),
		log:    log.With().Str("adapter", domain.BrokerAngelOne).Logger(),
	}, nil
}

// ID implements domain.BrokerAdapter
func (a *Adapter) ID() string { return domain.BrokerAngelOne }

// Features implements domain.BrokerAdapter
func (a *Adapter) Features() []domain.Feature {
	return []domain.Feature{
		domain.FeatureQuote,
		domain.FeatureOrderPlacement,
		domain.FeaturePositions,
	}
}

// GetQuote implements domain.BrokerAdapter
func (a *Adapter) GetQuote(ctx context.Context, symbol string) (*domain.BrokerQuote, error) {
	q, err := a.client.GetQuote(ctx, "NSE", symbol)
	if err != nil {
		return nil, err
	}

	quote := &domain.BrokerQuote{
		Symbol:    q.TradingSymbol,
		Exchange:  q.Exchange,
		LastPrice: q.LTP,
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

// GetHistorical implements domain.BrokerAdapter. SmartAPI historical data
// needs a separate subscription, so this capability is not declared.
func (a *Adapter) GetHistorical(_ context.Context, _ string, _, _ time.Time, _ string) ([]domain.BrokerCandle, error) {
	return nil, domain.ErrUnsupportedOperation
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

// GetPositions implements domain.BrokerAdapter. SmartAPI reports numeric
// fields as strings; parse failures drop to zero rather than aborting the
// whole snapshot.
func (a *Adapter) GetPositions(ctx context.Context) ([]domain.BrokerPosition, error) {
	smartPositions, err := a.client.GetPositions(ctx)
	if err != nil {
		return nil, err
	}

	positions := make([]domain.BrokerPosition, 0, len(smartPositions))
	for _, p := range smartPositions {
		qty, _ := strconv.ParseInt(p.NetQty, 10, 64)
		avg, _ := strconv.ParseFloat(p.AvgNetPrice, 64)
		ltp, _ := strconv.ParseFloat(p.LTP, 64)
		pnl, _ := strconv.ParseFloat(p.PnL, 64)

		positions = append(positions, domain.BrokerPosition{
			Symbol:       p.TradingSymbol,
			Exchange:     p.Exchange,
			Quantity:     qty,
			AveragePrice: avg,
			CurrentPrice: ltp,
			PnL:          pnl,
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

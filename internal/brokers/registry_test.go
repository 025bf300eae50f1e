package brokers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/domain"
)

type fakeAdapter struct {
	id       string
	features []domain.Feature
}

func (f *fakeAdapter) ID() string                 { return f.id }
func (f *fakeAdapter) Features() []domain.Feature { return f.features }

func (f *fakeAdapter) GetQuote(ctx context.Context, symbol string) (*domain.BrokerQuote, error) {
	return nil, domain.ErrUnsupportedOperation
}

func (f *fakeAdapter) GetHistorical(ctx context.Context, symbol string, from, to time.Time, interval string) ([]domain.BrokerCandle, error) {
	return nil, domain.ErrUnsupportedOperation
}

func (f *fakeAdapter) PlaceOrder(ctx context.Context, order domain.OrderRequest) (*domain.OrderResult, error) {
	return nil, domain.ErrUnsupportedOperation
}

func (f *fakeAdapter) GetPositions(ctx context.Context) ([]domain.BrokerPosition, error) {
	return nil, nil
}

func (f *fakeAdapter) IsHealthy(ctx context.Context) (*domain.HealthResult, error) {
	return &domain.HealthResult{Healthy: true}, nil
}

func testConfigs() map[string]config.BrokerConfig {
	return map[string]config.BrokerConfig{
		"zerodha":  {ID: "zerodha", DisplayName: "Zerodha Kite", Enabled: true},
		"angelone": {ID: "angelone", DisplayName: "Angel One", Enabled: true},
		"fyers":    {ID: "fyers", DisplayName: "Fyers", Enabled: false},
	}
}

func newTestRegistry() *Registry {
	return NewRegistry(zerolog.New(nil).Level(zerolog.Disabled))
}

func TestDiscover_MetadataOnly(t *testing.T) {
	r := newTestRegistry()

	found := r.Discover(testConfigs())
	assert.Equal(t, []string{"angelone", "fyers", "zerodha"}, found)

	m := r.GetMetadata("zerodha")
	require.NotNil(t, m)
	assert.Equal(t, "Zerodha Kite", m.DisplayName)
	assert.True(t, m.Enabled)

	assert.Nil(t, r.GetMetadata("upstox"))
}

func TestGetEnabledBrokers_SortedAndFiltered(t *testing.T) {
	r := newTestRegistry()
	r.Discover(testConfigs())

	assert.Equal(t, []string{"angelone", "zerodha"}, r.GetEnabledBrokers())
}

func TestSupportsFeature(t *testing.T) {
	r := newTestRegistry()
	r.Discover(testConfigs())

	assert.True(t, r.SupportsFeature("zerodha", domain.FeatureOrderPlacement))
	assert.True(t, r.SupportsFeature("zerodha", domain.FeatureHistorical))
	assert.False(t, r.SupportsFeature("angelone", domain.FeatureHistorical))
	assert.False(t, r.SupportsFeature("fyers", domain.FeatureOrderPlacement))
	assert.False(t, r.SupportsFeature("upstox", domain.FeatureQuote))
}

func TestGetBroker_LazyInstantiation(t *testing.T) {
	r := newTestRegistry()
	r.Discover(testConfigs())

	built := 0
	r.RegisterFactory("zerodha", func(cfg config.BrokerConfig, log zerolog.Logger) (domain.BrokerAdapter, error) {
		built++
		return &fakeAdapter{id: "zerodha"}, nil
	})

	// No factory call until first use
	assert.Equal(t, 0, built)

	adapter := r.GetBroker("zerodha")
	require.NotNil(t, adapter)
	assert.Equal(t, 1, built)

	// Second lookup reuses the cached adapter
	assert.Same(t, adapter, r.GetBroker("ZERODHA"))
	assert.Equal(t, 1, built)
}

func TestGetBroker_FactoryFailure(t *testing.T) {
	r := newTestRegistry()
	r.Discover(testConfigs())
	r.RegisterFactory("zerodha", func(cfg config.BrokerConfig, log zerolog.Logger) (domain.BrokerAdapter, error) {
		return nil, errors.New("missing access token")
	})

	assert.Nil(t, r.GetBroker("zerodha"))
}

func TestGetBroker_Unknown(t *testing.T) {
	r := newTestRegistry()
	r.Discover(testConfigs())

	assert.Nil(t, r.GetBroker("upstox"))
	// Configured but no factory registered
	assert.Nil(t, r.GetBroker("angelone"))
}

func TestRegisterAdapter_Idempotent(t *testing.T) {
	r := newTestRegistry()

	first := &fakeAdapter{id: "zerodha"}
	second := &fakeAdapter{id: "zerodha"}

	r.RegisterAdapter(first)
	assert.Same(t, first, r.GetBroker("zerodha"))

	r.RegisterAdapter(second)
	assert.Same(t, second, r.GetBroker("zerodha"))
}

func TestSetEnabled(t *testing.T) {
	r := newTestRegistry()
	r.Discover(testConfigs())

	require.NoError(t, r.SetEnabled("fyers", true))
	assert.Equal(t, []string{"angelone", "fyers", "zerodha"}, r.GetEnabledBrokers())

	require.NoError(t, r.SetEnabled("zerodha", false))
	assert.Equal(t, []string{"angelone", "fyers"}, r.GetEnabledBrokers())

	assert.Error(t, r.SetEnabled("upstox", true))
}

func TestListInfo_Sorted(t *testing.T) {
	r := newTestRegistry()
	r.Discover(testConfigs())

	infos := r.ListInfo()
	require.Len(t, infos, 3)
	assert.Equal(t, "angelone", infos[0].BrokerID)
	assert.Equal(t, "fyers", infos[1].BrokerID)
	assert.Equal(t, "zerodha", infos[2].BrokerID)
}

package symbols

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/wardenhq/warden/internal/domain"
)

func newTestTransformer() *Transformer {
	return NewTransformer(zerolog.New(nil).Level(zerolog.Disabled))
}

func TestToBrokerFormat(t *testing.T) {
	tr := newTestTransformer()

	assert.Equal(t, "RELIANCE", tr.ToBrokerFormat("RELIANCE", "NSE", domain.BrokerZerodha))
	assert.Equal(t, "RELIANCE-EQ", tr.ToBrokerFormat("RELIANCE", "NSE", domain.BrokerAngelOne))
	assert.Equal(t, "NSE:RELIANCE-EQ", tr.ToBrokerFormat("RELIANCE", "NSE", domain.BrokerFyers))
}

func TestToBrokerFormat_NormalizesInput(t *testing.T) {
	tr := newTestTransformer()

	assert.Equal(t, "RELIANCE-EQ", tr.ToBrokerFormat(" reliance ", "nse", "ANGELONE"))
	assert.Equal(t, "NSE:TCS-EQ", tr.ToBrokerFormat("tcs", "nse", "fyers"))
}

func TestToBrokerFormat_UnknownBrokerPassesThrough(t *testing.T) {
	tr := newTestTransformer()

	assert.Equal(t, "RELIANCE", tr.ToBrokerFormat("RELIANCE", "NSE", "upstox"))
}

func TestFromBrokerFormat(t *testing.T) {
	tr := newTestTransformer()

	assert.Equal(t, "RELIANCE", tr.FromBrokerFormat("RELIANCE", "NSE", domain.BrokerZerodha))
	assert.Equal(t, "RELIANCE", tr.FromBrokerFormat("RELIANCE-EQ", "NSE", domain.BrokerAngelOne))
	assert.Equal(t, "RELIANCE", tr.FromBrokerFormat("NSE:RELIANCE-EQ", "NSE", domain.BrokerFyers))
}

func TestRoundTrip(t *testing.T) {
	tr := newTestTransformer()

	brokers := []string{domain.BrokerZerodha, domain.BrokerAngelOne, domain.BrokerFyers}
	tickers := []string{"RELIANCE", "TCS", "INFY", "HDFCBANK"}

	for _, broker := range brokers {
		for _, ticker := range tickers {
			native := tr.ToBrokerFormat(ticker, "NSE", broker)
			assert.Equal(t, ticker, tr.FromBrokerFormat(native, "NSE", broker),
				"round trip for %s via %s", ticker, broker)
		}
	}
}

func TestToStandardFormat(t *testing.T) {
	tr := newTestTransformer()

	assert.Equal(t, "NSE:RELIANCE", tr.ToStandardFormat("RELIANCE", "NSE"))
	assert.Equal(t, "NSE:RELIANCE", tr.ToStandardFormat("NSE:RELIANCE", "BSE"))
	assert.Equal(t, "BSE:TCS", tr.ToStandardFormat("tcs", "bse"))
}

func TestCache(t *testing.T) {
	tr := newTestTransformer()
	assert.Equal(t, 0, tr.CacheSize())

	tr.ToBrokerFormat("RELIANCE", "NSE", domain.BrokerFyers)
	assert.Equal(t, 1, tr.CacheSize())

	// Repeat hit does not grow the cache
	tr.ToBrokerFormat("RELIANCE", "NSE", domain.BrokerFyers)
	assert.Equal(t, 1, tr.CacheSize())

	// Same ticker through another broker is a distinct entry
	tr.ToBrokerFormat("RELIANCE", "NSE", domain.BrokerAngelOne)
	assert.Equal(t, 2, tr.CacheSize())

	tr.ClearCache()
	assert.Equal(t, 0, tr.CacheSize())
}

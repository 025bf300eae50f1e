package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDecisionContract_Valid(t *testing.T) {
	d, err := NewDecisionContract("NSE:RELIANCE", SignalBuy, 82.5, 2450.0, "momentum_v2", "1.4.0", 5*time.Minute)
	require.NoError(t, err)

	assert.NotEmpty(t, d.DecisionID)
	assert.Equal(t, "NSE:RELIANCE", d.Symbol)
	assert.Equal(t, SignalBuy, d.Signal)
	assert.True(t, d.ValidTill.After(d.DecisionTime))
}

func TestNewDecisionContract_NonPositiveTTL(t *testing.T) {
	_, err := NewDecisionContract("NSE:TCS", SignalBuy, 70, 3500, "momentum_v2", "1.0.0", 0)
	assert.Error(t, err)

	_, err = NewDecisionContract("NSE:TCS", SignalBuy, 70, 3500, "momentum_v2", "1.0.0", -time.Minute)
	assert.Error(t, err)
}

func TestNewDecisionContract_Validation(t *testing.T) {
	tests := []struct {
		name       string
		symbol     string
		signal     Signal
		confidence float64
		price      float64
		strategy   string
	}{
		{"empty symbol", "", SignalBuy, 50, 100, "strat"},
		{"empty strategy", "NSE:TCS", SignalBuy, 50, 100, ""},
		{"bad signal", "NSE:TCS", Signal("HOLD"), 50, 100, "strat"},
		{"confidence below range", "NSE:TCS", SignalBuy, -1, 100, "strat"},
		{"confidence above range", "NSE:TCS", SignalBuy, 101, 100, "strat"},
		{"zero price", "NSE:TCS", SignalBuy, 50, 0, "strat"},
		{"negative price", "NSE:TCS", SignalBuy, 50, -10, "strat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecisionContract(tt.symbol, tt.signal, tt.confidence, tt.price, tt.strategy, "1.0.0", time.Minute)
			assert.Error(t, err)
		})
	}
}

func TestDecisionContract_IsValidAt(t *testing.T) {
	d, err := NewDecisionContract("NSE:INFY", SignalSell, 60, 1500, "meanrev", "2.0.0", 5*time.Minute)
	require.NoError(t, err)

	assert.True(t, d.IsValidAt(d.DecisionTime))
	assert.True(t, d.IsValidAt(d.ValidTill))
	assert.True(t, d.IsValidAt(d.DecisionTime.Add(time.Minute)))
	assert.False(t, d.IsValidAt(d.ValidTill.Add(time.Second)))
	assert.False(t, d.IsValidAt(d.DecisionTime.Add(-time.Second)))
}

func TestSignalFromString(t *testing.T) {
	s, err := SignalFromString("buy")
	require.NoError(t, err)
	assert.Equal(t, SignalBuy, s)

	s, err = SignalFromString("SELL")
	require.NoError(t, err)
	assert.Equal(t, SignalSell, s)

	_, err = SignalFromString("hold")
	assert.Error(t, err)
}

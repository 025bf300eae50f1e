// Package symbols translates between the canonical EXCHANGE:TICKER
// representation used internally and each broker's native symbol format.
package symbols

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/internal/domain"
)

// rule is a pure, deterministic symbol transformation for one broker.
// to must be total; from is the inverse where one exists. Brokers whose
// native format requires an instrument-master lookup (e.g. numeric tokens)
// fall back to the suffix convention documented on the rule.
type rule struct {
	to   func(symbol, exchange string) string
	from func(brokerSymbol, exchange string) string
}

var rules = map[string]rule{
	// Kite uses the plain tradingsymbol; exchange travels separately.
	domain.BrokerZerodha: {
		to:   func(symbol, _ string) string { return symbol },
		from: func(brokerSymbol, _ string) string { return brokerSymbol },
	},
	// SmartAPI equity symbols carry the -EQ series suffix. The numeric
	// symboltoken SmartAPI also wants is an instrument-master lookup not
	// available locally, so the suffix form is the documented fallback.
	domain.BrokerAngelOne: {
		to: func(symbol, _ string) string { return symbol + "-EQ" },
		from: func(brokerSymbol, _ string) string {
			return strings.TrimSuffix(brokerSymbol, "-EQ")
		},
	},
	// Fyers prefixes the exchange and appends the -EQ series suffix.
	domain.BrokerFyers: {
		to: func(symbol, exchange string) string {
			return fmt.Sprintf("%s:%s-EQ", exchange, symbol)
		},
		from: func(brokerSymbol, _ string) string {
			s := brokerSymbol
			if idx := strings.Index(s, ":"); idx >= 0 {
				s = s[idx+1:]
			}
			return strings.TrimSuffix(s, "-EQ")
		},
	},
}

// Transformer caches per-broker symbol translations. The cache never expires
// within a process lifetime; ClearCache wipes it deterministically after
// instrument-master reloads and in tests.
type Transformer struct {
	mu    sync.RWMutex
	cache map[string]string
	log   zerolog.Logger
}

// NewTransformer creates a symbol transformer
func NewTransformer(log zerolog.Logger) *Transformer {
	return &Transformer{
		cache: make(map[string]string),
		log:   log.With().Str("component", "symbols").Logger(),
	}
}

// ToBrokerFormat translates a canonical ticker to the broker's native format.
// Unknown brokers pass through unchanged (identity is the safe default for
// read-only callers; order placement always goes through a registered broker).
func (t *Transformer) ToBrokerFormat(symbol, exchange, brokerID string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	exchange = strings.ToUpper(strings.TrimSpace(exchange))
	brokerID = strings.ToLower(strings.TrimSpace(brokerID))

	key := brokerID + "|" + exchange + "|" + symbol
	t.mu.RLock()
	if cached, ok := t.cache[key]; ok {
		t.mu.RUnlock()
		return cached
	}
	t.mu.RUnlock()

	out := symbol
	if r, ok := rules[brokerID]; ok {
		out = r.to(symbol, exchange)
	} else {
		t.log.Debug().Str("broker", brokerID).Str("symbol", symbol).Msg("No transformation rule, passing symbol through")
	}

	t.mu.Lock()
	t.cache[key] = out
	t.mu.Unlock()

	return out
}

// FromBrokerFormat translates a broker-native symbol back to the canonical
// ticker. For brokers with a true inverse, FromBrokerFormat(ToBrokerFormat(x))
// == x.
func (t *Transformer) FromBrokerFormat(brokerSymbol, exchange, brokerID string) string {
	brokerSymbol = strings.ToUpper(strings.TrimSpace(brokerSymbol))
	exchange = strings.ToUpper(strings.TrimSpace(exchange))
	brokerID = strings.ToLower(strings.TrimSpace(brokerID))

	if r, ok := rules[brokerID]; ok {
		return r.from(brokerSymbol, exchange)
	}
	return brokerSymbol
}

// ToStandardFormat builds the canonical EXCHANGE:SYMBOL representation
func (t *Transformer) ToStandardFormat(symbol, exchange string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	exchange = strings.ToUpper(strings.TrimSpace(exchange))
	if strings.Contains(symbol, ":") {
		return symbol
	}
	return exchange + ":" + symbol
}

// ClearCache wipes the translation cache
func (t *Transformer) ClearCache() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache = make(map[string]string)
}

// CacheSize returns the number of cached translations
func (t *Transformer) CacheSize() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.cache)
}

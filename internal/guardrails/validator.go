// Package guardrails implements the deterministic pre-trade safety gate.
// Checks run in a fixed order and the first failure wins, so every verdict
// is auditable and reproducible. Infrastructure failures during a check
// block the trade (fail-closed) - the gate never fails open.
package guardrails

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/wardenhq/warden/internal/alerts"
	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/execstate"
	"github.com/wardenhq/warden/internal/modules/trading"
)

// Block reason codes, returned verbatim by the control surface
const (
	ReasonExecutionDisabled      = "EXECUTION_DISABLED"
	ReasonDecisionExpired        = "DECISION_EXPIRED"
	ReasonExchangeNotWhitelisted = "EXCHANGE_NOT_WHITELISTED"
	ReasonSymbolNotWhitelisted   = "SYMBOL_NOT_WHITELISTED"
	ReasonStrategyNotWhitelisted = "STRATEGY_NOT_WHITELISTED"
	ReasonMaxQuantityExceeded    = "MAX_QUANTITY_EXCEEDED"
	ReasonMaxNotionalExceeded    = "MAX_NOTIONAL_EXCEEDED"
	ReasonMaxTradesPerSymbolDay  = "MAX_TRADES_PER_SYMBOL_DAY_EXCEEDED"
	ReasonValidationError        = "VALIDATION_ERROR"
)

// Verdict is the outcome of one guardrail evaluation. Blocks are expected,
// structured outcomes - not errors.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func block(reason string) Verdict { return Verdict{Allowed: false, Reason: reason} }

var allow = Verdict{Allowed: true}

// ExecutionStater resolves the effective execution state (kill switch)
type ExecutionStater interface {
	Status() execstate.Status
}

// ExecutionCounter supplies the frequency-cap backing query: count of
// successful executions for a symbol since local midnight.
type ExecutionCounter interface {
	CountExecutionsForSymbolToday(symbol string, now time.Time) (int, error)
}

// VerdictRecorder appends verdicts to the audit trail
type VerdictRecorder interface {
	RecordVerdict(v trading.Verdict) error
}

// Config holds the guardrail limits and whitelists
type Config struct {
	HomeExchange          string
	AllowedExchanges      []string
	AllowedSymbols        []string // Canonical EXCHANGE:TICKER form
	AllowedStrategies     []string
	MaxQuantity           int64
	MaxNotional           float64
	MaxTradesPerSymbolDay int
}

// Validator evaluates the pre-trade safety gate
type Validator struct {
	execState ExecutionStater
	counter   ExecutionCounter
	audit     VerdictRecorder
	alerter   alerts.Alerter
	now       func() time.Time

	homeExchange      string
	allowedExchanges  map[string]bool
	allowedSymbols    map[string]bool
	allowedStrategies map[string]bool
	maxQuantity       int64
	maxNotional       decimal.Decimal
	maxTradesPerDay   int

	log zerolog.Logger
}

// NewValidator creates a guardrail validator
func NewValidator(
	cfg Config,
	execState ExecutionStater,
	counter ExecutionCounter,
	audit VerdictRecorder,
	alerter alerts.Alerter,
	log zerolog.Logger,
) *Validator {
	return &Validator{
		execState:         execState,
		counter:           counter,
		audit:             audit,
		alerter:           alerter,
		now:               time.Now,
		homeExchange:      strings.ToUpper(cfg.HomeExchange),
		allowedExchanges:  toSet(cfg.AllowedExchanges),
		allowedSymbols:    toSet(cfg.AllowedSymbols),
		allowedStrategies: toSet(cfg.AllowedStrategies),
		maxQuantity:       cfg.MaxQuantity,
		maxNotional:       decimal.NewFromFloat(cfg.MaxNotional),
		maxTradesPerDay:   cfg.MaxTradesPerSymbolDay,
		log:               log.With().Str("service", "guardrails").Logger(),
	}
}

// Validate runs every guardrail against the order in fixed order, returning
// on the first failure. The verdict - allow or block - is appended to the
// audit trail; audit write failures are logged but never change the verdict.
func (v *Validator) Validate(symbol string, order domain.OrderRequest, decision *domain.DecisionContract) Verdict {
	verdict := v.evaluate(symbol, order, decision)

	v.recordVerdict(symbol, order, decision, verdict)

	if verdict.Allowed {
		v.log.Info().
			Str("symbol", symbol).
			Str("decision_id", decision.DecisionID).
			Msg("Trade allowed")
	} else {
		// Blocks are expected outcomes, logged at warn, never as errors
		v.log.Warn().
			Str("symbol", symbol).
			Str("decision_id", decision.DecisionID).
			Str("reason", verdict.Reason).
			Msg("Trade blocked")
		v.alerter.Emit(alerts.TypeTradeBlocked, "Trade blocked: "+verdict.Reason,
			alerts.LevelWarning, symbol, map[string]interface{}{
				"decision_id": decision.DecisionID,
				"reason":      verdict.Reason,
			})
	}

	return verdict
}

func (v *Validator) evaluate(symbol string, order domain.OrderRequest, decision *domain.DecisionContract) Verdict {
	// 1. Kill switch: short-circuits before everything else to keep the
	// risk window minimal. A store outage inside Status degrades to the
	// configured default, which ships disabled.
	if !v.execState.Status().EffectiveEnabled {
		return block(ReasonExecutionDisabled)
	}

	// 2. Decision freshness
	now := v.now()
	if now.After(decision.ValidTill) {
		return block(ReasonDecisionExpired)
	}

	// 3. Exchange whitelist
	exchange, ticker := v.splitSymbol(symbol)
	if !v.allowedExchanges[exchange] {
		return block(ReasonExchangeNotWhitelisted)
	}

	// 4. Symbol whitelist (canonical form)
	canonical := exchange + ":" + ticker
	if !v.allowedSymbols[canonical] {
		return block(ReasonSymbolNotWhitelisted)
	}

	// 5. Strategy whitelist
	if !v.allowedStrategies[strings.ToUpper(decision.StrategyName)] {
		return block(ReasonStrategyNotWhitelisted)
	}

	// 6. Quantity cap
	if order.Quantity > v.maxQuantity {
		return block(ReasonMaxQuantityExceeded)
	}

	// 7. Notional cap, decimal math to avoid float drift on large orders
	notional := decimal.NewFromInt(order.Quantity).Mul(decimal.NewFromFloat(decision.DecisionPrice))
	if notional.GreaterThan(v.maxNotional) {
		return block(ReasonMaxNotionalExceeded)
	}

	// 8. Frequency cap: successful executions for this symbol since local
	// midnight. A store failure here blocks the trade - fail closed.
	count, err := v.counter.CountExecutionsForSymbolToday(canonical, now)
	if err != nil {
		v.log.Error().Err(err).Str("symbol", canonical).Msg("Frequency check failed, blocking trade")
		return block(ReasonValidationError)
	}
	if count >= v.maxTradesPerDay {
		return block(ReasonMaxTradesPerSymbolDay)
	}

	return allow
}

// splitSymbol derives (exchange, ticker) from a symbol, defaulting to the
// home exchange when no EXCHANGE: prefix is present.
func (v *Validator) splitSymbol(symbol string) (string, string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if idx := strings.Index(symbol, ":"); idx >= 0 {
		return symbol[:idx], symbol[idx+1:]
	}
	return v.homeExchange, symbol
}

func (v *Validator) recordVerdict(symbol string, order domain.OrderRequest, decision *domain.DecisionContract, verdict Verdict) {
	err := v.audit.RecordVerdict(trading.Verdict{
		DecisionID:  decision.DecisionID,
		Symbol:      symbol,
		Side:        order.Side,
		Quantity:    order.Quantity,
		Allowed:     verdict.Allowed,
		Reason:      verdict.Reason,
		EvaluatedAt: v.now(),
	})
	if err != nil {
		v.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to record verdict in audit trail")
	}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[strings.ToUpper(strings.TrimSpace(item))] = true
	}
	return set
}

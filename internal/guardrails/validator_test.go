package guardrails

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/execstate"
	"github.com/wardenhq/warden/internal/modules/trading"
)

type stubExecState struct {
	enabled bool
}

func (s *stubExecState) Status() execstate.Status {
	return execstate.Status{EffectiveEnabled: s.enabled}
}

type stubCounter struct {
	count int
	err   error
}

func (s *stubCounter) CountExecutionsForSymbolToday(symbol string, now time.Time) (int, error) {
	return s.count, s.err
}

type recordingAudit struct {
	verdicts []trading.Verdict
	err      error
}

func (r *recordingAudit) RecordVerdict(v trading.Verdict) error {
	if r.err != nil {
		return r.err
	}
	r.verdicts = append(r.verdicts, v)
	return nil
}

type recordingAlerter struct {
	alerts []string
}

func (r *recordingAlerter) Emit(alertType, message, level, symbol string, metadata map[string]interface{}) {
	r.alerts = append(r.alerts, alertType)
}

type validatorFixture struct {
	validator *Validator
	execState *stubExecState
	counter   *stubCounter
	audit     *recordingAudit
	alerter   *recordingAlerter
}

func newFixture(t *testing.T) *validatorFixture {
	t.Helper()

	f := &validatorFixture{
		execState: &stubExecState{enabled: true},
		counter:   &stubCounter{},
		audit:     &recordingAudit{},
		alerter:   &recordingAlerter{},
	}
	f.validator = NewValidator(Config{
		HomeExchange:          "NSE",
		AllowedExchanges:      []string{"NSE", "BSE"},
		AllowedSymbols:        []string{"NSE:TCS", "NSE:RELIANCE"},
		AllowedStrategies:     []string{"momentum_v2"},
		MaxQuantity:           100,
		MaxNotional:           500000,
		MaxTradesPerSymbolDay: 3,
	}, f.execState, f.counter, f.audit, f.alerter, zerolog.New(nil).Level(zerolog.Disabled))
	return f
}

func testDecision(t *testing.T, price float64) *domain.DecisionContract {
	t.Helper()
	d, err := domain.NewDecisionContract("NSE:TCS", domain.SignalBuy, 80, price, "momentum_v2", "1.0.0", 5*time.Minute)
	require.NoError(t, err)
	return d
}

func testOrder(quantity int64) domain.OrderRequest {
	return domain.OrderRequest{
		Symbol:   "NSE:TCS",
		Exchange: "NSE",
		Side:     domain.SignalBuy,
		Quantity: quantity,
	}
}

func TestValidate_Allowed(t *testing.T) {
	f := newFixture(t)

	verdict := f.validator.Validate("NSE:TCS", testOrder(10), testDecision(t, 100))

	assert.True(t, verdict.Allowed)
	assert.Empty(t, verdict.Reason)
	require.Len(t, f.audit.verdicts, 1)
	assert.True(t, f.audit.verdicts[0].Allowed)
	assert.Empty(t, f.alerter.alerts)
}

func TestValidate_KillSwitchShortCircuits(t *testing.T) {
	f := newFixture(t)
	f.execState.enabled = false

	// Everything else about this order is also invalid; the kill switch
	// must win regardless.
	decision := testDecision(t, 100)
	order := testOrder(9999)

	verdict := f.validator.Validate("BSE:WIPRO", order, decision)

	assert.False(t, verdict.Allowed)
	assert.Equal(t, ReasonExecutionDisabled, verdict.Reason)
}

func TestValidate_DecisionExpired(t *testing.T) {
	f := newFixture(t)
	decision := testDecision(t, 100)

	f.validator.now = func() time.Time { return decision.ValidTill.Add(time.Second) }

	verdict := f.validator.Validate("NSE:TCS", testOrder(10), decision)
	assert.Equal(t, ReasonDecisionExpired, verdict.Reason)
}

func TestValidate_ExchangeNotWhitelisted(t *testing.T) {
	f := newFixture(t)

	verdict := f.validator.Validate("MCX:GOLD", testOrder(10), testDecision(t, 100))
	assert.Equal(t, ReasonExchangeNotWhitelisted, verdict.Reason)
}

func TestValidate_SymbolNotWhitelisted(t *testing.T) {
	f := newFixture(t)

	verdict := f.validator.Validate("NSE:WIPRO", testOrder(10), testDecision(t, 100))
	assert.Equal(t, ReasonSymbolNotWhitelisted, verdict.Reason)
}

func TestValidate_BareSymbolUsesHomeExchange(t *testing.T) {
	f := newFixture(t)

	verdict := f.validator.Validate("TCS", testOrder(10), testDecision(t, 100))
	assert.True(t, verdict.Allowed)

	verdict = f.validator.Validate("WIPRO", testOrder(10), testDecision(t, 100))
	assert.Equal(t, ReasonSymbolNotWhitelisted, verdict.Reason)
}

func TestValidate_StrategyNotWhitelisted(t *testing.T) {
	f := newFixture(t)

	decision, err := domain.NewDecisionContract("NSE:TCS", domain.SignalBuy, 80, 100, "experimental_v0", "0.1.0", 5*time.Minute)
	require.NoError(t, err)

	verdict := f.validator.Validate("NSE:TCS", testOrder(10), decision)
	assert.Equal(t, ReasonStrategyNotWhitelisted, verdict.Reason)
}

func TestValidate_MaxQuantityExceeded(t *testing.T) {
	f := newFixture(t)

	verdict := f.validator.Validate("NSE:TCS", testOrder(150), testDecision(t, 100))
	assert.Equal(t, ReasonMaxQuantityExceeded, verdict.Reason)
}

func TestValidate_MaxNotionalExceeded(t *testing.T) {
	f := newFixture(t)

	// 100 shares at 5001 = 500100 > 500000 cap
	verdict := f.validator.Validate("NSE:TCS", testOrder(100), testDecision(t, 5001))
	assert.Equal(t, ReasonMaxNotionalExceeded, verdict.Reason)

	// Exactly at the cap passes
	verdict = f.validator.Validate("NSE:TCS", testOrder(100), testDecision(t, 5000))
	assert.True(t, verdict.Allowed)
}

func TestValidate_FrequencyCapExceeded(t *testing.T) {
	f := newFixture(t)
	f.counter.count = 3

	verdict := f.validator.Validate("NSE:TCS", testOrder(10), testDecision(t, 100))
	assert.Equal(t, ReasonMaxTradesPerSymbolDay, verdict.Reason)

	f.counter.count = 2
	verdict = f.validator.Validate("NSE:TCS", testOrder(10), testDecision(t, 100))
	assert.True(t, verdict.Allowed)
}

func TestValidate_CounterFailure_FailsClosed(t *testing.T) {
	f := newFixture(t)
	f.counter.err = errors.New("ledger unavailable")

	verdict := f.validator.Validate("NSE:TCS", testOrder(10), testDecision(t, 100))
	assert.False(t, verdict.Allowed)
	assert.Equal(t, ReasonValidationError, verdict.Reason)
}

func TestValidate_BlockRaisesAlert(t *testing.T) {
	f := newFixture(t)

	f.validator.Validate("NSE:WIPRO", testOrder(10), testDecision(t, 100))

	require.Len(t, f.alerter.alerts, 1)
	assert.Equal(t, "TRADE_BLOCKED", f.alerter.alerts[0])
}

func TestValidate_AuditFailureDoesNotChangeVerdict(t *testing.T) {
	f := newFixture(t)
	f.audit.err = errors.New("ledger write failed")

	verdict := f.validator.Validate("NSE:TCS", testOrder(10), testDecision(t, 100))
	assert.True(t, verdict.Allowed)
}

func TestValidate_EveryVerdictIsAudited(t *testing.T) {
	f := newFixture(t)

	f.validator.Validate("NSE:TCS", testOrder(10), testDecision(t, 100))
	f.validator.Validate("NSE:WIPRO", testOrder(10), testDecision(t, 100))

	require.Len(t, f.audit.verdicts, 2)
	assert.True(t, f.audit.verdicts[0].Allowed)
	assert.False(t, f.audit.verdicts[1].Allowed)
	assert.Equal(t, ReasonSymbolNotWhitelisted, f.audit.verdicts[1].Reason)
}

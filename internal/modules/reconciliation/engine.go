package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/wardenhq/warden/internal/alerts"
	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/modules/portfolio"
)

// ErrRunInProgress is returned when a trigger arrives while a run is active.
// Runs never overlap; the caller skips and retries on the next tick.
var ErrRunInProgress = errors.New("reconciliation run already in progress")

// BrokerSource resolves enabled brokers and their adapters
type BrokerSource interface {
	GetEnabledBrokers() []string
	GetBroker(brokerID string) domain.BrokerAdapter
}

// PositionLedger is the local ledger the engine reconciles against
type PositionLedger interface {
	GetByBroker(brokerID string) ([]portfolio.Position, error)
	GetBySymbol(brokerID, symbol, exchange string) (*portfolio.Position, error)
	Upsert(p portfolio.Position) error
}

// RunStore persists runs, snapshots, and discrepancies
type RunStore interface {
	CreateRun(runID string, runTime time.Time, brokers []string) error
	FinalizeRun(runID, status, errorMessage string, totalPositions, discrepancies, corrections int, duration time.Duration) error
	CreateSnapshot(s PositionSnapshot) error
	CreateDiscrepancy(d PositionDiscrepancy) (int64, error)
	ResolveDiscrepancy(id int64, method string) error
}

// SymbolMapper converts broker-specific symbols back to the canonical form
type SymbolMapper interface {
	FromBrokerFormat(brokerSymbol, exchange, brokerID string) string
}

// Config holds the engine's behavioral knobs
type Config struct {
	AutoCorrect         bool
	PriceDriftTolerance float64 // Fractional, e.g. 0.005 for 0.5%
}

// Engine runs position reconciliation across all enabled brokers. Broker
// fetches fan out concurrently; one broker failing never blocks the others.
type Engine struct {
	brokers BrokerSource
	ledger  PositionLedger
	store   RunStore
	symbols SymbolMapper
	alerter alerts.Alerter
	events  *events.Manager
	cfg     Config
	running atomic.Bool
	log     zerolog.Logger
}

// NewEngine creates a reconciliation engine
func NewEngine(
	brokers BrokerSource,
	ledger PositionLedger,
	store RunStore,
	symbols SymbolMapper,
	alerter alerts.Alerter,
	eventManager *events.Manager,
	cfg Config,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		brokers: brokers,
		ledger:  ledger,
		store:   store,
		symbols: symbols,
		alerter: alerter,
		events:  eventManager,
		cfg:     cfg,
		log:     log.With().Str("service", "reconciliation").Logger(),
	}
}

// brokerResult aggregates one broker's contribution to a run
type brokerResult struct {
	brokerID      string
	positions     int
	discrepancies int
	corrections   int
	err           error
}

// Reconcile runs one pass over every enabled broker and returns the
// finalized run record.
// At most one run executes at a time; concurrent callers get
// ErrRunInProgress.
func (e *Engine) Reconcile(ctx context.Context) (*Run, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer e.running.Store(false)

	runID := uuid.NewString()
	started := time.Now()
	brokerIDs := e.brokers.GetEnabledBrokers()

	if err := e.store.CreateRun(runID, started, brokerIDs); err != nil {
		return nil, fmt.Errorf("failed to start reconciliation run: %w", err)
	}

	e.log.Info().
		Str("run_id", runID).
		Strs("brokers", brokerIDs).
		Msg("Reconciliation run started")

	results := make([]brokerResult, len(brokerIDs))
	var wg sync.WaitGroup
	for i, brokerID := range brokerIDs {
		wg.Add(1)
		go func(idx int, id string) {
			defer wg.Done()
			results[idx] = e.reconcileBroker(ctx, runID, id)
		}(i, brokerID)
	}
	wg.Wait()

	var totalPositions, totalDiscrepancies, totalCorrections, failures int
	var failureMessages []string
	for _, res := range results {
		if res.err != nil {
			failures++
			failureMessages = append(failureMessages, res.brokerID+": "+res.err.Error())
			continue
		}
		totalPositions += res.positions
		totalDiscrepancies += res.discrepancies
		totalCorrections += res.corrections
	}

	// A run only fails outright when every broker failed. Partial broker
	// outages complete the run with whatever ground truth was reachable.
	status := RunStatusCompleted
	errorMessage := strings.Join(failureMessages, "; ")
	if len(brokerIDs) > 0 && failures == len(brokerIDs) {
		status = RunStatusFailed
	}

	duration := time.Since(started)
	if err := e.store.FinalizeRun(runID, status, errorMessage, totalPositions, totalDiscrepancies, totalCorrections, duration); err != nil {
		e.log.Error().Err(err).Str("run_id", runID).Msg("Failed to finalize reconciliation run")
	}

	completedAt := started.Add(duration)
	run := &Run{
		RunID:              runID,
		RunTime:            started,
		BrokersChecked:     brokerIDs,
		TotalPositions:     totalPositions,
		DiscrepanciesFound: totalDiscrepancies,
		AutoCorrections:    totalCorrections,
		Status:             status,
		ErrorMessage:       errorMessage,
		DurationMs:         duration.Milliseconds(),
		CompletedAt:        &completedAt,
	}

	if status == RunStatusFailed {
		e.log.Error().
			Str("run_id", runID).
			Str("errors", errorMessage).
			Msg("Reconciliation run failed")
		e.alerter.Emit(alerts.TypeReconcileFailed, "Reconciliation failed: "+errorMessage,
			alerts.LevelCritical, "", map[string]interface{}{"run_id": runID})
		e.events.Emit(events.ReconciliationFailed, "reconciliation", map[string]interface{}{
			"run_id": runID,
			"errors": errorMessage,
		})
		return run, nil
	}

	e.log.Info().
		Str("run_id", runID).
		Int("positions", totalPositions).
		Int("discrepancies", totalDiscrepancies).
		Int("corrections", totalCorrections).
		Dur("duration", duration).
		Msg("Reconciliation run completed")
	e.events.Emit(events.ReconciliationCompleted, "reconciliation", map[string]interface{}{
		"run_id":        runID,
		"positions":     totalPositions,
		"discrepancies": totalDiscrepancies,
		"corrections":   totalCorrections,
	})
	return run, nil
}

// reconcileBroker fetches one broker's positions and compares them against
// the ledger. Persistence errors for individual rows are logged and counted
// but do not abort the broker's pass.
func (e *Engine) reconcileBroker(ctx context.Context, runID, brokerID string) brokerResult {
	result := brokerResult{brokerID: brokerID}

	adapter := e.brokers.GetBroker(brokerID)
	if adapter == nil {
		result.err = fmt.Errorf("no adapter available for broker %s", brokerID)
		e.alertBrokerFailure(runID, brokerID, result.err)
		return result
	}

	brokerPositions, err := adapter.GetPositions(ctx)
	if err != nil {
		result.err = fmt.Errorf("failed to fetch positions: %w", err)
		e.alertBrokerFailure(runID, brokerID, result.err)
		return result
	}

	seen := make(map[string]bool, len(brokerPositions))
	for _, bp := range brokerPositions {
		symbol := e.symbols.FromBrokerFormat(bp.Symbol, bp.Exchange, brokerID)
		seen[strings.ToUpper(symbol)+"|"+strings.ToUpper(bp.Exchange)] = true
		result.positions++

		if err := e.store.CreateSnapshot(PositionSnapshot{
			RunID:        runID,
			BrokerID:     brokerID,
			Symbol:       symbol,
			Exchange:     bp.Exchange,
			Quantity:     bp.Quantity,
			AveragePrice: bp.AveragePrice,
			CurrentPrice: bp.CurrentPrice,
			PnL:          bp.PnL,
		}); err != nil {
			e.log.Error().Err(err).Str("broker", brokerID).Str("symbol", symbol).Msg("Failed to record snapshot")
		}

		local, err := e.ledger.GetBySymbol(brokerID, symbol, bp.Exchange)
		if err != nil {
			e.log.Error().Err(err).Str("broker", brokerID).Str("symbol", symbol).Msg("Failed to read ledger position")
			continue
		}

		var localQty int64
		var localAvg float64
		if local != nil {
			localQty = local.Quantity
			localAvg = local.AveragePrice
		}

		if localQty == bp.Quantity {
			e.checkPriceDrift(brokerID, symbol, localAvg, bp.AveragePrice, local != nil)
			continue
		}

		corrected := e.recordDiscrepancy(runID, brokerID, symbol, bp.Exchange,
			localQty, bp.Quantity, localAvg, bp.AveragePrice)
		result.discrepancies++
		if corrected {
			result.corrections++
		}
	}

	// Ledger rows the broker no longer reports are discrepancies too: the
	// position was closed or transferred outside the platform.
	localPositions, err := e.ledger.GetByBroker(brokerID)
	if err != nil {
		e.log.Error().Err(err).Str("broker", brokerID).Msg("Failed to list ledger positions")
		return result
	}
	for _, lp := range localPositions {
		key := strings.ToUpper(lp.Symbol) + "|" + strings.ToUpper(lp.Exchange)
		if seen[key] || lp.Quantity == 0 {
			continue
		}
		corrected := e.recordDiscrepancy(runID, brokerID, lp.Symbol, lp.Exchange,
			lp.Quantity, 0, lp.AveragePrice, 0)
		result.discrepancies++
		if corrected {
			result.corrections++
		}
	}

	return result
}

// recordDiscrepancy persists the mismatch, emits the alert and event, and
// when auto-correction is enabled overwrites the ledger with the broker's
// record. Returns whether a correction was applied.
func (e *Engine) recordDiscrepancy(runID, brokerID, symbol, exchange string, localQty, brokerQty int64, localAvg, brokerAvg float64) bool {
	id, err := e.store.CreateDiscrepancy(PositionDiscrepancy{
		RunID:          runID,
		Symbol:         symbol,
		Exchange:       exchange,
		BrokerID:       brokerID,
		LocalQuantity:  localQty,
		BrokerQuantity: brokerQty,
		Difference:     brokerQty - localQty,
		LocalAvgPrice:  localAvg,
		BrokerAvgPrice: brokerAvg,
	})
	if err != nil {
		e.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to record discrepancy")
		return false
	}

	e.log.Warn().
		Str("broker", brokerID).
		Str("symbol", symbol).
		Int64("local_quantity", localQty).
		Int64("broker_quantity", brokerQty).
		Msg("Position discrepancy detected")
	e.alerter.Emit(alerts.TypeDiscrepancy,
		fmt.Sprintf("Position mismatch at %s: ledger %d vs broker %d", brokerID, localQty, brokerQty),
		alerts.LevelWarning, symbol, map[string]interface{}{
			"run_id":          runID,
			"broker_id":       brokerID,
			"local_quantity":  localQty,
			"broker_quantity": brokerQty,
		})
	e.events.Emit(events.DiscrepancyFound, "reconciliation", map[string]interface{}{
		"run_id":          runID,
		"broker_id":       brokerID,
		"symbol":          symbol,
		"local_quantity":  localQty,
		"broker_quantity": brokerQty,
	})

	if !e.cfg.AutoCorrect {
		return false
	}

	if err := e.ledger.Upsert(portfolio.Position{
		BrokerID:     brokerID,
		Symbol:       symbol,
		Exchange:     exchange,
		Quantity:     brokerQty,
		AveragePrice: brokerAvg,
	}); err != nil {
		e.log.Error().Err(err).Str("symbol", symbol).Msg("Auto-correction failed")
		return false
	}
	if err := e.store.ResolveDiscrepancy(id, ResolutionAuto); err != nil {
		e.log.Error().Err(err).Int64("discrepancy_id", id).Msg("Failed to mark discrepancy auto-resolved")
	}

	e.log.Info().
		Str("broker", brokerID).
		Str("symbol", symbol).
		Int64("quantity", brokerQty).
		Msg("Ledger auto-corrected from broker record")
	return true
}

// checkPriceDrift compares average prices when quantities already agree.
// Drift raises an alert but never a discrepancy row: cost-basis differences
// come from corporate actions and rounding, not from missed trades.
func (e *Engine) checkPriceDrift(brokerID, symbol string, localAvg, brokerAvg float64, hasLocal bool) {
	if !hasLocal || localAvg <= 0 || brokerAvg <= 0 || e.cfg.PriceDriftTolerance <= 0 {
		return
	}

	local := decimal.NewFromFloat(localAvg)
	drift := decimal.NewFromFloat(brokerAvg).Sub(local).Abs().Div(local)
	if drift.LessThanOrEqual(decimal.NewFromFloat(e.cfg.PriceDriftTolerance)) {
		return
	}

	e.log.Warn().
		Str("broker", brokerID).
		Str("symbol", symbol).
		Float64("local_avg", localAvg).
		Float64("broker_avg", brokerAvg).
		Str("drift", drift.StringFixed(4)).
		Msg("Average price drift beyond tolerance")
	e.alerter.Emit(alerts.TypePriceDrift,
		fmt.Sprintf("Average price drift at %s: ledger %.2f vs broker %.2f", brokerID, localAvg, brokerAvg),
		alerts.LevelWarning, symbol, map[string]interface{}{
			"broker_id":  brokerID,
			"local_avg":  localAvg,
			"broker_avg": brokerAvg,
		})
}

func (e *Engine) alertBrokerFailure(runID, brokerID string, err error) {
	e.log.Error().Err(err).Str("broker", brokerID).Str("run_id", runID).Msg("Broker reconciliation failed")
	e.alerter.Emit(alerts.TypeBrokerFailure, "Broker unreachable during reconciliation: "+err.Error(),
		alerts.LevelWarning, "", map[string]interface{}{
			"run_id":    runID,
			"broker_id": brokerID,
		})
}

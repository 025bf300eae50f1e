package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/internal/alerts"
	"github.com/wardenhq/warden/internal/modules/reconciliation"
)

// SessionGate reports whether an exchange's trading session is open
type SessionGate interface {
	IsOpen(exchange string, t time.Time) bool
}

// Reconciler runs one reconciliation pass
type Reconciler interface {
	Reconcile(ctx context.Context) (*reconciliation.Run, error)
}

// ReconciliationJob triggers a reconciliation run on each scheduler tick.
// Ticks outside the trading session, while paused, or while a run is still
// in flight are skipped, never queued.
type ReconciliationJob struct {
	engine   Reconciler
	sessions SessionGate
	alerter  alerts.Alerter
	exchange string
	paused   atomic.Bool
	now      func() time.Time
	log      zerolog.Logger
}

// NewReconciliationJob creates the scheduled reconciliation job gated on
// the given exchange's trading session.
func NewReconciliationJob(engine Reconciler, sessions SessionGate, alerter alerts.Alerter, exchange string, log zerolog.Logger) *ReconciliationJob {
	return &ReconciliationJob{
		engine:   engine,
		sessions: sessions,
		alerter:  alerter,
		exchange: exchange,
		now:      time.Now,
		log:      log.With().Str("job", "reconciliation").Logger(),
	}
}

// Name returns the job name
func (j *ReconciliationJob) Name() string {
	return "reconciliation"
}

// Pause suspends scheduled runs. Manual triggers stay available.
func (j *ReconciliationJob) Pause() {
	j.paused.Store(true)
	j.log.Info().Msg("Scheduled reconciliation paused")
}

// Resume re-enables scheduled runs
func (j *ReconciliationJob) Resume() {
	j.paused.Store(false)
	j.log.Info().Msg("Scheduled reconciliation resumed")
}

// IsPaused reports whether scheduled runs are suspended
func (j *ReconciliationJob) IsPaused() bool {
	return j.paused.Load()
}

// Run executes one scheduled tick
func (j *ReconciliationJob) Run() error {
	if j.paused.Load() {
		j.log.Debug().Msg("Skipping tick, scheduled reconciliation is paused")
		return nil
	}

	now := j.now()
	if !j.sessions.IsOpen(j.exchange, now) {
		j.log.Debug().
			Str("exchange", j.exchange).
			Time("at", now).
			Msg("Skipping tick, trading session closed")
		return nil
	}

	run, err := j.engine.Reconcile(context.Background())
	if errors.Is(err, reconciliation.ErrRunInProgress) {
		// Previous run still in flight, skip rather than queue
		j.log.Warn().Msg("Skipping tick, previous reconciliation run still in progress")
		return nil
	}
	if err != nil {
		return err
	}

	j.log.Info().
		Str("run_id", run.RunID).
		Str("status", run.Status).
		Int("discrepancies", run.DiscrepanciesFound).
		Msg("Scheduled reconciliation tick finished")

	if run.DiscrepanciesFound > 0 {
		j.alerter.Emit(alerts.TypeDiscrepancy,
			fmt.Sprintf("Scheduled reconciliation found %d discrepancies", run.DiscrepanciesFound),
			alerts.LevelWarning, "", map[string]interface{}{
				"run_id":        run.RunID,
				"discrepancies": run.DiscrepanciesFound,
				"corrections":   run.AutoCorrections,
			})
	}
	return nil
}

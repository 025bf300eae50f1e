package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/alerts"
	"github.com/wardenhq/warden/internal/modules/market_hours"
	"github.com/wardenhq/warden/internal/modules/reconciliation"
)

type stubReconciler struct {
	calls int
	run   *reconciliation.Run
	err   error
}

func (s *stubReconciler) Reconcile(ctx context.Context) (*reconciliation.Run, error) {
	s.calls++
	return s.run, s.err
}

type stubGate struct {
	open bool
}

func (g stubGate) IsOpen(exchange string, t time.Time) bool {
	return g.open
}

type recordingAlerter struct {
	alerts []string
}

func (a *recordingAlerter) Emit(alertType, message, level, symbol string, metadata map[string]interface{}) {
	a.alerts = append(a.alerts, alertType)
}

func newTestJob(engine Reconciler, gate SessionGate, alerter alerts.Alerter) *ReconciliationJob {
	return NewReconciliationJob(engine, gate, alerter,
		"NSE", zerolog.New(nil).Level(zerolog.Disabled))
}

func completedRun(discrepancies, corrections int) *reconciliation.Run {
	return &reconciliation.Run{
		RunID:              "run-1",
		Status:             reconciliation.RunStatusCompleted,
		DiscrepanciesFound: discrepancies,
		AutoCorrections:    corrections,
	}
}

func TestRun_SessionOpen(t *testing.T) {
	engine := &stubReconciler{run: completedRun(0, 0)}
	alerter := &recordingAlerter{}
	job := newTestJob(engine, stubGate{open: true}, alerter)

	require.NoError(t, job.Run())
	assert.Equal(t, 1, engine.calls)
	assert.Empty(t, alerter.alerts)
}

func TestRun_SessionClosedSkips(t *testing.T) {
	engine := &stubReconciler{run: completedRun(0, 0)}
	job := newTestJob(engine, stubGate{open: false}, &recordingAlerter{})

	require.NoError(t, job.Run())
	assert.Equal(t, 0, engine.calls)
}

func TestRun_BeforeMarketOpenSkips(t *testing.T) {
	// A tick at 08:00 IST on a trading day must not trigger a run.
	engine := &stubReconciler{run: completedRun(0, 0)}
	job := newTestJob(engine, market_hours.NewService(), &recordingAlerter{})

	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	job.now = func() time.Time { return time.Date(2026, 9, 2, 8, 0, 0, 0, loc) }

	require.NoError(t, job.Run())
	assert.Equal(t, 0, engine.calls)

	// The same tick mid-session does run.
	job.now = func() time.Time { return time.Date(2026, 9, 2, 10, 0, 0, 0, loc) }
	require.NoError(t, job.Run())
	assert.Equal(t, 1, engine.calls)
}

func TestRun_PausedSkips(t *testing.T) {
	engine := &stubReconciler{run: completedRun(0, 0)}
	job := newTestJob(engine, stubGate{open: true}, &recordingAlerter{})

	job.Pause()
	require.True(t, job.IsPaused())
	require.NoError(t, job.Run())
	assert.Equal(t, 0, engine.calls)

	job.Resume()
	require.False(t, job.IsPaused())
	require.NoError(t, job.Run())
	assert.Equal(t, 1, engine.calls)
}

func TestRun_InProgressIsNotAnError(t *testing.T) {
	engine := &stubReconciler{err: reconciliation.ErrRunInProgress}
	job := newTestJob(engine, stubGate{open: true}, &recordingAlerter{})

	assert.NoError(t, job.Run())
}

func TestRun_EngineErrorPropagates(t *testing.T) {
	engine := &stubReconciler{err: errors.New("portfolio db locked")}
	job := newTestJob(engine, stubGate{open: true}, &recordingAlerter{})

	assert.Error(t, job.Run())
}

func TestRun_DiscrepanciesRaiseAlert(t *testing.T) {
	engine := &stubReconciler{run: completedRun(3, 1)}
	alerter := &recordingAlerter{}
	job := newTestJob(engine, stubGate{open: true}, alerter)

	require.NoError(t, job.Run())
	require.Len(t, alerter.alerts, 1)
	assert.Equal(t, alerts.TypeDiscrepancy, alerter.alerts[0])
}

func TestName(t *testing.T) {
	job := newTestJob(&stubReconciler{}, stubGate{open: true}, &recordingAlerter{})
	assert.Equal(t, "reconciliation", job.Name())
}

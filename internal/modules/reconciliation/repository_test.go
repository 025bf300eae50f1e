package reconciliation

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "portfolio.db"),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	return db.Conn()
}

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	return NewRepository(setupTestDB(t), zerolog.New(nil).Level(zerolog.Disabled))
}

func TestRunLifecycle(t *testing.T) {
	repo := newTestRepository(t)

	runTime := time.Now()
	require.NoError(t, repo.CreateRun("run-1", runTime, []string{"zerodha", "angelone"}))

	run, err := repo.GetRun("run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Equal(t, []string{"zerodha", "angelone"}, run.BrokersChecked)
	assert.Nil(t, run.CompletedAt)

	require.NoError(t, repo.FinalizeRun("run-1", RunStatusCompleted, "", 12, 2, 1, 340*time.Millisecond))

	run, err = repo.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.Equal(t, 12, run.TotalPositions)
	assert.Equal(t, 2, run.DiscrepanciesFound)
	assert.Equal(t, 1, run.AutoCorrections)
	assert.Equal(t, int64(340), run.DurationMs)
	assert.NotNil(t, run.CompletedAt)
	assert.Empty(t, run.ErrorMessage)
}

func TestFinalizeRun_Failed(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.CreateRun("run-1", time.Now(), []string{"zerodha"}))
	require.NoError(t, repo.FinalizeRun("run-1", RunStatusFailed, "zerodha: timeout", 0, 0, 0, time.Second))

	run, err := repo.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, "zerodha: timeout", run.ErrorMessage)
}

func TestGetRun_Unknown(t *testing.T) {
	repo := newTestRepository(t)

	run, err := repo.GetRun("nope")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestListRuns_NewestFirst(t *testing.T) {
	repo := newTestRepository(t)

	base := time.Now().Add(-time.Hour)
	require.NoError(t, repo.CreateRun("run-old", base, []string{"zerodha"}))
	require.NoError(t, repo.CreateRun("run-new", base.Add(30*time.Minute), []string{"zerodha"}))

	runs, err := repo.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].RunID)
	assert.Equal(t, "run-old", runs[1].RunID)

	runs, err = repo.ListRuns(1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestDiscrepancyLifecycle(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.CreateRun("run-1", time.Now(), []string{"zerodha"}))

	id, err := repo.CreateDiscrepancy(PositionDiscrepancy{
		RunID:          "run-1",
		Symbol:         "RELIANCE",
		Exchange:       "NSE",
		BrokerID:       "zerodha",
		LocalQuantity:  50,
		BrokerQuantity: 45,
		Difference:     -5,
		LocalAvgPrice:  2400,
		BrokerAvgPrice: 2410,
	})
	require.NoError(t, err)

	open, err := repo.ListOpenDiscrepancies()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, int64(-5), open[0].Difference)
	assert.False(t, open[0].Resolved)
	assert.Nil(t, open[0].ResolvedAt)

	require.NoError(t, repo.ResolveDiscrepancy(id, ResolutionManual))

	open, err = repo.ListOpenDiscrepancies()
	require.NoError(t, err)
	assert.Empty(t, open)

	all, err := repo.ListDiscrepancies(nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Resolved)
	assert.Equal(t, ResolutionManual, all[0].ResolutionMethod)
	assert.NotNil(t, all[0].ResolvedAt)
}

func TestResolveDiscrepancy_InvalidMethod(t *testing.T) {
	repo := newTestRepository(t)

	err := repo.ResolveDiscrepancy(1, "WISHFUL")
	assert.Error(t, err)
}

func TestResolveDiscrepancy_AlreadyResolved(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.CreateRun("run-1", time.Now(), []string{"zerodha"}))

	id, err := repo.CreateDiscrepancy(PositionDiscrepancy{
		RunID: "run-1", Symbol: "TCS", Exchange: "NSE", BrokerID: "zerodha",
		LocalQuantity: 10, BrokerQuantity: 8, Difference: -2,
	})
	require.NoError(t, err)

	require.NoError(t, repo.ResolveDiscrepancy(id, ResolutionIgnored))
	assert.Error(t, repo.ResolveDiscrepancy(id, ResolutionManual))
}

func TestResolveDiscrepancy_NotFound(t *testing.T) {
	repo := newTestRepository(t)

	assert.Error(t, repo.ResolveDiscrepancy(999, ResolutionManual))
}

func TestListDiscrepancies_ResolvedFilter(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.CreateRun("run-1", time.Now(), []string{"zerodha"}))

	first, err := repo.CreateDiscrepancy(PositionDiscrepancy{
		RunID: "run-1", Symbol: "TCS", Exchange: "NSE", BrokerID: "zerodha",
		LocalQuantity: 10, BrokerQuantity: 8, Difference: -2,
	})
	require.NoError(t, err)
	_, err = repo.CreateDiscrepancy(PositionDiscrepancy{
		RunID: "run-1", Symbol: "INFY", Exchange: "NSE", BrokerID: "zerodha",
		LocalQuantity: 5, BrokerQuantity: 7, Difference: 2,
	})
	require.NoError(t, err)

	require.NoError(t, repo.ResolveDiscrepancy(first, ResolutionManual))

	resolved := true
	list, err := repo.ListDiscrepancies(&resolved)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "TCS", list[0].Symbol)

	resolved = false
	list, err = repo.ListDiscrepancies(&resolved)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "INFY", list[0].Symbol)
}

func TestCreateSnapshot(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.CreateRun("run-1", time.Now(), []string{"fyers"}))

	require.NoError(t, repo.CreateSnapshot(PositionSnapshot{
		RunID:        "run-1",
		BrokerID:     "FYERS",
		Symbol:       "reliance",
		Exchange:     "nse",
		Quantity:     15,
		AveragePrice: 2400,
		CurrentPrice: 2450,
		PnL:          750,
	}))

	discrepancies, err := repo.ListDiscrepanciesForRun("run-1")
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}

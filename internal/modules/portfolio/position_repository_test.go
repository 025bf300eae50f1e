package portfolio

import (
	"database/sql"
	"path/filepath"
	"testing"

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

func newTestRepository(t *testing.T) *PositionRepository {
	t.Helper()
	return NewPositionRepository(setupTestDB(t), zerolog.New(nil).Level(zerolog.Disabled))
}

func TestUpsert_CreateAndReplace(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Upsert(Position{
		BrokerID:     "zerodha",
		Symbol:       "RELIANCE",
		Exchange:     "NSE",
		Quantity:     50,
		AveragePrice: 2400,
	}))

	p, err := repo.GetBySymbol("zerodha", "RELIANCE", "NSE")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(50), p.Quantity)
	assert.Equal(t, 2400.0, p.AveragePrice)

	// Same key overwrites instead of inserting a second row.
	require.NoError(t, repo.Upsert(Position{
		BrokerID:     "ZERODHA",
		Symbol:       "reliance",
		Exchange:     "nse",
		Quantity:     45,
		AveragePrice: 2410,
	}))

	all, err := repo.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(45), all[0].Quantity)
	assert.Equal(t, 2410.0, all[0].AveragePrice)
}

func TestGetBySymbol_NormalizesKey(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Upsert(Position{
		BrokerID: "zerodha", Symbol: "TCS", Exchange: "NSE", Quantity: 10, AveragePrice: 3500,
	}))

	p, err := repo.GetBySymbol("ZERODHA", " tcs ", "nse")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "TCS", p.Symbol)
	assert.Equal(t, "zerodha", p.BrokerID)
}

func TestGetBySymbol_Missing(t *testing.T) {
	repo := newTestRepository(t)

	p, err := repo.GetBySymbol("zerodha", "WIPRO", "NSE")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestGetByBroker(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Upsert(Position{BrokerID: "zerodha", Symbol: "TCS", Exchange: "NSE", Quantity: 10}))
	require.NoError(t, repo.Upsert(Position{BrokerID: "zerodha", Symbol: "INFY", Exchange: "NSE", Quantity: 5}))
	require.NoError(t, repo.Upsert(Position{BrokerID: "fyers", Symbol: "TCS", Exchange: "NSE", Quantity: 7}))

	positions, err := repo.GetByBroker("zerodha")
	require.NoError(t, err)
	require.Len(t, positions, 2)

	// Ordered by symbol.
	assert.Equal(t, "INFY", positions[0].Symbol)
	assert.Equal(t, "TCS", positions[1].Symbol)

	positions, err = repo.GetByBroker("angelone")
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestSameSymbolAcrossExchanges(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Upsert(Position{BrokerID: "zerodha", Symbol: "RELIANCE", Exchange: "NSE", Quantity: 50}))
	require.NoError(t, repo.Upsert(Position{BrokerID: "zerodha", Symbol: "RELIANCE", Exchange: "BSE", Quantity: 20}))

	nse, err := repo.GetBySymbol("zerodha", "RELIANCE", "NSE")
	require.NoError(t, err)
	require.NotNil(t, nse)
	assert.Equal(t, int64(50), nse.Quantity)

	bse, err := repo.GetBySymbol("zerodha", "RELIANCE", "BSE")
	require.NoError(t, err)
	require.NotNil(t, bse)
	assert.Equal(t, int64(20), bse.Quantity)
}

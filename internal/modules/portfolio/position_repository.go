// Package portfolio holds the local position ledger - the platform's belief
// about open positions, reconciled against broker ground truth.
package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Position is one row of the local ledger, keyed by (broker, symbol, exchange)
type Position struct {
	ID           int64     `json:"id"`
	BrokerID     string    `json:"broker_id"`
	Symbol       string    `json:"symbol"` // Canonical ticker, no exchange prefix
	Exchange     string    `json:"exchange"`
	Quantity     int64     `json:"quantity"`
	AveragePrice float64   `json:"average_price"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const positionsColumns = `id, broker_id, symbol, exchange, quantity, average_price, updated_at`

// PositionRepository handles position persistence in portfolio.db
type PositionRepository struct {
	portfolioDB *sql.DB
	log         zerolog.Logger
}

// NewPositionRepository creates a position repository
func NewPositionRepository(portfolioDB *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		portfolioDB: portfolioDB,
		log:         log.With().Str("repo", "positions").Logger(),
	}
}

// GetByBroker returns all ledger positions for a broker
func (r *PositionRepository) GetByBroker(brokerID string) ([]Position, error) {
	rows, err := r.portfolioDB.Query(
		"SELECT "+positionsColumns+" FROM positions WHERE broker_id = ? ORDER BY symbol",
		strings.ToLower(brokerID))
	if err != nil {
		return nil, fmt.Errorf("failed to get positions for broker %s: %w", brokerID, err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

// GetAll returns every ledger position
func (r *PositionRepository) GetAll() ([]Position, error) {
	rows, err := r.portfolioDB.Query("SELECT " + positionsColumns + " FROM positions ORDER BY broker_id, symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

// GetBySymbol returns one position, or nil when the ledger has none
func (r *PositionRepository) GetBySymbol(brokerID, symbol, exchange string) (*Position, error) {
	row := r.portfolioDB.QueryRow(
		"SELECT "+positionsColumns+" FROM positions WHERE broker_id = ? AND symbol = ? AND exchange = ?",
		strings.ToLower(brokerID),
		strings.ToUpper(strings.TrimSpace(symbol)),
		strings.ToUpper(strings.TrimSpace(exchange)))

	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position %s/%s: %w", brokerID, symbol, err)
	}
	return &p, nil
}

// Upsert overwrites (or creates) the ledger entry for a position. This is
// the auto-correction path: the broker record becomes the ledger record.
func (r *PositionRepository) Upsert(p Position) error {
	_, err := r.portfolioDB.Exec(
		`INSERT INTO positions (broker_id, symbol, exchange, quantity, average_price, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(broker_id, symbol, exchange)
		 DO UPDATE SET quantity = excluded.quantity,
		               average_price = excluded.average_price,
		               updated_at = excluded.updated_at`,
		strings.ToLower(p.BrokerID),
		strings.ToUpper(strings.TrimSpace(p.Symbol)),
		strings.ToUpper(strings.TrimSpace(p.Exchange)),
		p.Quantity,
		p.AveragePrice,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert position %s/%s: %w", p.BrokerID, p.Symbol, err)
	}
	return nil
}

func scanPosition(row *sql.Row) (Position, error) {
	var p Position
	var updatedAt int64
	err := row.Scan(&p.ID, &p.BrokerID, &p.Symbol, &p.Exchange, &p.Quantity, &p.AveragePrice, &updatedAt)
	if err != nil {
		return Position{}, err
	}
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return p, nil
}

func scanPositions(rows *sql.Rows) ([]Position, error) {
	positions := make([]Position, 0)
	for rows.Next() {
		var p Position
		var updatedAt int64
		if err := rows.Scan(&p.ID, &p.BrokerID, &p.Symbol, &p.Exchange, &p.Quantity, &p.AveragePrice, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		p.UpdatedAt = time.Unix(updatedAt, 0)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

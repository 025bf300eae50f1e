package trading

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/internal/domain"
)

// executionsColumns avoids SELECT * so schema changes fail loudly
const executionsColumns = `id, order_id, decision_id, symbol, exchange, side, quantity, price, broker_id, strategy_name, status, executed_at`

// Repository handles execution and verdict persistence in ledger.db
type Repository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewRepository creates a trading repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "trading").Logger(),
	}
}

// CreateExecution inserts an execution record. Duplicate order ids are
// silently skipped - the trade is already on the ledger.
func (r *Repository) CreateExecution(e Execution) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	if e.OrderID != "" {
		exists, err := r.executionExists(e.OrderID)
		if err != nil {
			return fmt.Errorf("failed to check for existing execution: %w", err)
		}
		if exists {
			r.log.Debug().
				Str("order_id", e.OrderID).
				Msg("Execution with order_id already exists, skipping duplicate")
			return nil
		}
	}

	query := `
		INSERT INTO executions
		(order_id, decision_id, symbol, exchange, side, quantity, price,
		 broker_id, strategy_name, status, executed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.ledgerDB.Exec(query,
		nullString(e.OrderID),
		e.DecisionID,
		strings.ToUpper(strings.TrimSpace(e.Symbol)),
		strings.ToUpper(strings.TrimSpace(e.Exchange)),
		string(e.Side),
		e.Quantity,
		e.Price,
		e.BrokerID,
		e.StrategyName,
		e.Status,
		e.ExecutedAt.Unix(),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	r.log.Info().
		Str("symbol", e.Symbol).
		Str("side", string(e.Side)).
		Int64("quantity", e.Quantity).
		Str("status", e.Status).
		Msg("Execution recorded")

	return nil
}

// executionExists checks for an existing execution with the given order id
func (r *Repository) executionExists(orderID string) (bool, error) {
	var one int
	err := r.ledgerDB.QueryRow("SELECT 1 FROM executions WHERE order_id = ? LIMIT 1", orderID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CountExecutionsForSymbolToday returns the number of successful executions
// for the symbol since local midnight. This is the backing query of the
// frequency guardrail.
func (r *Repository) CountExecutionsForSymbolToday(symbol string, now time.Time) (int, error) {
	year, month, day := now.Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, now.Location())

	var count int
	err := r.ledgerDB.QueryRow(
		"SELECT COUNT(*) FROM executions WHERE symbol = ? AND status = ? AND executed_at >= ?",
		strings.ToUpper(strings.TrimSpace(symbol)),
		StatusExecuted,
		midnight.Unix(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count executions for %s: %w", symbol, err)
	}
	return count, nil
}

// LatestExecution returns the most recent execution, or nil when the ledger
// is empty. Used by the control surface status endpoint.
func (r *Repository) LatestExecution() (*Execution, error) {
	query := "SELECT " + executionsColumns + " FROM executions ORDER BY executed_at DESC, id DESC LIMIT 1"
	row := r.ledgerDB.QueryRow(query)

	var e Execution
	var orderID sql.NullString
	var side string
	var executedAt int64
	err := row.Scan(&e.ID, &orderID, &e.DecisionID, &e.Symbol, &e.Exchange, &side,
		&e.Quantity, &e.Price, &e.BrokerID, &e.StrategyName, &e.Status, &executedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest execution: %w", err)
	}

	e.OrderID = orderID.String
	e.Side = domain.Signal(side)
	e.ExecutedAt = time.Unix(executedAt, 0)
	return &e, nil
}

// RecordVerdict appends a guardrail verdict to the audit trail
func (r *Repository) RecordVerdict(v Verdict) error {
	_, err := r.ledgerDB.Exec(
		`INSERT INTO guardrail_verdicts
		 (decision_id, symbol, side, quantity, allowed, reason, evaluated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.DecisionID,
		strings.ToUpper(strings.TrimSpace(v.Symbol)),
		string(v.Side),
		v.Quantity,
		boolToInt(v.Allowed),
		nullString(v.Reason),
		v.EvaluatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record verdict: %w", err)
	}
	return nil
}

// ListVerdicts returns the most recent verdicts, newest first
func (r *Repository) ListVerdicts(limit int) ([]Verdict, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.ledgerDB.Query(
		`SELECT id, decision_id, symbol, side, quantity, allowed, reason, evaluated_at
		 FROM guardrail_verdicts ORDER BY evaluated_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list verdicts: %w", err)
	}
	defer rows.Close()

	verdicts := make([]Verdict, 0, limit)
	for rows.Next() {
		var v Verdict
		var side string
		var allowed int
		var reason sql.NullString
		var evaluatedAt int64
		if err := rows.Scan(&v.ID, &v.DecisionID, &v.Symbol, &side, &v.Quantity, &allowed, &reason, &evaluatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan verdict: %w", err)
		}
		v.Side = domain.Signal(side)
		v.Allowed = allowed != 0
		v.Reason = reason.String
		v.EvaluatedAt = time.Unix(evaluatedAt, 0)
		verdicts = append(verdicts, v)
	}
	return verdicts, rows.Err()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

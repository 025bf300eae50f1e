package reconciliation

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	runsColumns = `id, run_id, run_time, brokers_checked, total_positions,
		discrepancies_found, auto_corrections, status, error_message, duration_ms, completed_at`
	discrepanciesColumns = `id, run_id, symbol, exchange, broker_id, local_quantity,
		broker_quantity, difference, local_avg_price, broker_avg_price,
		detected_at, resolved, resolved_at, resolution_method`
)

// Repository persists runs, snapshots, and discrepancies in portfolio.db
type Repository struct {
	portfolioDB *sql.DB
	log         zerolog.Logger
}

// NewRepository creates a reconciliation repository
func NewRepository(portfolioDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		portfolioDB: portfolioDB,
		log:         log.With().Str("repo", "reconciliation").Logger(),
	}
}

// CreateRun inserts a run record in RUNNING state
func (r *Repository) CreateRun(runID string, runTime time.Time, brokers []string) error {
	_, err := r.portfolioDB.Exec(
		`INSERT INTO reconciliation_runs (run_id, run_time, brokers_checked, status)
		 VALUES (?, ?, ?, ?)`,
		runID, runTime.Unix(), strings.Join(brokers, ","), RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to create reconciliation run %s: %w", runID, err)
	}
	return nil
}

// FinalizeRun moves a run to its terminal state with aggregate counters
func (r *Repository) FinalizeRun(runID, status, errorMessage string, totalPositions, discrepancies, corrections int, duration time.Duration) error {
	_, err := r.portfolioDB.Exec(
		`UPDATE reconciliation_runs
		 SET status = ?, error_message = ?, total_positions = ?,
		     discrepancies_found = ?, auto_corrections = ?,
		     duration_ms = ?, completed_at = ?
		 WHERE run_id = ?`,
		status, nullString(errorMessage), totalPositions, discrepancies,
		corrections, duration.Milliseconds(), time.Now().Unix(), runID)
	if err != nil {
		return fmt.Errorf("failed to finalize reconciliation run %s: %w", runID, err)
	}
	return nil
}

// CreateSnapshot appends a broker-reported position to the run's history
func (r *Repository) CreateSnapshot(s PositionSnapshot) error {
	_, err := r.portfolioDB.Exec(
		`INSERT INTO position_snapshots (run_id, broker_id, symbol, exchange,
		 quantity, average_price, current_price, pnl, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, strings.ToLower(s.BrokerID), strings.ToUpper(s.Symbol),
		strings.ToUpper(s.Exchange), s.Quantity, s.AveragePrice,
		s.CurrentPrice, s.PnL, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to create snapshot for %s/%s: %w", s.BrokerID, s.Symbol, err)
	}
	return nil
}

// CreateDiscrepancy records an unresolved quantity mismatch
func (r *Repository) CreateDiscrepancy(d PositionDiscrepancy) (int64, error) {
	result, err := r.portfolioDB.Exec(
		`INSERT INTO position_discrepancies (run_id, symbol, exchange, broker_id,
		 local_quantity, broker_quantity, difference, local_avg_price,
		 broker_avg_price, detected_at, resolved)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		d.RunID, strings.ToUpper(d.Symbol), strings.ToUpper(d.Exchange),
		strings.ToLower(d.BrokerID), d.LocalQuantity, d.BrokerQuantity,
		d.Difference, d.LocalAvgPrice, d.BrokerAvgPrice, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to create discrepancy for %s: %w", d.Symbol, err)
	}
	return result.LastInsertId()
}

// ResolveDiscrepancy marks a discrepancy resolved with the given method
func (r *Repository) ResolveDiscrepancy(id int64, method string) error {
	switch method {
	case ResolutionAuto, ResolutionManual, ResolutionIgnored:
	default:
		return fmt.Errorf("invalid resolution method: %s", method)
	}

	result, err := r.portfolioDB.Exec(
		`UPDATE position_discrepancies
		 SET resolved = 1, resolved_at = ?, resolution_method = ?
		 WHERE id = ? AND resolved = 0`,
		time.Now().Unix(), method, id)
	if err != nil {
		return fmt.Errorf("failed to resolve discrepancy %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to resolve discrepancy %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("discrepancy %d not found or already resolved", id)
	}
	return nil
}

// ListOpenDiscrepancies returns all unresolved discrepancies, newest first
func (r *Repository) ListOpenDiscrepancies() ([]PositionDiscrepancy, error) {
	resolved := false
	return r.ListDiscrepancies(&resolved)
}

// ListDiscrepancies returns discrepancies newest first, optionally filtered
// by resolution state (nil = all).
func (r *Repository) ListDiscrepancies(resolved *bool) ([]PositionDiscrepancy, error) {
	query := "SELECT " + discrepanciesColumns + " FROM position_discrepancies"
	args := []interface{}{}
	if resolved != nil {
		query += " WHERE resolved = ?"
		args = append(args, boolToInt(*resolved))
	}
	query += " ORDER BY detected_at DESC, id DESC"

	rows, err := r.portfolioDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list discrepancies: %w", err)
	}
	defer rows.Close()
	return scanDiscrepancies(rows)
}

// ListDiscrepanciesForRun returns every discrepancy detected during one run
func (r *Repository) ListDiscrepanciesForRun(runID string) ([]PositionDiscrepancy, error) {
	rows, err := r.portfolioDB.Query(
		"SELECT "+discrepanciesColumns+" FROM position_discrepancies WHERE run_id = ? ORDER BY id",
		runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list discrepancies for run %s: %w", runID, err)
	}
	defer rows.Close()
	return scanDiscrepancies(rows)
}

// GetRun returns one run by its public run_id, or nil when unknown
func (r *Repository) GetRun(runID string) (*Run, error) {
	row := r.portfolioDB.QueryRow(
		"SELECT "+runsColumns+" FROM reconciliation_runs WHERE run_id = ?", runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reconciliation run %s: %w", runID, err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first
func (r *Repository) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.portfolioDB.Query(
		"SELECT "+runsColumns+" FROM reconciliation_runs ORDER BY run_time DESC, id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliation runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRunFields(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanFunc func(dest ...interface{}) error

func scanRun(row *sql.Row) (Run, error) {
	return scanRunFields(row.Scan)
}

func scanRunFields(scan scanFunc) (Run, error) {
	var run Run
	var runTime int64
	var brokers string
	var errorMessage sql.NullString
	var durationMs, completedAt sql.NullInt64

	err := scan(&run.ID, &run.RunID, &runTime, &brokers, &run.TotalPositions,
		&run.DiscrepanciesFound, &run.AutoCorrections, &run.Status,
		&errorMessage, &durationMs, &completedAt)
	if err != nil {
		return Run{}, err
	}

	run.RunTime = time.Unix(runTime, 0)
	if brokers != "" {
		run.BrokersChecked = strings.Split(brokers, ",")
	}
	run.ErrorMessage = errorMessage.String
	run.DurationMs = durationMs.Int64
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		run.CompletedAt = &t
	}
	return run, nil
}

func scanDiscrepancies(rows *sql.Rows) ([]PositionDiscrepancy, error) {
	discrepancies := make([]PositionDiscrepancy, 0)
	for rows.Next() {
		var d PositionDiscrepancy
		var detectedAt int64
		var resolved int
		var resolvedAt sql.NullInt64
		var method sql.NullString

		err := rows.Scan(&d.ID, &d.RunID, &d.Symbol, &d.Exchange, &d.BrokerID,
			&d.LocalQuantity, &d.BrokerQuantity, &d.Difference,
			&d.LocalAvgPrice, &d.BrokerAvgPrice, &detectedAt,
			&resolved, &resolvedAt, &method)
		if err != nil {
			return nil, fmt.Errorf("failed to scan discrepancy: %w", err)
		}

		d.DetectedAt = time.Unix(detectedAt, 0)
		d.Resolved = resolved != 0
		if resolvedAt.Valid {
			t := time.Unix(resolvedAt.Int64, 0)
			d.ResolvedAt = &t
		}
		d.ResolutionMethod = method.String
		discrepancies = append(discrepancies, d)
	}
	return discrepancies, rows.Err()
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

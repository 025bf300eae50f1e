// Package reconciliation compares the local position ledger against broker
// ground truth, records discrepancies, and optionally corrects the ledger.
package reconciliation

import "time"

// Run lifecycle states
const (
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

// Discrepancy resolution methods
const (
	ResolutionAuto    = "AUTO"
	ResolutionManual  = "MANUAL"
	ResolutionIgnored = "IGNORED"
)

// PositionSnapshot is a broker's reported position captured during one run.
// Snapshots are append-only history, never mutated.
type PositionSnapshot struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	BrokerID     string    `json:"broker_id"`
	Symbol       string    `json:"symbol"`
	Exchange     string    `json:"exchange"`
	Quantity     int64     `json:"quantity"`
	AveragePrice float64   `json:"average_price"`
	CurrentPrice float64   `json:"current_price"`
	PnL          float64   `json:"pnl"`
	CapturedAt   time.Time `json:"captured_at"`
}

// PositionDiscrepancy records a quantity mismatch between the ledger and a
// broker. Difference is broker minus local: negative means the broker holds
// less than the ledger believes.
type PositionDiscrepancy struct {
	ID               int64      `json:"id"`
	RunID            string     `json:"run_id"`
	Symbol           string     `json:"symbol"`
	Exchange         string     `json:"exchange"`
	BrokerID         string     `json:"broker_id"`
	LocalQuantity    int64      `json:"local_quantity"`
	BrokerQuantity   int64      `json:"broker_quantity"`
	Difference       int64      `json:"difference"`
	LocalAvgPrice    float64    `json:"local_avg_price"`
	BrokerAvgPrice   float64    `json:"broker_avg_price"`
	DetectedAt       time.Time  `json:"detected_at"`
	Resolved         bool       `json:"resolved"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ResolutionMethod string     `json:"resolution_method,omitempty"`
}

// Run summarizes one reconciliation pass across all enabled brokers
type Run struct {
	ID                 int64      `json:"id"`
	RunID              string     `json:"run_id"`
	RunTime            time.Time  `json:"run_time"`
	BrokersChecked     []string   `json:"brokers_checked"`
	TotalPositions     int        `json:"total_positions"`
	DiscrepanciesFound int        `json:"discrepancies_found"`
	AutoCorrections    int        `json:"auto_corrections"`
	Status             string     `json:"status"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	DurationMs         int64      `json:"duration_ms"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

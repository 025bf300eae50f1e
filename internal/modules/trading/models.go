// Package trading holds the execution audit trail: executed orders and
// guardrail verdicts, both persisted to ledger.db.
package trading

import (
	"fmt"
	"time"

	"github.com/wardenhq/warden/internal/domain"
)

// Execution statuses
const (
	StatusExecuted = "EXECUTED"
	StatusRejected = "REJECTED"
)

// Execution is one executed (or broker-rejected) order
type Execution struct {
	ID           int64         `json:"id"`
	OrderID      string        `json:"order_id"`
	DecisionID   string        `json:"decision_id"`
	Symbol       string        `json:"symbol"`
	Exchange     string        `json:"exchange"`
	Side         domain.Signal `json:"side"`
	Quantity     int64         `json:"quantity"`
	Price        float64       `json:"price"`
	BrokerID     string        `json:"broker_id"`
	StrategyName string        `json:"strategy_name"`
	Status       string        `json:"status"`
	ExecutedAt   time.Time     `json:"executed_at"`
}

// Validate checks the execution before insertion
func (e Execution) Validate() error {
	if e.Symbol == "" {
		return fmt.Errorf("execution symbol cannot be empty")
	}
	if e.DecisionID == "" {
		return fmt.Errorf("execution decision_id cannot be empty")
	}
	if e.Quantity <= 0 {
		return fmt.Errorf("execution quantity must be positive, got %d", e.Quantity)
	}
	if e.Status != StatusExecuted && e.Status != StatusRejected {
		return fmt.Errorf("invalid execution status: %q", e.Status)
	}
	return nil
}

// Verdict is one guardrail evaluation outcome, allow or block
type Verdict struct {
	ID          int64         `json:"id"`
	DecisionID  string        `json:"decision_id"`
	Symbol      string        `json:"symbol"`
	Side        domain.Signal `json:"side"`
	Quantity    int64         `json:"quantity"`
	Allowed     bool          `json:"allowed"`
	Reason      string        `json:"reason,omitempty"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
}

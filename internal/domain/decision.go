// Package domain contains the shared domain types used across warden:
// the decision contract produced by the reasoning layer and the
// broker-agnostic adapter types.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Signal is the trading signal carried by a decision contract
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalNone Signal = "NONE"
)

// SignalFromString parses a signal, rejecting anything outside BUY/SELL/NONE
func SignalFromString(s string) (Signal, error) {
	switch Signal(strings.ToUpper(strings.TrimSpace(s))) {
	case SignalBuy:
		return SignalBuy, nil
	case SignalSell:
		return SignalSell, nil
	case SignalNone:
		return SignalNone, nil
	}
	return "", fmt.Errorf("invalid signal: %q", s)
}

// DecisionContract binds a trading signal to a price, a strategy identity and
// an expiry window. It is immutable after construction: the guardrail
// validator only reads it, and it is discarded after expiry or a terminal
// execution outcome.
type DecisionContract struct {
	DecisionID      string    `json:"decision_id"`
	StrategyName    string    `json:"strategy_name"`
	StrategyVersion string    `json:"strategy_version"`
	Symbol          string    `json:"symbol"` // Canonical EXCHANGE:TICKER
	Signal          Signal    `json:"signal"`
	ConfidenceScore float64   `json:"confidence_score"` // 0-100
	DecisionPrice   float64   `json:"decision_price"`
	DecisionTime    time.Time `json:"decision_time"`
	ValidTill       time.Time `json:"valid_till"`
}

// NewDecisionContract constructs a decision contract valid for ttl from now.
// Contract violations (non-positive TTL, out-of-range confidence, unknown
// signal, non-positive price) are rejected here, at construction time, so the
// validator never has to reason about malformed decisions.
func NewDecisionContract(
	symbol string,
	signal Signal,
	confidence float64,
	price float64,
	strategy string,
	version string,
	ttl time.Duration,
) (*DecisionContract, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol cannot be empty")
	}
	if strategy == "" {
		return nil, fmt.Errorf("strategy name cannot be empty")
	}
	if _, err := SignalFromString(string(signal)); err != nil {
		return nil, err
	}
	if confidence < 0 || confidence > 100 {
		return nil, fmt.Errorf("confidence score %.2f out of range [0, 100]", confidence)
	}
	if price <= 0 {
		return nil, fmt.Errorf("decision price must be positive, got %.4f", price)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	now := time.Now()
	return &DecisionContract{
		DecisionID:      uuid.NewString(),
		StrategyName:    strategy,
		StrategyVersion: version,
		Symbol:          symbol,
		Signal:          signal,
		ConfidenceScore: confidence,
		DecisionPrice:   price,
		DecisionTime:    now,
		ValidTill:       now.Add(ttl),
	}, nil
}

// IsValidAt reports whether the contract is inside its validity window at t
func (d *DecisionContract) IsValidAt(t time.Time) bool {
	return !t.Before(d.DecisionTime) && !t.After(d.ValidTill)
}

// Package alerts defines the fire-and-forget alert contract. Alert emission
// must never fail the caller's primary operation, so Emit has no error
// return and sinks swallow their own failures.
package alerts

import (
	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/internal/events"
)

// Alert levels
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// Well-known alert types
const (
	TypeTradeBlocked    = "TRADE_BLOCKED"
	TypeDiscrepancy     = "POSITION_DISCREPANCY"
	TypePriceDrift      = "PRICE_DRIFT"
	TypeBrokerFailure   = "BROKER_FAILURE"
	TypeReconcileFailed = "RECONCILIATION_FAILED"
)

// Alerter delivers alerts to an external channel. Implementations must be
// fire-and-forget: no error returns, no panics.
type Alerter interface {
	Emit(alertType, message, level, symbol string, metadata map[string]interface{})
}

// LogAlerter writes alerts to the structured log
type LogAlerter struct {
	log zerolog.Logger
}

// NewLogAlerter creates a log-backed alerter
func NewLogAlerter(log zerolog.Logger) *LogAlerter {
	return &LogAlerter{log: log.With().Str("component", "alerts").Logger()}
}

// Emit implements Alerter
func (a *LogAlerter) Emit(alertType, message, level, symbol string, metadata map[string]interface{}) {
	event := a.log.Info()
	switch level {
	case LevelWarning:
		event = a.log.Warn()
	case LevelCritical:
		event = a.log.Error()
	}
	event.
		Str("alert_type", alertType).
		Str("symbol", symbol).
		Fields(metadata).
		Msg(message)
}

// EventAlerter publishes alerts to the event manager so the SSE stream and
// any in-process subscriber can observe them.
type EventAlerter struct {
	manager *events.Manager
}

// NewEventAlerter creates an event-backed alerter
func NewEventAlerter(manager *events.Manager) *EventAlerter {
	return &EventAlerter{manager: manager}
}

// Emit implements Alerter
func (a *EventAlerter) Emit(alertType, message, level, symbol string, metadata map[string]interface{}) {
	data := map[string]interface{}{
		"alert_type": alertType,
		"message":    message,
		"level":      level,
		"symbol":     symbol,
	}
	for k, v := range metadata {
		data[k] = v
	}
	a.manager.Emit(events.AlertRaised, "alerts", data)
}

// Multi fans an alert out to several sinks
type Multi []Alerter

// Emit implements Alerter
func (m Multi) Emit(alertType, message, level, symbol string, metadata map[string]interface{}) {
	for _, a := range m {
		a.Emit(alertType, message, level, symbol, metadata)
	}
}

// Package events provides the in-process event manager feeding the SSE
// stream and the event-backed alert sink.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	ExecutionStateChanged   EventType = "EXECUTION_STATE_CHANGED"
	TradeBlocked            EventType = "TRADE_BLOCKED"
	TradeAllowed            EventType = "TRADE_ALLOWED"
	ReconciliationCompleted EventType = "RECONCILIATION_COMPLETED"
	ReconciliationFailed    EventType = "RECONCILIATION_FAILED"
	DiscrepancyFound        EventType = "DISCREPANCY_FOUND"
	AlertRaised             EventType = "ALERT_RAISED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Module    string                 `json:"module"`
	Data      map[string]interface{} `json:"data"`
}

// Handler is invoked for every emitted event the subscriber matches
type Handler func(event *Event)

// Manager dispatches events to subscribers. Emit is non-blocking for the
// emitter: slow handlers only affect their own subscription goroutine.
type Manager struct {
	mu          sync.RWMutex
	subscribers []subscription
	log         zerolog.Logger
}

type subscription struct {
	types   map[EventType]bool // nil means all types
	handler Handler
}

// NewManager creates an event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log: log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for the given event types (empty = all)
func (m *Manager) Subscribe(handler Handler, types ...EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := subscription{handler: handler}
	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	m.subscribers = append(m.subscribers, sub)
}

// Emit publishes an event to all matching subscribers
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}

	m.mu.RLock()
	subs := make([]subscription, len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.RUnlock()

	for _, sub := range subs {
		if sub.types != nil && !sub.types[eventType] {
			continue
		}
		sub.handler(event)
	}

	m.log.Debug().
		Str("event", string(eventType)).
		Str("module", module).
		Msg("Event emitted")
}

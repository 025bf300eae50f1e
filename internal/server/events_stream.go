package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wardenhq/warden/internal/events"
)

// handleEventsStream handles GET /api/events/stream requests (SSE). Clients
// can narrow the stream with ?types=TRADE_BLOCKED,DISCREPANCY_FOUND.
func (s *Server) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var typeFilter []events.EventType
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			typeFilter = append(typeFilter, events.EventType(strings.TrimSpace(t)))
		}
	}

	s.log.Info().
		Str("types", r.URL.Query().Get("types")).
		Msg("Client connected to event stream")

	// Buffered so a slow client drops events instead of blocking emitters
	eventChan := make(chan *events.Event, 100)
	s.events.Subscribe(func(event *events.Event) {
		select {
		case eventChan <- event:
		default:
			s.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	}, typeFilter...)

	done := r.Context().Done()

	fmt.Fprintf(w, "data: %s\n\n", s.encodeStreamEvent(map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	}))
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			s.log.Info().Msg("Client disconnected from event stream")
			return

		case event := <-eventChan:
			fmt.Fprintf(w, "data: %s\n\n", s.encodeStreamEvent(map[string]interface{}{
				"type":      string(event.Type),
				"module":    event.Module,
				"timestamp": event.Timestamp.Format(time.RFC3339),
				"data":      event.Data,
			}))
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, "data: %s\n\n", s.encodeStreamEvent(map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			}))
			flusher.Flush()
		}
	}
}

func (s *Server) encodeStreamEvent(event map[string]interface{}) string {
	data, err := json.Marshal(event)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal event")
		return `{"error":"failed to encode event"}`
	}
	return string(data)
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/modules/reconciliation"
)

// handleExecutionStatus returns the effective execution state together with
// the most recent execution, so operators see what the last action was
// before flipping the switch.
func (s *Server) handleExecutionStatus(w http.ResponseWriter, r *http.Request) {
	status := s.execState.Status()

	response := map[string]interface{}{
		"effective_enabled":  status.EffectiveEnabled,
		"is_overridden":      status.IsOverridden,
		"configured_default": status.ConfiguredDefault,
	}

	latest, err := s.trading.LatestExecution()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to load latest execution for status")
	} else if latest != nil {
		response["last_execution"] = latest
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleExecutionEnable turns execution on
func (s *Server) handleExecutionEnable(w http.ResponseWriter, r *http.Request) {
	if err := s.execState.Enable(); err != nil {
		s.log.Error().Err(err).Msg("Failed to enable execution")
		s.writeError(w, http.StatusInternalServerError, "failed to write execution override")
		return
	}

	s.events.Emit(events.ExecutionStateChanged, "execstate", map[string]interface{}{
		"enabled": true,
	})
	s.writeJSON(w, http.StatusOK, s.execState.Status())
}

// handleExecutionDisable engages the kill switch
func (s *Server) handleExecutionDisable(w http.ResponseWriter, r *http.Request) {
	if err := s.execState.Disable(); err != nil {
		s.log.Error().Err(err).Msg("Failed to disable execution")
		s.writeError(w, http.StatusInternalServerError, "failed to write execution override")
		return
	}

	s.events.Emit(events.ExecutionStateChanged, "execstate", map[string]interface{}{
		"enabled": false,
	})
	s.writeJSON(w, http.StatusOK, s.execState.Status())
}

// validateRequest carries the decision contract the upstream reasoning layer
// holds, plus the order it wants to place.
type validateRequest struct {
	Decision *domain.DecisionContract `json:"decision"`
	Order    domain.OrderRequest      `json:"order"`
}

// handleValidateOrder runs the pre-trade guardrail gate against an order and
// returns the verdict, block reason verbatim.
func (s *Server) handleValidateOrder(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Decision == nil || req.Decision.DecisionID == "" {
		s.writeError(w, http.StatusBadRequest, "decision is required")
		return
	}
	if req.Order.Quantity <= 0 {
		s.writeError(w, http.StatusBadRequest, "order quantity must be positive")
		return
	}
	if _, err := domain.SignalFromString(string(req.Order.Side)); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	verdict := s.guardrails.Validate(req.Decision.Symbol, req.Order, req.Decision)
	s.writeJSON(w, http.StatusOK, verdict)
}

// handleListBrokers returns all configured brokers and their capabilities
func (s *Server) handleListBrokers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"brokers": s.brokers.ListInfo(),
	})
}

// handleBrokerHealth pings one broker's session endpoint
func (s *Server) handleBrokerHealth(w http.ResponseWriter, r *http.Request) {
	brokerID := chi.URLParam(r, "brokerID")

	adapter := s.brokers.GetBroker(brokerID)
	if adapter == nil {
		s.writeError(w, http.StatusNotFound, "unknown broker: "+brokerID)
		return
	}

	health, err := adapter.IsHealthy(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"broker_id": adapter.ID(),
			"healthy":   false,
			"detail":    err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"broker_id": adapter.ID(),
		"healthy":   health.Healthy,
		"detail":    health.Detail,
	})
}

// handleListPositions returns the local ledger, optionally filtered by broker
func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	brokerID := r.URL.Query().Get("broker")

	var err error
	var positions interface{}
	if brokerID != "" {
		positions, err = s.positions.GetByBroker(brokerID)
	} else {
		positions, err = s.positions.GetAll()
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list positions")
		s.writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"positions": positions})
}

// handleListVerdicts returns recent guardrail verdicts from the audit trail
func (s *Server) handleListVerdicts(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 100)

	verdicts, err := s.trading.ListVerdicts(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list verdicts")
		s.writeError(w, http.StatusInternalServerError, "failed to list verdicts")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"verdicts": verdicts})
}

// handleListRuns returns recent reconciliation runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 50)

	runs, err := s.reconRepo.ListRuns(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list reconciliation runs")
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// handleGetRun returns one run with its discrepancies
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := s.reconRepo.GetRun(runID)
	if err != nil {
		s.log.Error().Err(err).Str("run_id", runID).Msg("Failed to get reconciliation run")
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	if run == nil {
		s.writeError(w, http.StatusNotFound, "unknown run: "+runID)
		return
	}

	discrepancies, err := s.reconRepo.ListDiscrepanciesForRun(runID)
	if err != nil {
		s.log.Error().Err(err).Str("run_id", runID).Msg("Failed to list run discrepancies")
		s.writeError(w, http.StatusInternalServerError, "failed to list run discrepancies")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":           run,
		"discrepancies": discrepancies,
	})
}

// handleTriggerRun starts a reconciliation run immediately. Manual triggers
// bypass the trading-session gate but never overlap a run in flight.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	s.log.Info().Msg("Manual reconciliation triggered")

	run, err := s.engine.Reconcile(r.Context())
	if errors.Is(err, reconciliation.ErrRunInProgress) {
		s.writeError(w, http.StatusConflict, "a reconciliation run is already in progress")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Manual reconciliation failed to start")
		s.writeError(w, http.StatusInternalServerError, "failed to start reconciliation")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"run": run})
}

// handlePauseSchedule suspends scheduled reconciliation ticks
func (s *Server) handlePauseSchedule(w http.ResponseWriter, r *http.Request) {
	s.reconJob.Pause()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"paused": true})
}

// handleResumeSchedule re-enables scheduled reconciliation ticks
func (s *Server) handleResumeSchedule(w http.ResponseWriter, r *http.Request) {
	s.reconJob.Resume()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"paused": false})
}

// handleListDiscrepancies returns discrepancies, filtered by ?resolved=
// when present, all otherwise
func (s *Server) handleListDiscrepancies(w http.ResponseWriter, r *http.Request) {
	var resolved *bool
	if raw := r.URL.Query().Get("resolved"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "resolved must be true or false")
			return
		}
		resolved = &value
	}

	discrepancies, err := s.reconRepo.ListDiscrepancies(resolved)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list open discrepancies")
		s.writeError(w, http.StatusInternalServerError, "failed to list discrepancies")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"discrepancies": discrepancies})
}

// resolveRequest is the body of a manual discrepancy resolution
type resolveRequest struct {
	Method string `json:"method"` // MANUAL or IGNORED
}

// handleResolveDiscrepancy marks a discrepancy resolved by an operator.
// AUTO is reserved for the engine's correction path.
func (s *Server) handleResolveDiscrepancy(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "discrepancyID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid discrepancy id")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method != reconciliation.ResolutionManual && method != reconciliation.ResolutionIgnored {
		s.writeError(w, http.StatusBadRequest, "method must be MANUAL or IGNORED")
		return
	}

	if err := s.reconRepo.ResolveDiscrepancy(id, method); err != nil {
		s.log.Warn().Err(err).Int64("discrepancy_id", id).Msg("Failed to resolve discrepancy")
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}

	s.log.Info().
		Int64("discrepancy_id", id).
		Str("method", method).
		Msg("Discrepancy resolved")
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"method": method,
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}

func parseIntQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

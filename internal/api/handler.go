package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/alerting"
	"github.com/opensource-finance/kestrel/internal/analytics"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	screener  *rules.Engine
	processor *alerting.Processor
	history   *history.Service
	version   string

	runWindowSecs int
	resultTTL     time.Duration
}

// NewHandler creates a new API handler. The screening config drives the
// recent_runs window used on the synchronous path.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, screener *rules.Engine, processor *alerting.Processor, hist *history.Service, screening domain.ScreeningConfig, version string) *Handler {
	runWindowSecs := screening.RunWindowSecs
	if runWindowSecs <= 0 {
		runWindowSecs = 3600
	}

	return &Handler{
		repo:          repo,
		cache:         cache,
		bus:           bus,
		screener:      screener,
		processor:     processor,
		history:       hist,
		version:       version,
		runWindowSecs: runWindowSecs,
		resultTTL:     time.Hour,
	}
}

// Analyze handles POST /analyze: runs an analysis synchronously through the
// full pipeline and returns the screened run.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req domain.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	kind, err := domain.ParseAnalysisKind(req.Kind)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	if req.Parameters == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "parameters is required",
		})
		return
	}

	ingestMs := time.Since(start).Milliseconds()

	// 1. Run the analysis, replaying a cached result on a dataset hash hit
	analysisStart := time.Now()
	result, err := analytics.Run(kind, req.Parameters)
	if err != nil {
		if errors.Is(err, analytics.ErrUnsupportedKind) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "analysis failed: " + err.Error(),
		})
		return
	}

	cacheHit := false
	if h.cache != nil {
		if cached, cacheErr := h.cache.GetResult(ctx, tenantID, result.Summary.DatasetHash); cacheErr == nil && cached != nil && cached.Summary.Kind == kind {
			result = cached
			cacheHit = true
		} else {
			_ = h.cache.SetResult(ctx, tenantID, result.Summary.DatasetHash, result, h.resultTTL)
		}
	}
	analysisMs := time.Since(analysisStart).Milliseconds()

	// 2. Screen the result
	screenStart := time.Now()
	runID := uuid.New().String()
	var screenResults []domain.ScreenResult
	if h.screener != nil {
		screenResults, err = h.screener.EvaluateAll(ctx, &rules.ScreenInput{
			TenantID:     tenantID,
			RunID:        runID,
			EngagementID: req.EngagementID,
			Kind:         kind,
			Result:       result,
			RunWindow:    h.runWindowSecs,
		})
		if err != nil {
			slog.Error("screening failed", "run_id", runID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "screening failed",
			})
			return
		}
	}
	screenMs := time.Since(screenStart).Milliseconds()

	// 3. Make the final decision
	run := h.processor.Process(ctx, &alerting.DecisionInput{
		TenantID:      tenantID,
		RunID:         runID,
		EngagementID:  req.EngagementID,
		TraceID:       traceID,
		Kind:          kind,
		Result:        result,
		ScreenResults: screenResults,
		CacheHit:      cacheHit,
		IngestMs:      ingestMs,
		AnalysisMs:    analysisMs,
		ScreenMs:      screenMs,
		StartTime:     start,
	})

	// 4. Persist the run
	if h.repo != nil {
		if err := h.repo.SaveRun(ctx, tenantID, run); err != nil {
			slog.Error("failed to save run", "run_id", run.ID, "error", err)
		}
	}
	if h.history != nil {
		h.history.RecordRun(ctx, tenantID, run.EngagementID, h.runWindowSecs)
	}

	// 5. Publish completion (and alert) events
	if h.bus != nil {
		payload, _ := json.Marshal(run)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicRunCompleted, payload); err != nil {
			slog.Error("failed to publish run completion", "run_id", run.ID, "error", err)
		}
		if alerting.ShouldAlert(run) {
			if err := h.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
				slog.Error("failed to publish alert", "run_id", run.ID, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, run.ToResponse())
}

// AnalyzeAsync handles POST /analyze/async: queues a run request on the event
// bus and returns 202 with the run ID immediately.
func (h *Handler) AnalyzeAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	var req domain.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate the kind up front so the queue never sees garbage
	if _, err := domain.ParseAnalysisKind(req.Kind); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	if req.Parameters == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "parameters is required",
		})
		return
	}

	runID := uuid.New().String()
	msg := worker.RunMessage{
		RunID:        runID,
		TenantID:     tenantID,
		TraceID:      traceID,
		Kind:         req.Kind,
		EngagementID: req.EngagementID,
		Parameters:   req.Parameters,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to encode run request",
		})
		return
	}

	if err := h.bus.Publish(ctx, tenantID, domain.TopicRunRequested, payload); err != nil {
		slog.Error("failed to publish run request", "run_id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to queue run",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"runId":  runID,
		"status": "queued",
	})
}

// Fingerprint handles POST /fingerprint: returns the canonical dataset hash
// of the request body without running any analysis.
func (h *Handler) Fingerprint(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "request body is required",
		})
		return
	}

	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	hash, err := analytics.Fingerprint(value)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"datasetHash": hash,
	})
}

// GetRun retrieves a run by ID.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	runID := chi.URLParam(r, "id")

	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "run id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	run, err := h.repo.GetRun(ctx, tenantID, runID)
	if err != nil {
		slog.Error("failed to get run", "id", runID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// ListRuns lists recent runs for the tenant, optionally filtered by
// engagement via the ?engagementId= query parameter.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	engagementID := r.URL.Query().Get("engagementId")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	runs, err := h.repo.ListRuns(ctx, tenantID, engagementID, limit)
	if err != nil {
		slog.Error("failed to list runs", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list runs",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns all loaded screening rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.screener.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.screener.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Expression  string            `json:"expression"`
	Bands       []domain.RuleBand `json:"bands"`
	Weight      float64           `json:"weight"`
	Enabled     bool              `json:"enabled"`
}

// CreateRule creates a new screening rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Bands:       req.Bands,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.screener.LoadRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(ctx, GlobalTenantID, ruleConfig); err != nil {
			slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListRuleConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.screener.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

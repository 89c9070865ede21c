// Package worker provides async analytics run processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/alerting"
	"github.com/opensource-finance/kestrel/internal/analytics"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Worker processes analytics runs asynchronously from the EventBus.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	cache     domain.Cache
	screener  *rules.Engine
	processor *alerting.Processor
	history   *history.Service

	runWindowSecs int
	resultTTL     time.Duration

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string

	// RunWindowSecs is the screening window for run-frequency rules
	RunWindowSecs int

	// ResultTTL is how long cached results stay valid
	ResultTTL time.Duration
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, screener *rules.Engine, processor *alerting.Processor, hist *history.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:           bus,
		repo:          repo,
		cache:         cache,
		screener:      screener,
		processor:     processor,
		history:       hist,
		runWindowSecs: 3600,
		resultTTL:     time.Hour,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start begins processing run requests for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if cfg.RunWindowSecs > 0 {
		w.runWindowSecs = cfg.RunWindowSecs
	}
	if cfg.ResultTTL > 0 {
		w.resultTTL = cfg.ResultTTL
	}

	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes runs for all tenants via a
// wildcard subscription. The message's own tenant ID scopes each run.
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TenantWildcard, domain.TopicRunRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started", "topic", domain.TopicRunRequested)
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	// Subscribe to run requested topic
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicRunRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processRun(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicRunRequested,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processRun(ctx, msg.TenantID, msg)
}

// RunMessage is the message payload for async run processing.
type RunMessage struct {
	RunID        string `json:"runId"`
	TenantID     string `json:"tenantId"`
	TraceID      string `json:"traceId"`
	Kind         string `json:"kind"`
	EngagementID string `json:"engagementId,omitempty"`
	Parameters   any    `json:"parameters"`
}

// processRun runs an analysis request through the full pipeline.
func (w *Worker) processRun(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	// Parse message
	var runMsg RunMessage
	if err := json.Unmarshal(msg.Payload, &runMsg); err != nil {
		slog.Error("failed to parse run message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if runMsg.TenantID != "" {
		tenantID = runMsg.TenantID
	}

	traceID := runMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	kind, err := domain.ParseAnalysisKind(runMsg.Kind)
	if err != nil {
		slog.Error("invalid analysis kind in run message",
			"message_id", msg.ID,
			"kind", runMsg.Kind,
			"error", err,
		)
		return err
	}

	slog.Debug("processing run",
		"run_id", runMsg.RunID,
		"tenant_id", tenantID,
		"kind", kind,
		"trace_id", traceID,
	)

	// 1. Run the analysis, replaying a cached result on a dataset hash hit
	analysisStart := time.Now()
	result, err := analytics.Run(kind, runMsg.Parameters)
	if err != nil {
		slog.Error("analysis failed",
			"run_id", runMsg.RunID,
			"kind", kind,
			"error", err,
		)
		return err
	}

	cacheHit := false
	if w.cache != nil {
		if cached, cacheErr := w.cache.GetResult(ctx, tenantID, result.Summary.DatasetHash); cacheErr == nil && cached != nil && cached.Summary.Kind == kind {
			result = cached
			cacheHit = true
		} else {
			_ = w.cache.SetResult(ctx, tenantID, result.Summary.DatasetHash, result, w.resultTTL)
		}
	}
	analysisMs := time.Since(analysisStart).Milliseconds()

	// 2. Screen the result
	screenStart := time.Now()
	var screenResults []domain.ScreenResult
	if w.screener != nil {
		screenResults, err = w.screener.EvaluateAll(ctx, &rules.ScreenInput{
			TenantID:     tenantID,
			RunID:        runMsg.RunID,
			EngagementID: runMsg.EngagementID,
			Kind:         kind,
			Result:       result,
			RunWindow:    w.runWindowSecs,
		})
		if err != nil {
			slog.Error("screening failed",
				"run_id", runMsg.RunID,
				"error", err,
			)
			return err
		}
	}
	screenMs := time.Since(screenStart).Milliseconds()

	// 3. Make the final decision
	run := w.processor.Process(ctx, &alerting.DecisionInput{
		TenantID:      tenantID,
		RunID:         runMsg.RunID,
		EngagementID:  runMsg.EngagementID,
		TraceID:       traceID,
		Kind:          kind,
		Result:        result,
		ScreenResults: screenResults,
		CacheHit:      cacheHit,
		AnalysisMs:    analysisMs,
		ScreenMs:      screenMs,
		StartTime:     start,
	})

	// 4. Save run
	if w.repo != nil {
		if err := w.repo.SaveRun(ctx, tenantID, run); err != nil {
			slog.Error("failed to save run",
				"run_id", run.ID,
				"error", err,
			)
		}
	}
	if w.history != nil {
		w.history.RecordRun(ctx, tenantID, run.EngagementID, w.runWindowSecs)
	}

	// 5. Publish result to completed topic
	resultPayload, _ := json.Marshal(run)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicRunCompleted, resultPayload); err != nil {
		slog.Error("failed to publish run completion",
			"run_id", run.ID,
			"error", err,
		)
	}

	// 6. If alert, publish to alert topic
	if alerting.ShouldAlert(run) {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAlert, resultPayload); err != nil {
			slog.Error("failed to publish alert",
				"run_id", run.ID,
				"error", err,
			)
		}
	}

	slog.Info("run processed",
		"run_id", run.ID,
		"tenant_id", tenantID,
		"kind", kind,
		"status", run.Status,
		"score", run.Score,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}

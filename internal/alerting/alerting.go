// Package alerting aggregates screening results into the final run decision.
package alerting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/analytics"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Processor aggregates screening results and produces a final run decision.
type Processor struct {
	// Threshold above which a run is flagged as ALERT
	AlertThreshold float64

	// Weight configuration for rule aggregation
	UseWeightedScoring bool
}

// NewProcessor creates a new alerting processor with default settings.
func NewProcessor() *Processor {
	return &Processor{
		AlertThreshold:     0.7,  // Default threshold
		UseWeightedScoring: true, // Use rule weights in scoring
	}
}

// DecisionInput contains all data needed for a run decision.
type DecisionInput struct {
	TenantID      string
	RunID         string
	EngagementID  string
	TraceID       string
	Kind          domain.AnalysisKind
	Result        *domain.AnalyticsResult
	ScreenResults []domain.ScreenResult
	CacheHit      bool
	IngestMs      int64
	AnalysisMs    int64
	ScreenMs      int64
	StartTime     time.Time
}

// Process evaluates screening results and produces the final run record.
func (p *Processor) Process(ctx context.Context, input *DecisionInput) *domain.Run {
	runID := input.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	run := &domain.Run{
		ID:            runID,
		TenantID:      input.TenantID,
		EngagementID:  input.EngagementID,
		Kind:          input.Kind,
		DatasetHash:   input.Result.Summary.DatasetHash,
		Summary:       input.Result.Summary,
		Exceptions:    input.Result.Exceptions,
		ScreenResults: input.ScreenResults,
		CreatedAt:     time.Now().UTC(),
	}

	// Aggregate screening results
	agg := p.aggregate(input.ScreenResults)

	if agg.HasCriticalFailure || agg.AggregateScore >= p.AlertThreshold {
		run.Status = domain.StatusAlert
	} else {
		run.Status = domain.StatusNoAlert
	}
	run.Score = agg.AggregateScore

	run.Metadata = domain.RunMetadata{
		TraceID:        input.TraceID,
		IngestMs:       input.IngestMs,
		AnalysisMs:     input.AnalysisMs,
		ScreenMs:       input.ScreenMs,
		TotalMs:        time.Since(input.StartTime).Milliseconds(),
		RulesEvaluated: len(input.ScreenResults),
		CacheHit:       input.CacheHit,
		EngineVersion:  analytics.EngineVersion,
	}

	return run
}

// AggregateResult holds the aggregated scoring results.
type AggregateResult struct {
	AggregateScore     float64
	TotalWeight        float64
	RulesTriggered     int
	HasCriticalFailure bool
}

// aggregate computes the weighted aggregate score from screening results.
func (p *Processor) aggregate(results []domain.ScreenResult) *AggregateResult {
	if len(results) == 0 {
		return &AggregateResult{}
	}

	agg := &AggregateResult{}

	for _, r := range results {
		weight := r.Weight
		if weight <= 0 {
			weight = 1.0
		}

		// Check for critical failures
		if r.SubRuleRef == domain.RuleOutcomeFail {
			agg.HasCriticalFailure = true
			agg.RulesTriggered++
		} else if r.SubRuleRef == domain.RuleOutcomeReview {
			agg.RulesTriggered++
		}

		if p.UseWeightedScoring {
			agg.AggregateScore += r.Score * weight
			agg.TotalWeight += weight
		} else {
			agg.AggregateScore += r.Score
			agg.TotalWeight += 1.0
		}
	}

	// Normalize score
	if agg.TotalWeight > 0 {
		agg.AggregateScore = agg.AggregateScore / agg.TotalWeight
	}

	return agg
}

// ShouldAlert returns true if the run should trigger an alert.
func ShouldAlert(run *domain.Run) bool {
	return run.Status == domain.StatusAlert
}

// GetReasons extracts human-readable reasons from a run's screening results.
func GetReasons(run *domain.Run) []string {
	var reasons []string
	for _, r := range run.ScreenResults {
		if r.SubRuleRef == domain.RuleOutcomeFail || r.SubRuleRef == domain.RuleOutcomeReview {
			if r.Reason != "" {
				reasons = append(reasons, r.Reason)
			}
		}
	}
	return reasons
}

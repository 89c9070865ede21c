package domain

import (
	"time"
)

// Run is a persisted analytics run: the audit-trail record of one engine
// invocation, its result, and the screening decision made on it.
type Run struct {
	ID           string       `json:"id"`
	TenantID     string       `json:"tenantId"`
	EngagementID string       `json:"engagementId,omitempty"`
	Kind         AnalysisKind `json:"kind"`
	DatasetHash  string       `json:"datasetHash"`

	Summary    AnalyticsSummary     `json:"summary"`
	Exceptions []AnalyticsException `json:"exceptions"`

	// Screening outcome
	Status string  `json:"status"` // "ALRT" or "NALT"
	Score  float64 `json:"score"`

	ScreenResults []ScreenResult `json:"screenResults,omitempty"`

	CreatedAt time.Time `json:"createdAt"`

	// Processing metadata
	Metadata RunMetadata `json:"metadata"`
}

// RunMetadata contains processing information for a run.
type RunMetadata struct {
	TraceID        string `json:"traceId"`
	IngestMs       int64  `json:"ingestMs"`
	AnalysisMs     int64  `json:"analysisMs"`
	ScreenMs       int64  `json:"screenMs"`
	TotalMs        int64  `json:"totalMs"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	CacheHit       bool   `json:"cacheHit"`
	EngineVersion  string `json:"engineVersion"`
}

// RunRequest is the API request payload for POST /analyze.
// Parameters is left raw so the engine fingerprints exactly what arrived.
type RunRequest struct {
	Kind         string `json:"kind"`
	EngagementID string `json:"engagementId,omitempty"`
	Parameters   any    `json:"parameters"`
}

// RunResponse is the API response for a completed analytics run.
type RunResponse struct {
	RunID      string               `json:"runId"`
	Kind       AnalysisKind         `json:"kind"`
	Status     string               `json:"status"`
	Score      float64              `json:"score"`
	Summary    AnalyticsSummary     `json:"summary"`
	Exceptions []AnalyticsException `json:"exceptions"`
	Reasons    []string             `json:"reasons,omitempty"`
	Metadata   RunMetadata          `json:"metadata"`
}

// Screening status constants
const (
	StatusAlert   = "ALRT" // run surfaced anomalies that merit review
	StatusNoAlert = "NALT" // run passed screening
)

// ToResponse converts a Run to an API response.
func (r *Run) ToResponse() *RunResponse {
	var reasons []string
	for _, sr := range r.ScreenResults {
		if sr.SubRuleRef == RuleOutcomeFail || sr.SubRuleRef == RuleOutcomeReview {
			reasons = append(reasons, sr.Reason)
		}
	}

	return &RunResponse{
		RunID:      r.ID,
		Kind:       r.Kind,
		Status:     r.Status,
		Score:      r.Score,
		Summary:    r.Summary,
		Exceptions: r.Exceptions,
		Reasons:    reasons,
		Metadata:   r.Metadata,
	}
}

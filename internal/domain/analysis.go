// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"fmt"
)

// AnalysisKind selects which analysis procedure runs and which parameter
// shape applies.
type AnalysisKind string

const (
	KindJournalEntry AnalysisKind = "JE"
	KindRatio        AnalysisKind = "RATIO"
	KindVariance     AnalysisKind = "VARIANCE"
	KindDuplicate    AnalysisKind = "DUPLICATE"
	KindBenford      AnalysisKind = "BENFORD"
)

// ParseAnalysisKind validates a kind string against the closed enumeration.
func ParseAnalysisKind(s string) (AnalysisKind, error) {
	switch AnalysisKind(s) {
	case KindJournalEntry, KindRatio, KindVariance, KindDuplicate, KindBenford:
		return AnalysisKind(s), nil
	}
	return "", fmt.Errorf("unsupported analysis kind: %q", s)
}

// JournalEntryLine is one journal line submitted for analysis.
type JournalEntryLine struct {
	ID          string  `json:"id"`
	PostedAt    string  `json:"postedAt"`
	Amount      float64 `json:"amount"`
	Account     string  `json:"account"`
	Description string  `json:"description,omitempty"`
	CreatedAt   string  `json:"createdAt,omitempty"`
	CreatedBy   string  `json:"createdBy,omitempty"`
	ApprovedBy  string  `json:"approvedBy,omitempty"`
}

// JournalParams are the parameters for the journal entry analyzer.
type JournalParams struct {
	PeriodEnd            string             `json:"periodEnd"`
	LatePostingDays      int                `json:"latePostingDays"`
	RoundAmountThreshold float64            `json:"roundAmountThreshold"`
	WeekendFlag          bool               `json:"weekendFlag"`
	Entries              []JournalEntryLine `json:"entries"`
}

// RatioMetric is one named ratio with an optional prior-period baseline.
type RatioMetric struct {
	Name         string   `json:"name"`
	Numerator    float64  `json:"numerator"`
	Denominator  float64  `json:"denominator"`
	Prior        *float64 `json:"prior,omitempty"`
	ThresholdPct *float64 `json:"thresholdPct,omitempty"`
}

// RatioParams are the parameters for the ratio analyzer.
type RatioParams struct {
	Metrics []RatioMetric `json:"metrics"`
}

// VarianceSeries is one actual-vs-benchmark series with optional thresholds.
type VarianceSeries struct {
	Name         string   `json:"name"`
	Actual       float64  `json:"actual"`
	Benchmark    float64  `json:"benchmark"`
	ThresholdAbs *float64 `json:"thresholdAbs,omitempty"`
	ThresholdPct *float64 `json:"thresholdPct,omitempty"`
}

// VarianceParams are the parameters for the variance analyzer.
type VarianceParams struct {
	Series []VarianceSeries `json:"series"`
}

// DuplicateTransaction is one transaction row for duplicate detection.
type DuplicateTransaction struct {
	ID           string  `json:"id"`
	Amount       float64 `json:"amount"`
	Date         string  `json:"date"`
	Reference    string  `json:"reference,omitempty"`
	Counterparty string  `json:"counterparty,omitempty"`
}

// Match fields accepted in DuplicateParams.MatchOn.
const (
	MatchAmount       = "amount"
	MatchDate         = "date"
	MatchReference    = "reference"
	MatchCounterparty = "counterparty"
)

// DuplicateParams are the parameters for the duplicate transaction analyzer.
// MatchOn is an ordered subset of the match fields forming the grouping key;
// Tolerance, when positive, is the amount bucketing width.
type DuplicateParams struct {
	Transactions []DuplicateTransaction `json:"transactions"`
	MatchOn      []string               `json:"matchOn"`
	Tolerance    *float64               `json:"tolerance,omitempty"`
}

// BenfordParams are the parameters for the Benford's-law digit analyzer.
type BenfordParams struct {
	Figures []float64 `json:"figures"`
}

// AnalyticsSummary is the output envelope shared by all procedures.
type AnalyticsSummary struct {
	Kind        AnalysisKind       `json:"kind"`
	DatasetHash string             `json:"datasetHash"`
	Parameters  map[string]any     `json:"parameters"`
	Totals      map[string]float64 `json:"totals"`
	Details     any                `json:"details"`
}

// AnalyticsException is one scored risk finding tied back to a source record.
type AnalyticsException struct {
	RecordRef string  `json:"recordRef"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
}

// AnalyticsResult pairs a summary with its ranked exception list.
// Invariant: Summary.Totals["exceptions"] == len(Exceptions).
type AnalyticsResult struct {
	Summary    AnalyticsSummary     `json:"summary"`
	Exceptions []AnalyticsException `json:"exceptions"`
}

// MaxExceptionScore returns the highest exception score in the result,
// or 0 when there are none. Used as a screening variable.
func (r *AnalyticsResult) MaxExceptionScore() float64 {
	max := 0.0
	for _, e := range r.Exceptions {
		if e.Score > max {
			max = e.Score
		}
	}
	return max
}

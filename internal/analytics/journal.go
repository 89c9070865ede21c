package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Risk flags raised by the journal entry heuristics.
const (
	FlagLatePosting     = "LATE_POSTING"
	FlagWeekendEntry    = "WEEKEND_ENTRY"
	FlagRoundAmount     = "ROUND_AMOUNT"
	FlagManualReference = "MANUAL_REFERENCE"
)

// Additive heuristic weights. An entry can accumulate all four (max 100).
const (
	scoreLatePosting     = 40
	scoreWeekendEntry    = 25
	scoreRoundAmount     = 20
	scoreManualReference = 15
)

const (
	// journalExceptionFloor is the minimum accumulated score for an entry
	// to be reported as an exception.
	journalExceptionFloor = 50

	// journalSampleSize caps the riskiest-flagged sample.
	journalSampleSize = 25
)

// JournalRisk is one analyzed entry with its flags and accumulated score.
type JournalRisk struct {
	ID         string   `json:"id"`
	Account    string   `json:"account"`
	Amount     float64  `json:"amount"`
	PostedAt   string   `json:"postedAt"`
	CreatedAt  string   `json:"createdAt"`
	CreatedBy  *string  `json:"createdBy"`
	ApprovedBy *string  `json:"approvedBy"`
	Flags      []string `json:"flags"`
	Score      float64  `json:"score"`
}

func runJournal(p *domain.JournalParams, datasetHash string) (*domain.AnalyticsResult, error) {
	if p.LatePostingDays < 0 {
		return nil, fmt.Errorf("latePostingDays must be non-negative, got %d", p.LatePostingDays)
	}
	if p.RoundAmountThreshold <= 0 {
		return nil, fmt.Errorf("roundAmountThreshold must be positive, got %v", p.RoundAmountThreshold)
	}

	periodEnd, err := parseTimestamp(p.PeriodEnd)
	if err != nil {
		return nil, fmt.Errorf("invalid periodEnd: %w", err)
	}
	lateCutoff := periodEnd.Add(time.Duration(p.LatePostingDays) * 24 * time.Hour)

	results := make([]JournalRisk, 0, len(p.Entries))
	for _, entry := range p.Entries {
		postedAt, err := parseTimestamp(entry.PostedAt)
		if err != nil {
			return nil, fmt.Errorf("entry %s: invalid postedAt: %w", entry.ID, err)
		}

		createdAt := postedAt
		createdAtRaw := entry.PostedAt
		if entry.CreatedAt != "" {
			createdAt, err = parseTimestamp(entry.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("entry %s: invalid createdAt: %w", entry.ID, err)
			}
			createdAtRaw = entry.CreatedAt
		}

		flags := []string{}
		score := 0.0

		if postedAt.After(lateCutoff) {
			flags = append(flags, FlagLatePosting)
			score += scoreLatePosting
		}

		if p.WeekendFlag {
			switch createdAt.UTC().Weekday() {
			case time.Saturday, time.Sunday:
				flags = append(flags, FlagWeekendEntry)
				score += scoreWeekendEntry
			}
		}

		absAmount := math.Abs(entry.Amount)
		if absAmount >= p.RoundAmountThreshold && math.Mod(absAmount, p.RoundAmountThreshold) == 0 {
			flags = append(flags, FlagRoundAmount)
			score += scoreRoundAmount
		}

		if entry.Description != "" && strings.Contains(strings.ToLower(entry.Description), "manual") {
			flags = append(flags, FlagManualReference)
			score += scoreManualReference
		}

		results = append(results, JournalRisk{
			ID:         entry.ID,
			Account:    entry.Account,
			Amount:     entry.Amount,
			PostedAt:   entry.PostedAt,
			CreatedAt:  createdAtRaw,
			CreatedBy:  optString(entry.CreatedBy),
			ApprovedBy: optString(entry.ApprovedBy),
			Flags:      flags,
			Score:      score,
		})
	}

	flagged := 0
	for _, r := range results {
		if len(r.Flags) > 0 {
			flagged++
		}
	}

	// Rank descending by score; ties keep original order.
	ordered := make([]JournalRisk, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	sample := []JournalRisk{}
	for _, r := range ordered {
		if len(r.Flags) == 0 {
			continue
		}
		sample = append(sample, r)
		if len(sample) == journalSampleSize {
			break
		}
	}

	exceptions := []domain.AnalyticsException{}
	for _, r := range ordered {
		if r.Score < journalExceptionFloor {
			continue
		}
		reason := strings.Join(r.Flags, ", ")
		if reason == "" {
			reason = "High risk scoring"
		}
		exceptions = append(exceptions, domain.AnalyticsException{
			RecordRef: r.ID,
			Score:     r.Score,
			Reason:    reason,
		})
	}

	summary := domain.AnalyticsSummary{
		Kind:        domain.KindJournalEntry,
		DatasetHash: datasetHash,
		Parameters: map[string]any{
			"periodEnd":            p.PeriodEnd,
			"latePostingDays":      p.LatePostingDays,
			"roundAmountThreshold": p.RoundAmountThreshold,
			"weekendFlag":          p.WeekendFlag,
		},
		Totals: map[string]float64{
			"entries":    float64(len(p.Entries)),
			"flagged":    float64(flagged),
			"exceptions": float64(len(exceptions)),
		},
		Details: map[string]any{
			"riskScores": ordered,
			"sample":     sample,
		},
	}

	return &domain.AnalyticsResult{Summary: summary, Exceptions: exceptions}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTimestamp accepts RFC 3339 timestamps and date-only values; values
// without an offset are read as UTC.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

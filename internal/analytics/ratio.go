package analytics

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// RatioRow is one annotated metric in the ratio analysis details.
// Nil pointers render as JSON null for values that were not computable.
type RatioRow struct {
	Name      string   `json:"name"`
	Ratio     *float64 `json:"ratio"`
	Prior     *float64 `json:"prior"`
	DeltaPct  *float64 `json:"deltaPct"`
	Threshold *float64 `json:"threshold"`
	Flagged   bool     `json:"flagged"`
}

func runRatio(p *domain.RatioParams, datasetHash string) (*domain.AnalyticsResult, error) {
	rows := make([]RatioRow, 0, len(p.Metrics))
	exceptions := []domain.AnalyticsException{}

	for _, metric := range p.Metrics {
		var ratio *float64
		if metric.Denominator != 0 {
			v := metric.Numerator / metric.Denominator
			ratio = &v
		}

		var deltaPct *float64
		if metric.Prior != nil && *metric.Prior != 0 && ratio != nil {
			v := (*ratio - *metric.Prior) / *metric.Prior * 100
			deltaPct = &v
		}

		flagged := deltaPct != nil && metric.ThresholdPct != nil &&
			math.Abs(*deltaPct) > *metric.ThresholdPct

		rows = append(rows, RatioRow{
			Name:      metric.Name,
			Ratio:     ratio,
			Prior:     metric.Prior,
			DeltaPct:  deltaPct,
			Threshold: metric.ThresholdPct,
			Flagged:   flagged,
		})

		if flagged {
			exceptions = append(exceptions, domain.AnalyticsException{
				RecordRef: metric.Name,
				Score:     math.Abs(*deltaPct),
				Reason: fmt.Sprintf("Variance %s%% exceeds threshold %s%%",
					formatOptFixed(deltaPct, 2, "0"),
					formatOpt(metric.ThresholdPct, "n/a")),
			})
		}
	}

	summary := domain.AnalyticsSummary{
		Kind:        domain.KindRatio,
		DatasetHash: datasetHash,
		Parameters:  map[string]any{},
		Totals: map[string]float64{
			"metrics":    float64(len(rows)),
			"exceptions": float64(len(exceptions)),
		},
		Details: map[string]any{"metrics": rows},
	}

	return &domain.AnalyticsResult{Summary: summary, Exceptions: exceptions}, nil
}

func formatOptFixed(v *float64, digits int, fallback string) string {
	if v == nil {
		return fallback
	}
	return fixed(*v, digits)
}

func formatOpt(v *float64, fallback string) string {
	if v == nil {
		return fallback
	}
	return compact(*v)
}

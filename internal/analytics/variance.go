package analytics

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// varianceReason is the fixed exception reason for flagged series.
const varianceReason = "Variance exceeds defined threshold"

// VarianceRow is one annotated series in the variance analysis details.
type VarianceRow struct {
	Name         string   `json:"name"`
	Actual       float64  `json:"actual"`
	Benchmark    float64  `json:"benchmark"`
	Delta        float64  `json:"delta"`
	PctDelta     *float64 `json:"pctDelta"`
	ThresholdAbs *float64 `json:"thresholdAbs"`
	ThresholdPct *float64 `json:"thresholdPct"`
	Flagged      bool     `json:"flagged"`
}

func runVariance(p *domain.VarianceParams, datasetHash string) (*domain.AnalyticsResult, error) {
	rows := make([]VarianceRow, 0, len(p.Series))
	exceptions := []domain.AnalyticsException{}

	for _, series := range p.Series {
		delta := series.Actual - series.Benchmark

		var pctDelta *float64
		if series.Benchmark != 0 {
			v := delta / series.Benchmark * 100
			pctDelta = &v
		}

		exceedsAbs := series.ThresholdAbs != nil && math.Abs(delta) > *series.ThresholdAbs
		exceedsPct := series.ThresholdPct != nil && pctDelta != nil &&
			math.Abs(*pctDelta) > *series.ThresholdPct
		flagged := exceedsAbs || exceedsPct

		rows = append(rows, VarianceRow{
			Name:         series.Name,
			Actual:       series.Actual,
			Benchmark:    series.Benchmark,
			Delta:        delta,
			PctDelta:     pctDelta,
			ThresholdAbs: series.ThresholdAbs,
			ThresholdPct: series.ThresholdPct,
			Flagged:      flagged,
		})

		if flagged {
			absPct := 0.0
			if pctDelta != nil {
				absPct = math.Abs(*pctDelta)
			}
			exceptions = append(exceptions, domain.AnalyticsException{
				RecordRef: series.Name,
				Score:     math.Max(math.Abs(delta), absPct),
				Reason:    varianceReason,
			})
		}
	}

	summary := domain.AnalyticsSummary{
		Kind:        domain.KindVariance,
		DatasetHash: datasetHash,
		Parameters:  map[string]any{},
		Totals: map[string]float64{
			"series":     float64(len(rows)),
			"exceptions": float64(len(exceptions)),
		},
		Details: map[string]any{"series": rows},
	}

	return &domain.AnalyticsResult{Summary: summary, Exceptions: exceptions}, nil
}

package analytics

import (
	"fmt"
	"math"
	"strconv"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// benfordThreshold is the fixed variance tolerance: a digit whose observed
// share deviates from the Benford expectation by more than 5 percentage
// points is anomalous.
const benfordThreshold = 0.05

// BenfordRow is the per-digit distribution comparison.
type BenfordRow struct {
	Digit       int     `json:"digit"`
	Observed    int     `json:"observed"`
	ObservedPct float64 `json:"observedPct"`
	ExpectedPct float64 `json:"expectedPct"`
	Variance    float64 `json:"variance"`
}

func runBenford(p *domain.BenfordParams, datasetHash string) (*domain.AnalyticsResult, error) {
	var counts [10]int
	for _, figure := range p.Figures {
		if d := leadingDigit(figure); d > 0 {
			counts[d]++
		}
	}

	total := len(p.Figures)
	rows := make([]BenfordRow, 0, 9)
	exceptions := []domain.AnalyticsException{}

	for digit := 1; digit <= 9; digit++ {
		observedPct := 0.0
		if total > 0 {
			observedPct = float64(counts[digit]) / float64(total)
		}
		expectedPct := math.Log10(1 + 1/float64(digit))
		variance := observedPct - expectedPct

		rows = append(rows, BenfordRow{
			Digit:       digit,
			Observed:    counts[digit],
			ObservedPct: observedPct,
			ExpectedPct: expectedPct,
			Variance:    variance,
		})

		if math.Abs(variance) > benfordThreshold {
			exceptions = append(exceptions, domain.AnalyticsException{
				RecordRef: strconv.Itoa(digit),
				Score:     math.Abs(variance),
				Reason:    fmt.Sprintf("First-digit variance %s exceeds 5%% tolerance", fixed(variance, 4)),
			})
		}
	}

	summary := domain.AnalyticsSummary{
		Kind:        domain.KindBenford,
		DatasetHash: datasetHash,
		Parameters:  map[string]any{},
		Totals: map[string]float64{
			"figures":    float64(total),
			"exceptions": float64(len(exceptions)),
		},
		Details: map[string]any{"rows": rows},
	}

	return &domain.AnalyticsResult{Summary: summary, Exceptions: exceptions}, nil
}

// leadingDigit returns the first significant decimal digit of |v|, or 0 when
// none can be extracted (zero, NaN, infinities). Sub-1 magnitudes are scaled
// up so leading zeros are ignored.
func leadingDigit(v float64) int {
	v = math.Abs(v)
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	for v < 1 {
		v *= 10
	}
	for v >= 10 {
		v /= 10
	}
	return int(v)
}

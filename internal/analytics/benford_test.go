package analytics

import (
	"math"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestBenfordExpectedDistribution(t *testing.T) {
	result, err := runBenford(&domain.BenfordParams{Figures: []float64{123, 456}}, "hash")
	if err != nil {
		t.Fatalf("benford analysis failed: %v", err)
	}

	rows := result.Summary.Details.(map[string]any)["rows"].([]BenfordRow)
	if len(rows) != 9 {
		t.Fatalf("expected 9 digit rows, got %d", len(rows))
	}

	// log10(2) for digit 1, log10(1.5) for digit 2, etc.
	if math.Abs(rows[0].ExpectedPct-0.30103) > 0.00001 {
		t.Errorf("digit 1 expectedPct: got %v, want ~0.30103", rows[0].ExpectedPct)
	}
	if math.Abs(rows[8].ExpectedPct-0.04576) > 0.00001 {
		t.Errorf("digit 9 expectedPct: got %v, want ~0.04576", rows[8].ExpectedPct)
	}
}

func TestBenfordUniformDigitsFlagDigitOne(t *testing.T) {
	// ~1000 figures uniformly distributed in leading digit: digit 1 observes
	// ~11.1% against an expected 30.1%, far past the 5% tolerance.
	figures := make([]float64, 0, 999)
	for digit := 1; digit <= 9; digit++ {
		for i := 0; i < 111; i++ {
			figures = append(figures, float64(digit)*100+float64(i))
		}
	}

	result, err := runBenford(&domain.BenfordParams{Figures: figures}, "hash")
	if err != nil {
		t.Fatalf("benford analysis failed: %v", err)
	}

	var digitOne *domain.AnalyticsException
	for i := range result.Exceptions {
		if result.Exceptions[i].RecordRef == "1" {
			digitOne = &result.Exceptions[i]
		}
	}

	if digitOne == nil {
		t.Fatal("digit 1 must be anomalous for a uniform distribution")
	}
	if math.Abs(digitOne.Score-0.19) > 0.01 {
		t.Errorf("digit 1 variance: got %v, want ~0.19", digitOne.Score)
	}
}

func TestBenfordSkipsUnextractableFigures(t *testing.T) {
	result, err := runBenford(&domain.BenfordParams{
		Figures: []float64{0, 123, math.NaN(), math.Inf(1), -456},
	}, "hash")
	if err != nil {
		t.Fatalf("figures with no leading digit must be skipped, not errored: %v", err)
	}

	rows := result.Summary.Details.(map[string]any)["rows"].([]BenfordRow)
	observed := 0
	for _, row := range rows {
		observed += row.Observed
	}
	if observed != 2 {
		t.Errorf("expected 2 counted figures (123, -456), got %d", observed)
	}
	// Totals still count every submitted figure.
	if got := result.Summary.Totals["figures"]; got != 5 {
		t.Errorf("expected figures total 5, got %v", got)
	}
}

func TestBenfordEmptyInput(t *testing.T) {
	result, err := runBenford(&domain.BenfordParams{}, "hash")
	if err != nil {
		t.Fatalf("empty input must not error: %v", err)
	}

	rows := result.Summary.Details.(map[string]any)["rows"].([]BenfordRow)
	for _, row := range rows {
		if row.ObservedPct != 0 {
			t.Errorf("digit %d: expected observedPct 0 with no figures, got %v", row.Digit, row.ObservedPct)
		}
	}
}

func TestLeadingDigit(t *testing.T) {
	cases := []struct {
		in   float64
		want int
	}{
		{123.45, 1},
		{-987, 9},
		{0.005, 5},
		{0.0301, 3},
		{7, 7},
		{0, 0},
		{math.NaN(), 0},
		{math.Inf(-1), 0},
	}

	for _, tc := range cases {
		if got := leadingDigit(tc.in); got != tc.want {
			t.Errorf("leadingDigit(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

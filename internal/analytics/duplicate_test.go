package analytics

import (
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestDuplicateToleranceBucketing(t *testing.T) {
	params := &domain.DuplicateParams{
		Transactions: []domain.DuplicateTransaction{
			// 100.04/0.1 rounds to bucket 1000, as does 99.98/0.1: the two
			// near-equal amounts collapse to the same 100.0 bucket.
			{ID: "tx-1", Amount: 100.04, Date: "2025-01-10"},
			{ID: "tx-2", Amount: 99.98, Date: "2025-01-11"},
		},
		MatchOn:   []string{domain.MatchAmount},
		Tolerance: f64(0.1),
	}

	result, err := runDuplicate(params, "hash")
	if err != nil {
		t.Fatalf("duplicate analysis failed: %v", err)
	}

	if got := result.Summary.Totals["duplicateGroups"]; got != 1 {
		t.Fatalf("expected 1 duplicate group, got %v", got)
	}
	if len(result.Exceptions) != 2 {
		t.Fatalf("expected 2 exceptions, got %d", len(result.Exceptions))
	}
	for _, exc := range result.Exceptions {
		if exc.Score != 2 {
			t.Errorf("%s: expected score 2 (group size), got %v", exc.RecordRef, exc.Score)
		}
		if exc.Reason != "Duplicate pattern across 2 entries" {
			t.Errorf("unexpected reason: %q", exc.Reason)
		}
	}
}

func TestDuplicateExactMatchWithoutTolerance(t *testing.T) {
	params := &domain.DuplicateParams{
		Transactions: []domain.DuplicateTransaction{
			{ID: "tx-1", Amount: 250.00, Date: "2025-01-10", Counterparty: "ACME"},
			{ID: "tx-2", Amount: 250.004, Date: "2025-01-10", Counterparty: "ACME"},
			{ID: "tx-3", Amount: 251.00, Date: "2025-01-10", Counterparty: "ACME"},
		},
		MatchOn: []string{domain.MatchAmount, domain.MatchDate, domain.MatchCounterparty},
	}

	result, err := runDuplicate(params, "hash")
	if err != nil {
		t.Fatalf("duplicate analysis failed: %v", err)
	}

	// 250.004 rounds to 250.00, matching tx-1; tx-3 stays alone.
	if got := result.Summary.Totals["duplicateGroups"]; got != 1 {
		t.Errorf("expected 1 duplicate group, got %v", got)
	}
	if len(result.Exceptions) != 2 {
		t.Errorf("expected 2 exceptions, got %d", len(result.Exceptions))
	}
}

func TestDuplicateMissingOptionalFieldGroupsAsNull(t *testing.T) {
	params := &domain.DuplicateParams{
		Transactions: []domain.DuplicateTransaction{
			{ID: "tx-1", Amount: 75, Date: "2025-01-10"},
			{ID: "tx-2", Amount: 80, Date: "2025-01-11"},
		},
		MatchOn: []string{domain.MatchReference},
	}

	result, err := runDuplicate(params, "hash")
	if err != nil {
		t.Fatalf("duplicate analysis failed: %v", err)
	}

	// Both lack a reference: null keys collide into one group of 2.
	groups := result.Summary.Details.(map[string]any)["groups"].([]DuplicateGroup)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].Key != "[null]" {
		t.Errorf("expected key [null], got %s", groups[0].Key)
	}
}

func TestDuplicateGroupOrderFirstSeen(t *testing.T) {
	params := &domain.DuplicateParams{
		Transactions: []domain.DuplicateTransaction{
			{ID: "tx-1", Amount: 10, Date: "2025-01-01"},
			{ID: "tx-2", Amount: 20, Date: "2025-01-01"},
			{ID: "tx-3", Amount: 10, Date: "2025-01-01"},
			{ID: "tx-4", Amount: 20, Date: "2025-01-01"},
		},
		MatchOn: []string{domain.MatchAmount},
	}

	result, _ := runDuplicate(params, "hash")

	groups := result.Summary.Details.(map[string]any)["groups"].([]DuplicateGroup)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Transactions[0].ID != "tx-1" || groups[1].Transactions[0].ID != "tx-2" {
		t.Error("groups must keep first-seen order")
	}
}

func TestDuplicateValidation(t *testing.T) {
	t.Run("EmptyMatchOn", func(t *testing.T) {
		params := &domain.DuplicateParams{
			Transactions: []domain.DuplicateTransaction{{ID: "tx-1", Amount: 1, Date: "2025-01-01"}},
		}
		if _, err := runDuplicate(params, "hash"); err == nil {
			t.Error("expected error for empty matchOn")
		}
	})

	t.Run("UnknownField", func(t *testing.T) {
		params := &domain.DuplicateParams{
			Transactions: []domain.DuplicateTransaction{{ID: "tx-1", Amount: 1, Date: "2025-01-01"}},
			MatchOn:      []string{"memo"},
		}
		if _, err := runDuplicate(params, "hash"); err == nil {
			t.Error("expected error for unknown matchOn field")
		}
	})
}

func TestNormalizeAmount(t *testing.T) {
	cases := []struct {
		amount    float64
		tolerance *float64
		want      float64
	}{
		{100.04, f64(0.1), 100.0},
		{100.06, f64(0.1), 100.1},
		{250.004, nil, 250.0},
		{250.006, nil, 250.01},
		{99.95, f64(5), 100.0},
	}

	for _, tc := range cases {
		if got := normalizeAmount(tc.amount, tc.tolerance); got != tc.want {
			t.Errorf("normalizeAmount(%v, %v) = %v, want %v", tc.amount, tc.tolerance, got, tc.want)
		}
	}
}

package analytics

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DuplicateGroup is a set of transactions sharing one composite key.
type DuplicateGroup struct {
	Key          string                        `json:"key"`
	Transactions []domain.DuplicateTransaction `json:"transactions"`
}

func runDuplicate(p *domain.DuplicateParams, datasetHash string) (*domain.AnalyticsResult, error) {
	if len(p.MatchOn) == 0 {
		return nil, fmt.Errorf("matchOn must name at least one field")
	}
	for _, field := range p.MatchOn {
		switch field {
		case domain.MatchAmount, domain.MatchDate, domain.MatchReference, domain.MatchCounterparty:
		default:
			return nil, fmt.Errorf("unknown matchOn field: %q", field)
		}
	}

	// Groups keep first-seen key order so output is stable across runs.
	groups := make(map[string][]domain.DuplicateTransaction)
	keyOrder := []string{}

	for _, tx := range p.Transactions {
		bucketed := normalizeAmount(tx.Amount, p.Tolerance)

		keyParts := make([]any, 0, len(p.MatchOn))
		for _, field := range p.MatchOn {
			switch field {
			case domain.MatchAmount:
				keyParts = append(keyParts, bucketed)
			case domain.MatchDate:
				keyParts = append(keyParts, optKeyPart(tx.Date))
			case domain.MatchReference:
				keyParts = append(keyParts, optKeyPart(tx.Reference))
			case domain.MatchCounterparty:
				keyParts = append(keyParts, optKeyPart(tx.Counterparty))
			}
		}

		encoded, err := json.Marshal(keyParts)
		if err != nil {
			return nil, fmt.Errorf("failed to encode grouping key: %w", err)
		}
		key := string(encoded)

		if _, seen := groups[key]; !seen {
			keyOrder = append(keyOrder, key)
		}
		groups[key] = append(groups[key], tx)
	}

	duplicateGroups := []DuplicateGroup{}
	exceptions := []domain.AnalyticsException{}
	for _, key := range keyOrder {
		members := groups[key]
		if len(members) < 2 {
			continue
		}
		duplicateGroups = append(duplicateGroups, DuplicateGroup{
			Key:          key,
			Transactions: members,
		})

		reason := fmt.Sprintf("Duplicate pattern across %d entries", len(members))
		for _, tx := range members {
			exceptions = append(exceptions, domain.AnalyticsException{
				RecordRef: tx.ID,
				Score:     float64(len(members)),
				Reason:    reason,
			})
		}
	}

	var tolerance any
	if p.Tolerance != nil {
		tolerance = *p.Tolerance
	}

	summary := domain.AnalyticsSummary{
		Kind:        domain.KindDuplicate,
		DatasetHash: datasetHash,
		Parameters: map[string]any{
			"matchOn":   p.MatchOn,
			"tolerance": tolerance,
		},
		Totals: map[string]float64{
			"transactions":    float64(len(p.Transactions)),
			"duplicateGroups": float64(len(duplicateGroups)),
			"exceptions":      float64(len(exceptions)),
		},
		Details: map[string]any{"groups": duplicateGroups},
	}

	return &domain.AnalyticsResult{Summary: summary, Exceptions: exceptions}, nil
}

// normalizeAmount rounds the amount to 2 decimals, or buckets it to the
// nearest multiple of tolerance when a positive tolerance is given. Amounts
// within half a tolerance band of each other land in the same bucket.
func normalizeAmount(amount float64, tolerance *float64) float64 {
	if tolerance == nil || *tolerance <= 0 {
		return round2(amount)
	}
	buckets := math.Round(amount / *tolerance)
	return round2(buckets * *tolerance)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// optKeyPart substitutes JSON null for a missing optional field.
func optKeyPart(s string) any {
	if s == "" {
		return nil
	}
	return s
}

package analytics

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// EngineVersion identifies the analytics engine in run metadata.
const EngineVersion = "kestrel-1.0"

// ErrUnsupportedKind is returned when Run is called with a kind outside the
// closed enumeration.
var ErrUnsupportedKind = errors.New("unsupported analysis kind")

// Run fingerprints the raw parameters once, routes to the procedure matching
// kind, and returns the summary/exceptions pair. Parameters may be the typed
// struct for the kind or any JSON-shaped value (e.g., a decoded request
// body); the fingerprint is always computed over the value as it arrived,
// before any coercion or normalization.
func Run(kind domain.AnalysisKind, params any) (*domain.AnalyticsResult, error) {
	datasetHash, err := Fingerprint(params)
	if err != nil {
		return nil, err
	}

	switch kind {
	case domain.KindJournalEntry:
		p, err := coerce[domain.JournalParams](params)
		if err != nil {
			return nil, err
		}
		return runJournal(p, datasetHash)

	case domain.KindRatio:
		p, err := coerce[domain.RatioParams](params)
		if err != nil {
			return nil, err
		}
		return runRatio(p, datasetHash)

	case domain.KindVariance:
		p, err := coerce[domain.VarianceParams](params)
		if err != nil {
			return nil, err
		}
		return runVariance(p, datasetHash)

	case domain.KindDuplicate:
		p, err := coerce[domain.DuplicateParams](params)
		if err != nil {
			return nil, err
		}
		return runDuplicate(p, datasetHash)

	case domain.KindBenford:
		p, err := coerce[domain.BenfordParams](params)
		if err != nil {
			return nil, err
		}
		return runBenford(p, datasetHash)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
}

// coerce accepts the typed parameter struct directly or converts a
// JSON-shaped value into it.
func coerce[T any](params any) (*T, error) {
	switch v := params.(type) {
	case *T:
		return v, nil
	case T:
		return &v, nil
	}

	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	return &out, nil
}

// fixed formats v with exactly n fractional digits. Rounding is Go's
// round-half-to-even.
func fixed(v float64, n int) string {
	return strconv.FormatFloat(v, 'f', n, 64)
}

// compact formats v in its shortest round-trip decimal form.
func compact(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Package history provides run-frequency lookups for screening rules.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Service answers how often an engagement has run analyses recently.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new history service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// RecordRun bumps the cached run counter for an engagement. The counter is a
// fast approximation; the repository remains the source of truth.
func (s *Service) RecordRun(ctx context.Context, tenantID, engagementID string, windowSecs int) {
	if s.cache == nil || tenantID == "" || engagementID == "" {
		return
	}
	// Counter errors are non-fatal: the repo fallback still works.
	_, _ = s.cache.IncrementCounter(ctx, tenantID, counterKey(engagementID), time.Duration(windowSecs)*time.Second)
}

// GetRunCount returns the number of runs recorded for an engagement within a
// time window. The cached counter is consulted first; on a miss the repository
// is queried. This is the RunCountGetter signature expected by the screening
// engine.
func (s *Service) GetRunCount(ctx context.Context, tenantID, engagementID string, windowSecs int) (int64, error) {
	if tenantID == "" || engagementID == "" {
		return 0, fmt.Errorf("tenantID and engagementID are required")
	}

	if s.cache != nil {
		if count, found, err := s.cache.GetCounter(ctx, tenantID, counterKey(engagementID)); err == nil && found {
			return count, nil
		}
	}

	since := time.Now().Add(-time.Duration(windowSecs) * time.Second)

	if s.repo != nil {
		count, err := s.repo.CountRunsSince(ctx, tenantID, engagementID, since)
		if err != nil {
			return 0, fmt.Errorf("failed to count runs: %w", err)
		}
		return count, nil
	}

	return 0, fmt.Errorf("no data source available")
}

// GetRunCountGetter returns a RunCountGetter function for the screening engine.
func (s *Service) GetRunCountGetter() func(ctx context.Context, tenantID, engagementID string, windowSecs int) (int64, error) {
	return s.GetRunCount
}

func counterKey(engagementID string) string {
	return fmt.Sprintf("runs:%s", engagementID)
}

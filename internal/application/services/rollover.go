package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chartdeck.aero/cli/internal/core/domain"
	"chartdeck.aero/cli/internal/core/ports"
)

// rolloverAttempts is how many times the version oracle is asked before the
// check is deferred to the next cold start.
const rolloverAttempts = 3

// RolloverCoordinator reconciles the locally recorded AIRAC cycle with the
// backend's authoritative one. It runs once per cold start and may be
// retried on later triggers; an unreachable oracle is non-fatal and leaves
// the last-known-good cycle in place.
type RolloverCoordinator struct {
	cache  ports.CacheStore
	oracle ports.VersionOracle
	logger *slog.Logger

	// backoffBase is the unit for the 2^attempt backoff between oracle
	// attempts. Overridden in tests.
	backoffBase time.Duration
}

// NewRolloverCoordinator creates the coordinator.
func NewRolloverCoordinator(cache ports.CacheStore, oracle ports.VersionOracle, logger *slog.Logger) *RolloverCoordinator {
	return &RolloverCoordinator{
		cache:       cache,
		oracle:      oracle,
		logger:      logger,
		backoffBase: time.Second,
	}
}

// Run performs the rollover check. The returned tag is the cycle that is
// current after the check (the old one when the oracle was unreachable).
// Oracle failure after all attempts is reported in the error for logging,
// but callers treat it as non-fatal: the cache keeps serving the last
// known-good cycle.
func (r *RolloverCoordinator) Run(ctx context.Context) (domain.VersionTag, error) {
	local, err := r.cache.CurrentVersion()
	if err != nil {
		return "", fmt.Errorf("read local AIRAC cycle: %w", err)
	}

	info, err := r.fetchWithRetry(ctx)
	if err != nil {
		r.logger.Warn("AIRAC cycle check failed, keeping last known cycle",
			"local", local.String(), "error", err)
		return local, fmt.Errorf("fetch current AIRAC cycle: %w", err)
	}

	switch {
	case local.IsZero():
		// First run: record the remote cycle, nothing to evict.
		if err := r.cache.SwapVersion(ctx, info.Tag); err != nil {
			return local, fmt.Errorf("record initial AIRAC cycle: %w", err)
		}
		r.logger.Info("recorded initial AIRAC cycle", "cycle", info.Tag.String(),
			"effective", info.EffectiveDate)
		return info.Tag, nil

	case local == info.Tag:
		r.logger.Debug("AIRAC cycle unchanged", "cycle", local.String())
		return local, nil

	default:
		// Rollover: the swap evicts the outgoing cycle's entries before the
		// pointer flips, so readers never see a mixed epoch.
		if err := r.cache.SwapVersion(ctx, info.Tag); err != nil {
			return local, fmt.Errorf("roll over %s -> %s: %w", local, info.Tag, err)
		}
		r.logger.Info("rolled over AIRAC cycle",
			"from", local.String(), "to", info.Tag.String(), "effective", info.EffectiveDate)
		return info.Tag, nil
	}
}

// fetchWithRetry asks the oracle up to rolloverAttempts times with
// exponential backoff (2^attempt units), bounded by ctx's deadline.
func (r *RolloverCoordinator) fetchWithRetry(ctx context.Context) (domain.VersionInfo, error) {
	var lastErr error
	for attempt := 0; attempt < rolloverAttempts; attempt++ {
		if attempt > 0 {
			backoff := r.backoffBase << attempt
			select {
			case <-ctx.Done():
				return domain.VersionInfo{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		info, err := r.oracle.FetchCurrentVersion(ctx)
		if err == nil {
			return info, nil
		}
		lastErr = err
		r.logger.Debug("AIRAC cycle fetch attempt failed",
			"attempt", attempt+1, "error", err)
	}
	return domain.VersionInfo{}, fmt.Errorf("after %d attempts: %w", rolloverAttempts, lastErr)
}

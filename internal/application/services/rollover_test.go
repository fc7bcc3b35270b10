package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartdeck.aero/cli/internal/core/domain"
	"chartdeck.aero/cli/internal/infrastructure/cachestore"
)

// scriptedVersionOracle returns the configured responses in order; the last
// one repeats.
type scriptedVersionOracle struct {
	responses []versionResponse
	calls     int
}

type versionResponse struct {
	info domain.VersionInfo
	err  error
}

func (o *scriptedVersionOracle) FetchCurrentVersion(ctx context.Context) (domain.VersionInfo, error) {
	idx := o.calls
	if idx >= len(o.responses) {
		idx = len(o.responses) - 1
	}
	o.calls++
	r := o.responses[idx]
	return r.info, r.err
}

func remoteCycle(tag string) versionResponse {
	return versionResponse{info: domain.VersionInfo{
		Tag:           domain.VersionTag(tag),
		EffectiveDate: time.Now(),
	}}
}

func openTestCache(t *testing.T) *cachestore.BadgerStore {
	t.Helper()
	store, err := cachestore.Open(cachestore.InMemoryOptions())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestCoordinator(cache *cachestore.BadgerStore, oracle *scriptedVersionOracle) *RolloverCoordinator {
	r := NewRolloverCoordinator(cache, oracle, discardLogger())
	r.backoffBase = time.Millisecond
	return r
}

func TestRolloverFirstRunRecordsRemoteCycle(t *testing.T) {
	cache := openTestCache(t)
	oracle := &scriptedVersionOracle{responses: []versionResponse{remoteCycle("2509")}}

	tag, err := newTestCoordinator(cache, oracle).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.VersionTag("2509"), tag)
	current, err := cache.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, domain.VersionTag("2509"), current)
}

func TestRolloverUnchangedCycleIsNoOp(t *testing.T) {
	cache := openTestCache(t)
	require.NoError(t, cache.SwapVersion(context.Background(), "2509"))
	key := domain.CacheKey{Tag: "2509", Category: domain.CategoryCharts, ID: "EDDF"}
	require.NoError(t, cache.Store(key, []byte("chart-index")))
	oracle := &scriptedVersionOracle{responses: []versionResponse{remoteCycle("2509")}}

	tag, err := newTestCoordinator(cache, oracle).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.VersionTag("2509"), tag)
	payload, err := cache.Load(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("chart-index"), payload)
}

func TestRolloverEvictsOutgoingCycle(t *testing.T) {
	cache := openTestCache(t)
	require.NoError(t, cache.SwapVersion(context.Background(), "2509"))
	oldKey := domain.CacheKey{Tag: "2509", Category: domain.CategoryCharts, ID: "EDDF"}
	require.NoError(t, cache.Store(oldKey, []byte("old-chart")))
	oracle := &scriptedVersionOracle{responses: []versionResponse{remoteCycle("2510")}}

	tag, err := newTestCoordinator(cache, oracle).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.VersionTag("2510"), tag)

	current, err := cache.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, domain.VersionTag("2510"), current)

	payload, err := cache.Load(oldKey)
	require.NoError(t, err)
	assert.Nil(t, payload, "outgoing cycle entries must be gone")
	count, err := cache.EntryCount("2509")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRolloverOracleFailureKeepsLocalCycle(t *testing.T) {
	cache := openTestCache(t)
	require.NoError(t, cache.SwapVersion(context.Background(), "2509"))
	key := domain.CacheKey{Tag: "2509", Category: domain.CategoryAirports, ID: "index"}
	require.NoError(t, cache.Store(key, []byte("airports")))
	oracle := &scriptedVersionOracle{responses: []versionResponse{
		{err: &domain.NetworkError{Err: fmt.Errorf("unreachable")}},
	}}

	tag, err := newTestCoordinator(cache, oracle).Run(context.Background())

	// The error is reported for logging, but the local cycle keeps serving.
	require.Error(t, err)
	assert.Equal(t, domain.VersionTag("2509"), tag)
	assert.Equal(t, 3, oracle.calls, "oracle is retried three times")

	payload, err := cache.Load(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("airports"), payload)
}

func TestRolloverRetriesThenSucceeds(t *testing.T) {
	cache := openTestCache(t)
	oracle := &scriptedVersionOracle{responses: []versionResponse{
		{err: &domain.ServerError{Code: 503}},
		{err: &domain.NetworkError{Err: fmt.Errorf("timeout")}},
		remoteCycle("2510"),
	}}

	tag, err := newTestCoordinator(cache, oracle).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.VersionTag("2510"), tag)
	assert.Equal(t, 3, oracle.calls)
}

func TestRolloverHonorsContextDuringBackoff(t *testing.T) {
	cache := openTestCache(t)
	oracle := &scriptedVersionOracle{responses: []versionResponse{
		{err: &domain.NetworkError{Err: fmt.Errorf("unreachable")}},
	}}
	r := NewRolloverCoordinator(cache, oracle, discardLogger())
	r.backoffBase = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, oracle.calls, "backoff must not outlive the context")
}

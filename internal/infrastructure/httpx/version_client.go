package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"chartdeck.aero/cli/internal/core/domain"
	"chartdeck.aero/cli/internal/core/ports"
)

// VersionClient queries the backend for the authoritative current AIRAC
// cycle. The call is unauthenticated: the cycle is public information.
type VersionClient struct {
	executor *Executor
}

// NewVersionClient creates a version client on top of the given executor.
func NewVersionClient(executor *Executor) *VersionClient {
	return &VersionClient{executor: executor}
}

// FetchCurrentVersion returns the current AIRAC cycle tag and its effective
// date.
func (c *VersionClient) FetchCurrentVersion(ctx context.Context) (domain.VersionInfo, error) {
	resp, err := c.executor.Do(ctx, domain.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/airac/current",
	})
	if err != nil {
		return domain.VersionInfo{}, fmt.Errorf("fetch current AIRAC cycle: %w", err)
	}

	var info domain.VersionInfo
	if err := json.Unmarshal(resp.Body, &info); err != nil {
		return domain.VersionInfo{}, &domain.DecodingError{Err: err}
	}
	if info.Tag.IsZero() {
		return domain.VersionInfo{}, &domain.DecodingError{Err: errors.New("response missing airac_cycle")}
	}
	return info, nil
}

var _ ports.VersionOracle = (*VersionClient)(nil)

package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"chartdeck.aero/cli/internal/core/domain"
	"chartdeck.aero/cli/internal/core/ports"
)

// BillingClient fetches the account's subscription status. Verification
// happens server-side; this client only reads the verdict.
type BillingClient struct {
	executor *Executor
}

// NewBillingClient creates a billing client on top of the given executor.
func NewBillingClient(executor *Executor) *BillingClient {
	return &BillingClient{executor: executor}
}

// Status returns the current subscription state for the signed-in account.
func (c *BillingClient) Status(ctx context.Context) (domain.SubscriptionInfo, error) {
	resp, err := c.executor.Do(ctx, domain.Request{
		Method:        http.MethodGet,
		Path:          "/api/v1/subscription",
		Authenticated: true,
	})
	if err != nil {
		return domain.SubscriptionInfo{}, fmt.Errorf("fetch subscription status: %w", err)
	}

	var info domain.SubscriptionInfo
	if err := json.Unmarshal(resp.Body, &info); err != nil {
		return domain.SubscriptionInfo{}, &domain.DecodingError{Err: err}
	}
	info.LastRefreshed = time.Now()
	return info, nil
}

var _ ports.BillingOracle = (*BillingClient)(nil)

package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartdeck.aero/cli/internal/core/domain"
)

// fakeTokenSource swaps its access token when renewed.
type fakeTokenSource struct {
	token      atomic.Value
	refresh    bool
	renewCalls atomic.Int64
	renewErr   error
	renewedTo  string
}

func newFakeTokenSource(token string, refresh bool) *fakeTokenSource {
	s := &fakeTokenSource{refresh: refresh, renewedTo: "renewed-token"}
	s.token.Store(token)
	return s
}

func (s *fakeTokenSource) AccessToken() string   { return s.token.Load().(string) }
func (s *fakeTokenSource) HasRefreshToken() bool { return s.refresh }

func (s *fakeTokenSource) Renew(ctx context.Context) (domain.Credential, error) {
	s.renewCalls.Add(1)
	if s.renewErr != nil {
		return domain.Credential{}, s.renewErr
	}
	s.token.Store(s.renewedTo)
	return domain.Credential{AccessToken: s.renewedTo}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func fastPolicy() *BackoffPolicy {
	return &BackoffPolicy{MaxRetries: 2, Base: time.Millisecond}
}

func TestDoReturnsSuccessfulResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/airac/current", r.URL.Path)
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"airac_cycle":"2510"}`))
	}))
	defer server.Close()

	e := NewExecutor(server.URL, time.Second, nil, nil, testLogger())
	resp, err := e.Do(context.Background(), domain.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/airac/current",
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `{"airac_cycle":"2510"}`, string(resp.Body))
}

func TestDoAttachesBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tokens := newFakeTokenSource("access-123", false)
	e := NewExecutor(server.URL, time.Second, tokens, nil, testLogger())
	_, err := e.Do(context.Background(), domain.Request{
		Method:        http.MethodGet,
		Path:          "/api/v1/account/me",
		Authenticated: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "Bearer access-123", gotAuth)
}

func TestDoUnauthenticatedRequestSendsNoToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tokens := newFakeTokenSource("access-123", false)
	e := NewExecutor(server.URL, time.Second, tokens, nil, testLogger())
	_, err := e.Do(context.Background(), domain.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/airac/current",
	})

	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestDoWithoutTokenFailsBeforeNetwork(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	tokens := newFakeTokenSource("", false)
	e := NewExecutor(server.URL, time.Second, tokens, nil, testLogger())
	_, err := e.Do(context.Background(), domain.Request{
		Method:        http.MethodGet,
		Path:          "/api/v1/account/me",
		Authenticated: true,
	})

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Zero(t, requests)
}

func TestDoClassifiesUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	e := NewExecutor(server.URL, time.Second, nil, nil, testLogger())
	_, err := e.Do(context.Background(), domain.Request{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/renew",
	})

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestDoClassifiesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	e := NewExecutor(server.URL, time.Second, nil, nil, testLogger())
	_, err := e.Do(context.Background(), domain.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/subscription",
	})

	var srvErr *domain.ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, http.StatusInternalServerError, srvErr.Code)
	assert.Equal(t, "boom", srvErr.Body)
	assert.True(t, domain.IsTransient(err))
}

func TestDoClassifiesNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // deliberately unreachable

	e := NewExecutor(server.URL, time.Second, nil, nil, testLogger())
	_, err := e.Do(context.Background(), domain.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/airac/current",
	})

	var netErr *domain.NetworkError
	assert.ErrorAs(t, err, &netErr)
	assert.True(t, domain.IsTransient(err))
}

func TestDoRetriesGatewayErrors(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	e := NewExecutor(server.URL, time.Second, nil, fastPolicy(), testLogger())
	resp, err := e.Do(context.Background(), domain.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/airac/current",
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, int64(3), requests.Load())
}

func TestDoRetryBudgetExhausted(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	e := NewExecutor(server.URL, time.Second, nil, fastPolicy(), testLogger())
	_, err := e.Do(context.Background(), domain.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/airac/current",
	})

	var srvErr *domain.ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, http.StatusBadGateway, srvErr.Code)
	assert.Equal(t, int64(3), requests.Load(), "initial attempt plus two retries")
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	e := NewExecutor(server.URL, time.Second, nil, fastPolicy(), testLogger())
	_, err := e.Do(context.Background(), domain.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/airac/current",
	})

	require.Error(t, err)
	assert.Equal(t, int64(1), requests.Load())
}

func TestDoReactiveRenewalOn401(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer renewed-token" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := newFakeTokenSource("expired-token", true)
	e := NewExecutor(server.URL, time.Second, tokens, nil, testLogger())
	resp, err := e.Do(context.Background(), domain.Request{
		Method:        http.MethodGet,
		Path:          "/api/v1/account/me",
		Authenticated: true,
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, int64(1), tokens.renewCalls.Load())
}

func TestDoRenewsAtMostOncePer401(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := newFakeTokenSource("expired-token", true)
	e := NewExecutor(server.URL, time.Second, tokens, nil, testLogger())
	_, err := e.Do(context.Background(), domain.Request{
		Method:        http.MethodGet,
		Path:          "/api/v1/account/me",
		Authenticated: true,
	})

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, int64(1), tokens.renewCalls.Load())
	assert.Equal(t, int64(2), requests.Load(), "one original call, one retry after renewal")
}

func TestDoSkipsRenewalWithoutRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := newFakeTokenSource("expired-token", false)
	e := NewExecutor(server.URL, time.Second, tokens, nil, testLogger())
	_, err := e.Do(context.Background(), domain.Request{
		Method:        http.MethodGet,
		Path:          "/api/v1/account/me",
		Authenticated: true,
	})

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Zero(t, tokens.renewCalls.Load())
}

func TestDoEncodesQueryParameters(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	e := NewExecutor(server.URL, time.Second, nil, nil, testLogger())
	_, err := e.Do(context.Background(), domain.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/airac/2510/charts",
		Query:  map[string]string{"icao": "EDDF"},
	})

	require.NoError(t, err)
	assert.Equal(t, "icao=EDDF", gotQuery)
}

func TestDownloadFetchesSignedURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte("pdf-bytes"))
	}))
	defer server.Close()

	e := NewExecutor("https://unused", time.Second, nil, nil, testLogger())
	payload, err := e.Download(context.Background(), server.URL+"/signed/chart.pdf?sig=abc")

	require.NoError(t, err)
	assert.Equal(t, []byte("pdf-bytes"), payload)
}

func TestDownloadReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	e := NewExecutor("https://unused", time.Second, nil, nil, testLogger())
	_, err := e.Download(context.Background(), server.URL+"/signed/chart.pdf")

	var srvErr *domain.ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, http.StatusForbidden, srvErr.Code)
}

func TestBackoffPolicy(t *testing.T) {
	policy := DefaultBackoffPolicy()

	tests := []struct {
		name        string
		status      int
		err         error
		attempt     int
		wantRetry   bool
		wantBackoff time.Duration
	}{
		{"network error first attempt", 0, assert.AnError, 0, true, 500 * time.Millisecond},
		{"network error second attempt doubles", 0, assert.AnError, 1, true, time.Second},
		{"budget exhausted", 0, assert.AnError, 2, false, 0},
		{"bad gateway", 502, nil, 0, true, 500 * time.Millisecond},
		{"service unavailable", 503, nil, 0, true, 500 * time.Millisecond},
		{"gateway timeout", 504, nil, 0, true, 500 * time.Millisecond},
		{"plain 500 is not retried", 500, nil, 0, false, 0},
		{"client error is not retried", 404, nil, 0, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retry, backoff := policy.ShouldRetry(tt.status, tt.err, tt.attempt)
			assert.Equal(t, tt.wantRetry, retry)
			assert.Equal(t, tt.wantBackoff, backoff)
		})
	}
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base string
		path string
		want string
	}{
		{"https://api.chartdeck.aero", "/api/v1/airac/current", "https://api.chartdeck.aero/api/v1/airac/current"},
		{"https://api.chartdeck.aero/", "/api/v1/airac/current", "https://api.chartdeck.aero/api/v1/airac/current"},
		{"https://api.chartdeck.aero", "api/v1/airac/current", "https://api.chartdeck.aero/api/v1/airac/current"},
	}
	for _, tt := range tests {
		got, err := joinURL(tt.base, tt.path, nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestAuthClientExchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auth/exchange", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "identity-abc", body["identity_token"])
		assert.Equal(t, "device-1", body["device_id"])

		w.Write([]byte(`{"access_token":"acc","refresh_token":"ref"}`))
	}))
	defer server.Close()

	client := NewAuthClient(NewExecutor(server.URL, time.Second, nil, nil, testLogger()))
	cred, err := client.Exchange(context.Background(), "identity-abc", "device-1")

	require.NoError(t, err)
	assert.Equal(t, "acc", cred.AccessToken)
	assert.Equal(t, "ref", cred.RefreshToken)
	assert.False(t, cred.AcquiredAt.IsZero())
}

func TestAuthClientRenewRejectionIsRenewalError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewAuthClient(NewExecutor(server.URL, time.Second, nil, nil, testLogger()))
	_, err := client.Renew(context.Background(), "revoked-refresh")

	var renewErr *domain.RenewalError
	require.ErrorAs(t, err, &renewErr)
	assert.True(t, domain.IsAuthError(err))
}

func TestAuthClientRenewKeepsTransientClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewAuthClient(NewExecutor(server.URL, time.Second, nil, nil, testLogger()))
	_, err := client.Renew(context.Background(), "refresh")

	assert.True(t, domain.IsTransient(err))
	var renewErr *domain.RenewalError
	assert.False(t, errors.As(err, &renewErr))
}

func TestAuthClientRenewSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refresh-1", body["refresh_token"])
		w.Write([]byte(`{"access_token":"fresh"}`))
	}))
	defer server.Close()

	client := NewAuthClient(NewExecutor(server.URL, time.Second, nil, nil, testLogger()))
	cred, err := client.Renew(context.Background(), "refresh-1")

	require.NoError(t, err)
	assert.Equal(t, "fresh", cred.AccessToken)
	assert.Empty(t, cred.RefreshToken)
}

func TestAuthClientMissingAccessTokenIsDecodingError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewAuthClient(NewExecutor(server.URL, time.Second, nil, nil, testLogger()))
	_, err := client.Exchange(context.Background(), "identity", "device")

	var decErr *domain.DecodingError
	assert.ErrorAs(t, err, &decErr)
}

func TestVersionClientFetchCurrentVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/airac/current", r.URL.Path)
		w.Write([]byte(`{"airac_cycle":"2510","effective_date":"2025-09-04T00:00:00Z"}`))
	}))
	defer server.Close()

	client := NewVersionClient(NewExecutor(server.URL, time.Second, nil, nil, testLogger()))
	info, err := client.FetchCurrentVersion(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.VersionTag("2510"), info.Tag)
	assert.Equal(t, 2025, info.EffectiveDate.Year())
}

func TestVersionClientMissingCycleIsDecodingError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"effective_date":"2025-09-04T00:00:00Z"}`))
	}))
	defer server.Close()

	client := NewVersionClient(NewExecutor(server.URL, time.Second, nil, nil, testLogger()))
	_, err := client.FetchCurrentVersion(context.Background())

	var decErr *domain.DecodingError
	assert.ErrorAs(t, err, &decErr)
}

func TestBillingClientStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		w.Write([]byte(`{"state":"trial","plan":"pro-trial"}`))
	}))
	defer server.Close()

	tokens := newFakeTokenSource("access", false)
	client := NewBillingClient(NewExecutor(server.URL, time.Second, tokens, nil, testLogger()))
	info, err := client.Status(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionTrial, info.State)
	assert.Equal(t, "pro-trial", info.Plan)
	assert.False(t, info.LastRefreshed.IsZero())
}

// Package httpx implements the backend request executor and the HTTP
// clients for the renewal, version and billing endpoints.
package httpx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"chartdeck.aero/cli/internal/core/domain"
	"chartdeck.aero/cli/internal/core/ports"
)

const userAgent = "chartdeck-cli/1.0"

// Executor performs backend calls with retry, token attachment and error
// classification. A nil TokenSource disables authentication entirely.
type Executor struct {
	baseURL string
	client  *http.Client
	tokens  ports.TokenSource
	retry   ports.RetryPolicy
	logger  *slog.Logger
}

// NewExecutor creates an executor for the given backend base URL.
func NewExecutor(baseURL string, timeout time.Duration, tokens ports.TokenSource, retry ports.RetryPolicy, logger *slog.Logger) *Executor {
	return &Executor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		tokens:  tokens,
		retry:   retry,
		logger:  logger,
	}
}

// Do executes req against the backend. Failures are classified:
// 401 → domain.ErrUnauthorized, other non-2xx → *domain.ServerError,
// transport failures → *domain.NetworkError. A 401 on an authenticated
// request triggers exactly one reactive renewal and one retry.
func (e *Executor) Do(ctx context.Context, req domain.Request) (domain.Response, error) {
	fullURL, err := joinURL(e.baseURL, req.Path, req.Query)
	if err != nil {
		return domain.Response{}, fmt.Errorf("build request URL: %w", err)
	}

	renewed := false
	attempt := 0
	for {
		resp, err := e.doOnce(ctx, req, fullURL)
		if err != nil {
			var netErr *domain.NetworkError
			if errors.As(err, &netErr) && e.shouldRetry(0, err, &attempt, ctx) {
				continue
			}
			return domain.Response{}, err
		}

		switch {
		case resp.Status >= 200 && resp.Status < 300:
			return resp, nil

		case resp.Status == http.StatusUnauthorized:
			// One reactive renewal, then one retry. The renewal itself is
			// single-flighted by the token lifecycle manager.
			if req.Authenticated && !renewed && e.tokens != nil && e.tokens.HasRefreshToken() {
				renewed = true
				if _, err := e.tokens.Renew(ctx); err != nil {
					e.logger.Debug("reactive renewal failed", "error", err)
					return domain.Response{}, fmt.Errorf("%s %s: %w", req.Method, req.Path, domain.ErrUnauthorized)
				}
				continue
			}
			return domain.Response{}, fmt.Errorf("%s %s: %w", req.Method, req.Path, domain.ErrUnauthorized)

		default:
			if e.shouldRetry(resp.Status, nil, &attempt, ctx) {
				continue
			}
			return domain.Response{}, &domain.ServerError{Code: resp.Status, Body: string(resp.Body)}
		}
	}
}

func (e *Executor) doOnce(ctx context.Context, req domain.Request, fullURL string) (domain.Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return domain.Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Authenticated && e.tokens != nil {
		token := e.tokens.AccessToken()
		if token == "" {
			return domain.Response{}, fmt.Errorf("%s %s: no access token: %w", req.Method, req.Path, domain.ErrUnauthorized)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return domain.Response{}, &domain.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Response{}, &domain.NetworkError{Err: err}
	}

	return domain.Response{Status: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

func (e *Executor) shouldRetry(status int, err error, attempt *int, ctx context.Context) bool {
	if e.retry == nil {
		return false
	}
	retry, backoff := e.retry.ShouldRetry(status, err, *attempt)
	if !retry {
		return false
	}
	*attempt++
	select {
	case <-ctx.Done():
		return false
	case <-time.After(backoff):
		return true
	}
}

// Download fetches an absolute URL (e.g. a backend-issued signed URL)
// without authentication headers. Signed URLs carry their own authorization.
func (e *Executor) Download(ctx context.Context, rawURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, &domain.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &domain.ServerError{Code: resp.StatusCode, Body: string(body)}
	}

	return io.ReadAll(resp.Body)
}

func joinURL(base, p string, q map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = joinPath(u.Path, p)
	if len(q) > 0 {
		vals := u.Query()
		for k, v := range q {
			vals.Set(k, v)
		}
		u.RawQuery = vals.Encode()
	}
	return u.String(), nil
}

func joinPath(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if a[len(a)-1] == '/' {
		a = a[:len(a)-1]
	}
	if b[0] != '/' {
		b = "/" + b
	}
	return a + b
}

var _ ports.RequestExecutor = (*Executor)(nil)

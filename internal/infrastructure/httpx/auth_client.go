package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"chartdeck.aero/cli/internal/core/domain"
	"chartdeck.aero/cli/internal/core/ports"
)

// AuthClient talks to the backend's token endpoints. It is the renewal
// oracle and the identity exchanger; both calls go out unauthenticated since
// the token being presented is the credential.
type AuthClient struct {
	executor *Executor
}

// NewAuthClient creates an auth client on top of the given executor.
func NewAuthClient(executor *Executor) *AuthClient {
	return &AuthClient{executor: executor}
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

func (r *tokenPairResponse) toCredential() domain.Credential {
	return domain.Credential{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		AcquiredAt:   time.Now(),
	}
}

// Exchange trades a platform identity token for a backend credential pair.
func (c *AuthClient) Exchange(ctx context.Context, identityToken, deviceID string) (domain.Credential, error) {
	body, err := json.Marshal(map[string]string{
		"identity_token": identityToken,
		"device_id":      deviceID,
	})
	if err != nil {
		return domain.Credential{}, fmt.Errorf("marshal exchange request: %w", err)
	}

	resp, err := c.executor.Do(ctx, domain.Request{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/exchange",
		Body:   body,
	})
	if err != nil {
		return domain.Credential{}, fmt.Errorf("identity exchange: %w", err)
	}

	return decodeTokenPair(resp.Body)
}

// Renew exchanges a refresh token for a new credential pair. A rejection by
// the backend is reported as *domain.RenewalError; transport failures keep
// their transient classification so callers can tell the two apart.
func (c *AuthClient) Renew(ctx context.Context, refreshToken string) (domain.Credential, error) {
	body, err := json.Marshal(map[string]string{
		"refresh_token": refreshToken,
	})
	if err != nil {
		return domain.Credential{}, fmt.Errorf("marshal renew request: %w", err)
	}

	resp, err := c.executor.Do(ctx, domain.Request{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/renew",
		Body:   body,
	})
	if err != nil {
		if domain.IsTransient(err) {
			return domain.Credential{}, fmt.Errorf("token renewal: %w", err)
		}
		return domain.Credential{}, &domain.RenewalError{Err: err}
	}

	return decodeTokenPair(resp.Body)
}

func decodeTokenPair(body []byte) (domain.Credential, error) {
	var pair tokenPairResponse
	if err := json.Unmarshal(body, &pair); err != nil {
		return domain.Credential{}, &domain.DecodingError{Err: err}
	}
	if pair.AccessToken == "" {
		return domain.Credential{}, &domain.DecodingError{Err: errors.New("response missing access_token")}
	}
	return pair.toCredential(), nil
}

var (
	_ ports.RenewalOracle     = (*AuthClient)(nil)
	_ ports.IdentityExchanger = (*AuthClient)(nil)
)

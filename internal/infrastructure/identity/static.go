// Package identity provides identity provider implementations. The platform
// sign-in UI is out of scope; the CLI accepts an identity token directly.
package identity

import (
	"context"
	"errors"
)

// StaticProvider yields a pre-obtained identity token, e.g. from a flag or
// environment variable.
type StaticProvider struct {
	token string
}

// NewStaticProvider creates a provider around the given identity token.
func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: token}
}

// SignIn returns the configured token, or fails when none was provided.
func (p *StaticProvider) SignIn(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.token == "" {
		return "", errors.New("no identity token provided")
	}
	return p.token, nil
}

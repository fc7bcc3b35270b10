package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"chartdeck.aero/cli/internal/core/domain"
	"chartdeck.aero/cli/internal/core/ports"
)

// probePath is the authenticated endpoint used to validate a stored access
// token when no refresh token is available.
const probePath = "/api/v1/account/me"

// SessionController owns the user-facing session state machine. All state
// mutation goes through its mutex; other components read state through
// accessors only.
//
// Startup applies the optimistic policy: a stored credential immediately
// shows as authenticated, then a bounded background validation either
// confirms it or corrects the state. Transient failures never downgrade a
// signed-in user.
type SessionController struct {
	tokens    *TokenLifecycle
	executor  ports.RequestExecutor
	identity  ports.IdentityProvider
	exchanger ports.IdentityExchanger
	billing   ports.BillingOracle
	logger    *slog.Logger
	deviceID  string

	mu           sync.Mutex
	state        domain.SessionState
	lastError    string
	subscription domain.SubscriptionInfo

	// validating suppresses the renewal observer while the controller is
	// driving renewals itself: the startup chain has its own fallthrough
	// policy and must not be short-circuited by the observer.
	validating bool
}

// NewSessionController creates the session controller. billing may be nil
// when subscription gating is disabled.
func NewSessionController(
	tokens *TokenLifecycle,
	executor ports.RequestExecutor,
	identity ports.IdentityProvider,
	exchanger ports.IdentityExchanger,
	billing ports.BillingOracle,
	deviceID string,
	logger *slog.Logger,
) *SessionController {
	return &SessionController{
		tokens:    tokens,
		executor:  executor,
		identity:  identity,
		exchanger: exchanger,
		billing:   billing,
		deviceID:  deviceID,
		logger:    logger,
		state:     domain.NotAuthenticated,
	}
}

// State returns the current session state.
func (c *SessionController) State() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the human-readable message from the last failed sign-in.
func (c *SessionController) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Subscription returns the last known subscription info.
func (c *SessionController) Subscription() domain.SubscriptionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscription
}

// Bootstrap runs the startup policy. The caller bounds ctx (5 seconds by
// default); a slow network falls through to the documented degraded path
// rather than hanging start.
func (c *SessionController) Bootstrap(ctx context.Context) error {
	cred := c.tokens.LoadStored()
	if cred.IsZero() {
		c.setState(domain.NotAuthenticated)
		return nil
	}

	// Optimistic: show signed-in immediately, correct in the background.
	c.setState(domain.Authenticated)
	return c.validate(ctx)
}

// HandleForeground re-validates the session when the app returns to the
// foreground. Same policy as startup; no-op unless currently authenticated.
func (c *SessionController) HandleForeground(ctx context.Context) error {
	if c.State() != domain.Authenticated {
		return nil
	}
	return c.validate(ctx)
}

// SignIn runs the interactive sign-in flow: platform identity provider,
// then backend exchange of the identity token for a credential pair.
func (c *SessionController) SignIn(ctx context.Context) error {
	c.setState(domain.Authenticating)

	identityToken, err := c.identity.SignIn(ctx)
	if err != nil {
		c.failSignIn(err)
		return fmt.Errorf("identity provider sign-in: %w", err)
	}

	cred, err := c.exchanger.Exchange(ctx, identityToken, c.deviceID)
	if err != nil {
		c.failSignIn(err)
		return fmt.Errorf("credential exchange: %w", err)
	}

	c.tokens.SetTokens(cred.AccessToken, cred.RefreshToken)
	c.setState(domain.Authenticated)
	c.refreshSubscription(ctx)
	return nil
}

// SignOut clears the credential and returns to NotAuthenticated.
func (c *SessionController) SignOut() {
	c.tokens.Clear()
	c.mu.Lock()
	c.state = domain.NotAuthenticated
	c.lastError = ""
	c.subscription = domain.SubscriptionInfo{}
	c.mu.Unlock()
}

// DismissError acknowledges a sign-in failure, returning to NotAuthenticated.
func (c *SessionController) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == domain.SessionError {
		c.state = domain.NotAuthenticated
		c.lastError = ""
	}
}

// HandleRenewalOutcome is the token lifecycle's renewal observer. A
// timer-driven renewal whose refresh token was rejected leaves no renewal
// path, so the session is terminated; transient failures are left for the
// next tick.
func (c *SessionController) HandleRenewalOutcome(_ domain.Credential, err error) {
	if err == nil || domain.IsTransient(err) {
		return
	}

	c.mu.Lock()
	if c.validating || c.state != domain.Authenticated {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if domain.IsAuthError(err) {
		c.logger.Warn("background renewal exhausted, signing out", "error", err)
		c.tokens.Clear()
		c.setState(domain.NotAuthenticated)
	}
}

// validate implements the startup/foreground validation chain:
//  1. refresh token present → renew directly (the access token may already
//     be expired, so validation would waste a round trip)
//  2. otherwise, or if renewal failed → one authenticated probe call
//  3. probe unauthorized with a refresh token → one more renewal attempt;
//     still failing → clear credentials and sign out
//  4. transient failure anywhere → leave the state as currently set
func (c *SessionController) validate(ctx context.Context) error {
	c.setValidating(true)
	defer c.setValidating(false)

	if c.tokens.HasRefreshToken() {
		if _, err := c.tokens.Renew(ctx); err == nil {
			c.confirmAuthenticated(ctx, true)
			return nil
		} else {
			c.logger.Debug("startup renewal failed, probing access token", "error", err)
		}
	}

	err := c.probe(ctx)
	switch {
	case err == nil:
		c.confirmAuthenticated(ctx, c.tokens.HasRefreshToken())
		return nil

	case domain.IsAuthError(err):
		if c.tokens.HasRefreshToken() {
			if _, rerr := c.tokens.Renew(ctx); rerr == nil {
				c.confirmAuthenticated(ctx, true)
				return nil
			}
		}
		c.logger.Info("stored credential no longer valid, signing out")
		c.tokens.Clear()
		c.setState(domain.NotAuthenticated)
		return nil

	default:
		// Network or server blip: do not downgrade, retry on the next
		// natural trigger.
		c.logger.Warn("session validation deferred", "error", err)
		return nil
	}
}

func (c *SessionController) probe(ctx context.Context) error {
	_, err := c.executor.Do(ctx, domain.Request{
		Method:        http.MethodGet,
		Path:          probePath,
		Authenticated: true,
	})
	return err
}

// confirmAuthenticated finalizes a successful validation: set state, arm
// the renewal timer when a refresh path exists, refresh the subscription.
func (c *SessionController) confirmAuthenticated(ctx context.Context, armTimer bool) {
	c.setState(domain.Authenticated)
	if armTimer {
		c.tokens.StartAutoRenewal()
	}
	c.refreshSubscription(ctx)
}

// refreshSubscription asks the billing oracle for the account status. A
// failed check never blocks a signed-in user; the last known info stands.
func (c *SessionController) refreshSubscription(ctx context.Context) {
	if c.billing == nil {
		return
	}
	info, err := c.billing.Status(ctx)
	if err != nil {
		c.logger.Warn("subscription check failed, keeping user signed in", "error", err)
		return
	}
	c.mu.Lock()
	c.subscription = info
	c.mu.Unlock()
}

func (c *SessionController) failSignIn(err error) {
	msg, _ := domain.Classify(err)
	c.mu.Lock()
	c.state = domain.SessionError
	c.lastError = msg
	c.mu.Unlock()
}

func (c *SessionController) setState(s domain.SessionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *SessionController) setValidating(v bool) {
	c.mu.Lock()
	c.validating = v
	c.mu.Unlock()
}

package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"chartdeck.aero/cli/internal/core/domain"
	"chartdeck.aero/cli/internal/core/ports"
)

// Secret store keys for the persisted credential fields.
const (
	secretKeyAccess   = "chartdeck.access_token"
	secretKeyRefresh  = "chartdeck.refresh_token"
	secretKeyAcquired = "chartdeck.acquired_at"
)

// DefaultRenewalInterval is how often the background timer renews the
// access token proactively.
const DefaultRenewalInterval = time.Hour

// renewalTickTimeout bounds a single timer-driven renewal attempt.
const renewalTickTimeout = 30 * time.Second

// RenewalObserver is notified after each actual renewal attempt (callers
// coalesced by the single-flight guard produce one notification).
type RenewalObserver func(cred domain.Credential, err error)

// TokenLifecycle owns the access/refresh token pair: in-memory state,
// persistence through the secret store, and the background renewal timer.
//
// The in-memory credential is authoritative for the process lifetime.
// Secret store write and delete failures are logged and swallowed; a later
// process start may then not find the persisted value, which is an accepted
// degraded mode.
type TokenLifecycle struct {
	secrets  ports.SecretStore
	oracle   ports.RenewalOracle
	logger   *slog.Logger
	interval time.Duration
	observer RenewalObserver

	mu   sync.RWMutex
	cred domain.Credential

	timerMu   sync.Mutex
	timerStop chan struct{}

	renewals singleflight.Group
}

// TokenOption customizes a TokenLifecycle.
type TokenOption func(*TokenLifecycle)

// WithRenewalInterval overrides the background renewal interval.
func WithRenewalInterval(d time.Duration) TokenOption {
	return func(m *TokenLifecycle) { m.interval = d }
}

// WithRenewalObserver registers the renewal outcome observer.
func WithRenewalObserver(fn RenewalObserver) TokenOption {
	return func(m *TokenLifecycle) { m.observer = fn }
}

// SetRenewalObserver registers the renewal outcome observer after
// construction. The composition root uses this to break the cycle between
// the lifecycle manager and the session controller; call before any renewal
// can run.
func (m *TokenLifecycle) SetRenewalObserver(fn RenewalObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = fn
}

// NewTokenLifecycle creates the token lifecycle manager. There is one per
// process, constructed by the composition root.
func NewTokenLifecycle(secrets ports.SecretStore, oracle ports.RenewalOracle, logger *slog.Logger, opts ...TokenOption) *TokenLifecycle {
	m := &TokenLifecycle{
		secrets:  secrets,
		oracle:   oracle,
		logger:   logger,
		interval: DefaultRenewalInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetTokens stores both tokens in memory and in the secret store,
// overwriting any prior values, and restarts the renewal timer if a refresh
// token is present.
func (m *TokenLifecycle) SetTokens(access, refresh string) {
	m.mu.Lock()
	m.cred = domain.Credential{
		AccessToken:  access,
		RefreshToken: refresh,
		AcquiredAt:   time.Now(),
	}
	cred := m.cred
	m.mu.Unlock()

	m.persist(secretKeyAccess, access)
	m.persist(secretKeyRefresh, refresh)
	m.persist(secretKeyAcquired, cred.AcquiredAt.Format(time.RFC3339))

	if refresh != "" {
		m.StartRenewalTimer(m.renewTick)
	} else {
		m.StopRenewalTimer()
	}
}

// AccessToken returns the current in-memory access token, or "".
func (m *TokenLifecycle) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred.AccessToken
}

// RefreshToken returns the current in-memory refresh token, or "".
func (m *TokenLifecycle) RefreshToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred.RefreshToken
}

// HasRefreshToken reports whether a renewal path exists.
func (m *TokenLifecycle) HasRefreshToken() bool {
	return m.RefreshToken() != ""
}

// Current returns a copy of the in-memory credential.
func (m *TokenLifecycle) Current() domain.Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred
}

// LoadStored reads the persisted credential at startup and populates memory.
// Either token may be absent. An unreadable store is treated as absent and
// logged, never fatal.
func (m *TokenLifecycle) LoadStored() domain.Credential {
	cred := domain.Credential{}

	access, err := m.secrets.Load(secretKeyAccess)
	switch {
	case err == nil:
		cred.AccessToken = access
	case !errors.Is(err, domain.ErrSecretNotFound):
		m.logger.Warn("failed to load stored access token", "error", err)
	}

	refresh, err := m.secrets.Load(secretKeyRefresh)
	switch {
	case err == nil:
		cred.RefreshToken = refresh
	case !errors.Is(err, domain.ErrSecretNotFound):
		m.logger.Warn("failed to load stored refresh token", "error", err)
	}

	if acquired, err := m.secrets.Load(secretKeyAcquired); err == nil {
		if ts, err := time.Parse(time.RFC3339, acquired); err == nil {
			cred.AcquiredAt = ts
		}
	}

	m.mu.Lock()
	m.cred = cred
	m.mu.Unlock()
	return cred
}

// UpdateAccessToken replaces the access token after a successful renewal and
// persists only the fields that changed. An empty refreshOverride keeps the
// existing refresh token.
func (m *TokenLifecycle) UpdateAccessToken(access, refreshOverride string) {
	m.mu.Lock()
	m.cred.AccessToken = access
	m.cred.AcquiredAt = time.Now()
	refreshChanged := refreshOverride != "" && refreshOverride != m.cred.RefreshToken
	if refreshChanged {
		m.cred.RefreshToken = refreshOverride
	}
	acquired := m.cred.AcquiredAt
	m.mu.Unlock()

	m.persist(secretKeyAccess, access)
	m.persist(secretKeyAcquired, acquired.Format(time.RFC3339))
	if refreshChanged {
		m.persist(secretKeyRefresh, refreshOverride)
	}
}

// Clear erases the credential from memory and the secret store and stops
// the renewal timer.
func (m *TokenLifecycle) Clear() {
	m.StopRenewalTimer()

	m.mu.Lock()
	m.cred = domain.Credential{}
	m.mu.Unlock()

	for _, key := range []string{secretKeyAccess, secretKeyRefresh, secretKeyAcquired} {
		if err := m.secrets.Delete(key); err != nil {
			m.logger.Warn("failed to delete stored secret", "key", key, "error", err)
		}
	}
}

// Renew exchanges the refresh token for a new credential pair. Concurrent
// callers are coalesced: while one renewal is in flight, later callers wait
// for its result instead of issuing a duplicate request.
func (m *TokenLifecycle) Renew(ctx context.Context) (domain.Credential, error) {
	v, err, _ := m.renewals.Do("renew", func() (interface{}, error) {
		refresh := m.RefreshToken()
		if refresh == "" {
			m.notify(domain.Credential{}, domain.ErrNoRefreshPath)
			return nil, domain.ErrNoRefreshPath
		}

		cred, err := m.oracle.Renew(ctx, refresh)
		if err != nil {
			m.notify(domain.Credential{}, err)
			return nil, err
		}

		m.UpdateAccessToken(cred.AccessToken, cred.RefreshToken)
		current := m.Current()
		m.notify(current, nil)
		return current, nil
	})
	if err != nil {
		return domain.Credential{}, err
	}
	return v.(domain.Credential), nil
}

// StartRenewalTimer arms the recurring renewal timer with the given
// callback. Starting while a timer is active cancels the old one first, so
// at most one timer is ever armed.
func (m *TokenLifecycle) StartRenewalTimer(onFire func(ctx context.Context)) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	m.stopTimerLocked()

	stop := make(chan struct{})
	m.timerStop = stop

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				// Re-check stop so a cancelled timer never fires again, even
				// when both channels are ready.
				select {
				case <-stop:
					return
				default:
				}
				onFire(context.Background())
			}
		}
	}()
}

// StartAutoRenewal arms the timer with the default proactive renewal
// callback.
func (m *TokenLifecycle) StartAutoRenewal() {
	m.StartRenewalTimer(m.renewTick)
}

// StopRenewalTimer cancels the timer if armed. Safe to call repeatedly.
func (m *TokenLifecycle) StopRenewalTimer() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	m.stopTimerLocked()
}

// TimerActive reports whether the renewal timer is armed.
func (m *TokenLifecycle) TimerActive() bool {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	return m.timerStop != nil
}

// stopTimerLocked signals the timer goroutine without waiting for it: the
// renewal observer may run on that goroutine and call back into Clear, so
// blocking here would deadlock. A signalled timer never fires again.
func (m *TokenLifecycle) stopTimerLocked() {
	if m.timerStop == nil {
		return
	}
	close(m.timerStop)
	m.timerStop = nil
}

// renewTick is the default timer callback: a bounded proactive renewal.
func (m *TokenLifecycle) renewTick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, renewalTickTimeout)
	defer cancel()

	if _, err := m.Renew(ctx); err != nil {
		m.logger.Warn("proactive token renewal failed", "error", err)
	}
}

func (m *TokenLifecycle) notify(cred domain.Credential, err error) {
	m.mu.RLock()
	observer := m.observer
	m.mu.RUnlock()
	if observer != nil {
		observer(cred, err)
	}
}

func (m *TokenLifecycle) persist(key, value string) {
	if err := m.secrets.Save(key, value); err != nil {
		m.logger.Warn("failed to persist secret, in-memory state remains authoritative",
			"key", key, "error", err)
	}
}

var _ ports.TokenSource = (*TokenLifecycle)(nil)

// Package ports defines the interfaces between the session/cache core and
// its collaborators. Infrastructure packages implement them; application
// services consume them. Tests substitute fakes.
package ports

import (
	"context"
	"time"

	"chartdeck.aero/cli/internal/core/domain"
)

// SecretStore is an opaque, persistent, encrypted key-value store for
// credential material. Load returns domain.ErrSecretNotFound (wrapped) when
// the key has no value. Delete of an absent key succeeds.
type SecretStore interface {
	Save(key, value string) error
	Load(key string) (string, error)
	Delete(key string) error
}

// RequestExecutor performs backend calls with the current access token
// attached, retries transient failures with backoff, and classifies errors
// into the domain taxonomy (ErrUnauthorized, ServerError, NetworkError).
type RequestExecutor interface {
	Do(ctx context.Context, req domain.Request) (domain.Response, error)
}

// RetryPolicy decides whether a failed attempt should be retried and how
// long to back off first.
type RetryPolicy interface {
	ShouldRetry(status int, err error, attempt int) (bool, time.Duration)
}

// RenewalOracle exchanges a refresh token for a new credential pair.
// Rejections are reported as *domain.RenewalError.
type RenewalOracle interface {
	Renew(ctx context.Context, refreshToken string) (domain.Credential, error)
}

// IdentityExchanger exchanges a platform identity token for a backend
// credential pair during sign-in.
type IdentityExchanger interface {
	Exchange(ctx context.Context, identityToken, deviceID string) (domain.Credential, error)
}

// IdentityProvider runs the platform sign-in flow and yields an identity
// token, or a cancellation/failure.
type IdentityProvider interface {
	SignIn(ctx context.Context) (string, error)
}

// VersionOracle reports the authoritative current AIRAC cycle.
type VersionOracle interface {
	FetchCurrentVersion(ctx context.Context) (domain.VersionInfo, error)
}

// BillingOracle reports the account's subscription status. Consumed by
// session gating; verification internals live elsewhere.
type BillingOracle interface {
	Status(ctx context.Context) (domain.SubscriptionInfo, error)
}

// TokenSource is the executor's view of the token lifecycle manager: read
// the current access token, and renew reactively after a 401.
type TokenSource interface {
	AccessToken() string
	HasRefreshToken() bool
	Renew(ctx context.Context) (domain.Credential, error)
}

// CacheStore is the AIRAC-versioned content store. Every entry belongs to
// exactly one version tag; evicting a tag deletes all entries under it.
type CacheStore interface {
	// CurrentVersion returns the tag marked current, or a zero tag if none
	// has been recorded yet.
	CurrentVersion() (domain.VersionTag, error)

	// SwapVersion atomically makes next the current tag, evicting every
	// entry under the previous current tag first. Readers observe either the
	// old epoch fully intact or the new one with no leftovers.
	SwapVersion(ctx context.Context, next domain.VersionTag) error

	// Load returns the payload under key, or nil if absent. Absence is not
	// an error.
	Load(key domain.CacheKey) ([]byte, error)

	// Store writes payload under key, last-write-wins.
	Store(key domain.CacheKey, payload []byte) error

	// EvictVersion deletes all entries under tag. Idempotent.
	EvictVersion(tag domain.VersionTag) error

	// EntryCount returns the number of entries stored under tag.
	EntryCount(tag domain.VersionTag) (int, error)

	// TotalSize returns the aggregate payload size in bytes across all tags.
	TotalSize() (int64, error)

	// Close releases the underlying storage.
	Close() error
}

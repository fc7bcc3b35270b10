package domain

import "time"

// Credential is the access/refresh token pair owned by the token lifecycle
// manager. RefreshToken may be empty when the backend did not issue one
// (e.g. short-lived kiosk sessions).
type Credential struct {
	AccessToken  string
	RefreshToken string
	AcquiredAt   time.Time
}

// HasAccessToken reports whether an access token is present.
func (c Credential) HasAccessToken() bool {
	return c.AccessToken != ""
}

// HasRefreshToken reports whether a renewal path exists without a fresh sign-in.
func (c Credential) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// IsZero reports whether the credential is entirely absent.
func (c Credential) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Age returns how long ago the credential was acquired.
func (c Credential) Age() time.Duration {
	if c.AcquiredAt.IsZero() {
		return 0
	}
	return time.Since(c.AcquiredAt)
}

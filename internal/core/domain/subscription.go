package domain

import "time"

// SubscriptionState represents the billing oracle's verdict on the account.
type SubscriptionState string

const (
	SubscriptionActive  SubscriptionState = "active"
	SubscriptionTrial   SubscriptionState = "trial"
	SubscriptionExpired SubscriptionState = "expired"
	SubscriptionNone    SubscriptionState = "none"
)

// SubscriptionInfo contains the account's subscription details as last
// reported by the billing oracle.
type SubscriptionInfo struct {
	State         SubscriptionState `json:"state"`
	Plan          string            `json:"plan,omitempty"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	LastRefreshed time.Time         `json:"-"`
}

// IsExpired checks if the subscription has lapsed.
func (s *SubscriptionInfo) IsExpired() bool {
	if s.State == SubscriptionExpired {
		return true
	}
	if s.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*s.ExpiresAt)
}

// AllowsDownloads reports whether chart downloads are enabled for this
// account. Trial accounts keep download access; a failed or missing billing
// check is handled upstream and never blocks a signed-in user.
func (s *SubscriptionInfo) AllowsDownloads() bool {
	switch s.State {
	case SubscriptionActive, SubscriptionTrial:
		return !s.IsExpired()
	default:
		return false
	}
}

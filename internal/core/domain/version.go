package domain

import "time"

// VersionTag identifies an AIRAC data epoch, e.g. "2510". The tag is opaque
// to this core: ordering and rollover timing are decided by the backend.
type VersionTag string

// IsZero reports whether the tag is absent.
func (t VersionTag) IsZero() bool { return t == "" }

func (t VersionTag) String() string { return string(t) }

// VersionInfo is the backend's answer to "what is the current AIRAC cycle".
type VersionInfo struct {
	Tag           VersionTag `json:"airac_cycle"`
	EffectiveDate time.Time  `json:"effective_date"`
}

// VersionRecord is the small persisted record that marks which tag is
// current. Pending is non-empty only while a rollover is in progress: the
// coordinator records the incoming tag before evicting the outgoing one, so
// an interrupted rollover can be resumed on the next start.
type VersionRecord struct {
	Current   VersionTag `json:"current"`
	Pending   VersionTag `json:"pending,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

package domain

// SessionState is the user-facing authentication state. It is owned solely
// by the session controller; everyone else reads it through accessors.
type SessionState int

const (
	// NotAuthenticated means no usable credential exists.
	NotAuthenticated SessionState = iota
	// Authenticating means a sign-in flow is in progress.
	Authenticating
	// Authenticated means a credential exists and is believed valid.
	Authenticated
	// SessionError means the last sign-in attempt failed. Reachable back to
	// NotAuthenticated only via a fresh sign-in attempt or explicit dismissal.
	SessionError
)

// String returns the state name for logs and status output.
func (s SessionState) String() string {
	switch s {
	case NotAuthenticated:
		return "not-authenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case SessionError:
		return "error"
	default:
		return "unknown"
	}
}

// SignedIn reports whether the state allows authenticated API calls.
func (s SessionState) SignedIn() bool {
	return s == Authenticated
}

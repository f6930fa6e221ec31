// Package session reconciles the client's view of the login session with the
// server's. It probes the API for the authoritative session state, gates
// protected routes behind that answer and drives the two-step login.
//
// Nothing in this package trusts the persisted mirror on its own: every
// protected render is preceded by a fresh probe.
package session

// User is the account payload returned by the API.
type User struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	TwoFactorEnabled bool   `json:"twoFactorEnabled"`
	EmailVerified    bool   `json:"emailVerified"`
}

// State is the client's current knowledge of the session. It is one of
// Loading, Unauthenticated, PendingTwoFactor or Authenticated.
type State interface {
	sessionState()
}

// Loading means the initial probe has not resolved yet.
type Loading struct{}

// Unauthenticated means the server did not grant a session.
type Unauthenticated struct{}

// PendingTwoFactor means the password was accepted but a second factor is
// still outstanding. The server has not granted a full session.
type PendingTwoFactor struct {
	TempUser User
}

// Authenticated means the last probe succeeded.
type Authenticated struct {
	User User
}

func (Loading) sessionState()          {}
func (Unauthenticated) sessionState()  {}
func (PendingTwoFactor) sessionState() {}
func (Authenticated) sessionState()    {}

// IsAuthenticated reports whether s grants a full session.
func IsAuthenticated(s State) bool {
	_, ok := s.(Authenticated)
	return ok
}

// IsLoading reports whether s is the initial in-flight state.
func IsLoading(s State) bool {
	switch s.(type) {
	case nil, Loading:
		return true
	}
	return false
}

// CurrentUser returns the fully authenticated user, if any.
func CurrentUser(s State) (User, bool) {
	if a, ok := s.(Authenticated); ok {
		return a.User, true
	}
	return User{}, false
}

// TempUser returns the partially authenticated user held while a second
// factor is pending.
func TempUser(s State) (User, bool) {
	if p, ok := s.(PendingTwoFactor); ok {
		return p.TempUser, true
	}
	return User{}, false
}

// SessionUser returns the user the server identified, whether fully
// authenticated or still owing a second factor.
func SessionUser(s State) (User, bool) {
	if u, ok := CurrentUser(s); ok {
		return u, true
	}
	return TempUser(s)
}

// StateName returns a short label for logs and terminal output.
func StateName(s State) string {
	switch s.(type) {
	case nil, Loading:
		return "loading"
	case Unauthenticated:
		return "unauthenticated"
	case PendingTwoFactor:
		return "pending_two_factor"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

package session

import (
	"context"
	"errors"
)

var (
	// ErrSuperseded is returned when a newer probe or evaluation started
	// before this one resolved. The result was discarded.
	ErrSuperseded = errors.New("superseded by a newer navigation")

	// ErrRedirectLoop is returned once the redirect bound is exceeded.
	ErrRedirectLoop = errors.New("redirect limit exceeded")

	// ErrInvalidStep is returned when a login operation is called from a
	// step that does not allow it.
	ErrInvalidStep = errors.New("operation not allowed in current login step")

	// ErrTooManyAttempts is returned when the configured limit of second
	// factor attempts is reached.
	ErrTooManyAttempts = errors.New("too many verification attempts")

	// ErrNoUser is returned when the user endpoint answers without a user.
	ErrNoUser = errors.New("server returned no user")
)

// TwoFactorStatus is the server's answer to "is this session fully verified".
type TwoFactorStatus struct {
	Authenticated        bool `json:"authenticated"`
	RequiresVerification bool `json:"requiresVerification"`
}

// LoginInput is the credentials form.
type LoginInput struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// LoginResult is the response of the credential check.
type LoginResult struct {
	RequiresTwoFactor bool   `json:"requires2FA"`
	User              User   `json:"user"`
	Token             string `json:"token"`
}

// VerifyResult is the response of a successful second-factor check.
type VerifyResult struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// API is the remote contract the session flow depends on. Implementations
// must send credentials and cache-defeating headers on every call.
type API interface {
	// CurrentUser returns the user of a fully granted session, or an error
	// for any non-200 answer.
	CurrentUser(ctx context.Context) (*User, error)
	TwoFactorStatus(ctx context.Context) (*TwoFactorStatus, error)
	Login(ctx context.Context, in LoginInput) (*LoginResult, error)
	VerifyTwoFactor(ctx context.Context, userID, code string) (*VerifyResult, error)
	Logout(ctx context.Context) error
}

// CredentialStore holds whatever proves the session to the server (cookies,
// bearer token) on the client side.
type CredentialStore interface {
	SaveToken(token string) error
	ClearCredentials() error
}

// NopCredentials is a CredentialStore that keeps nothing.
type NopCredentials struct{}

func (NopCredentials) SaveToken(string) error  { return nil }
func (NopCredentials) ClearCredentials() error { return nil }

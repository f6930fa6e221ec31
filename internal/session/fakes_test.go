package session

import (
	"context"
	"errors"
	"sync"
)

var errUnauthorized = errors.New("unauthorized (status 401)")

// fakeAPI records every call in order and delegates to optional funcs.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	currentUser     func(ctx context.Context) (*User, error)
	twoFactorStatus func(ctx context.Context) (*TwoFactorStatus, error)
	login           func(ctx context.Context, in LoginInput) (*LoginResult, error)
	verify          func(ctx context.Context, userID, code string) (*VerifyResult, error)
	logout          func(ctx context.Context) error
}

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) count(name string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeAPI) CurrentUser(ctx context.Context) (*User, error) {
	f.record("user")
	if f.currentUser == nil {
		return nil, errUnauthorized
	}
	return f.currentUser(ctx)
}

func (f *fakeAPI) TwoFactorStatus(ctx context.Context) (*TwoFactorStatus, error) {
	f.record("2fa-status")
	if f.twoFactorStatus == nil {
		return &TwoFactorStatus{}, nil
	}
	return f.twoFactorStatus(ctx)
}

func (f *fakeAPI) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	f.record("login")
	if f.login == nil {
		return nil, errUnauthorized
	}
	return f.login(ctx, in)
}

func (f *fakeAPI) VerifyTwoFactor(ctx context.Context, userID, code string) (*VerifyResult, error) {
	f.record("verify-2fa")
	if f.verify == nil {
		return nil, errUnauthorized
	}
	return f.verify(ctx, userID, code)
}

func (f *fakeAPI) Logout(ctx context.Context) error {
	f.record("logout")
	if f.logout == nil {
		return nil
	}
	return f.logout(ctx)
}

// navRecorder is a Navigator that keeps every navigation.
type navRecorder struct {
	mu   sync.Mutex
	navs []Navigation
}

func (r *navRecorder) Navigate(n Navigation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.navs = append(r.navs, n)
}

func (r *navRecorder) All() []Navigation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Navigation(nil), r.navs...)
}

// orderedCredentials records credential operations into a shared log.
type orderedCredentials struct {
	log   func(string)
	token string
}

func (c *orderedCredentials) SaveToken(token string) error {
	c.token = token
	c.log("save-token")
	return nil
}

func (c *orderedCredentials) ClearCredentials() error {
	c.token = ""
	c.log("clear-credentials")
	return nil
}

// orderedMirror wraps MemoryMirror and records Clear calls.
type orderedMirror struct {
	*MemoryMirror
	log func(string)
}

func (m *orderedMirror) Clear() error {
	m.log("clear-mirror")
	return m.MemoryMirror.Clear()
}

func authenticatedUser() User {
	return User{ID: "01HZY", Username: "maria", Email: "maria@example.com", Role: "admin"}
}

func okUser(u User) func(context.Context) (*User, error) {
	return func(context.Context) (*User, error) { return &u, nil }
}

func okStatus(authenticated, requires bool) func(context.Context) (*TwoFactorStatus, error) {
	return func(context.Context) (*TwoFactorStatus, error) {
		return &TwoFactorStatus{Authenticated: authenticated, RequiresVerification: requires}, nil
	}
}

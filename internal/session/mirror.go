package session

import "sync"

// LogoutMarker is the transient key set right after a logout.
const LogoutMarker = "logout"

// Mirror is the persisted local copy of session data kept for fast reads.
// It is never authoritative.
type Mirror interface {
	LoadUser() (*User, error)
	SaveUser(u User) error

	// PendingTwoFactor returns the partially authenticated user when the
	// pending-second-factor marker is set.
	PendingTwoFactor() (*User, bool)
	// SetPendingTwoFactor sets the marker and drops any signed-in user.
	SetPendingTwoFactor(u User) error
	ClearPendingTwoFactor() error

	// RedirectTarget is the path to return to after the second factor.
	RedirectTarget() string
	SetRedirectTarget(path string) error
	ClearRedirectTarget() error

	// Clear removes every persisted key.
	Clear() error
}

// Transient is per-process marker storage, dropped when the process exits.
type Transient interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// MemoryMirror is a Mirror held in memory.
type MemoryMirror struct {
	mu       sync.Mutex
	user     *User
	pending  *User
	redirect string
}

// NewMemoryMirror returns an empty MemoryMirror.
func NewMemoryMirror() *MemoryMirror {
	return &MemoryMirror{}
}

func (m *MemoryMirror) LoadUser() (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil, nil
	}
	u := *m.user
	return &u, nil
}

func (m *MemoryMirror) SaveUser(u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = &u
	return nil
}

func (m *MemoryMirror) PendingTwoFactor() (*User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return nil, false
	}
	u := *m.pending
	return &u, true
}

func (m *MemoryMirror) SetPendingTwoFactor(u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	m.pending = &u
	return nil
}

func (m *MemoryMirror) ClearPendingTwoFactor() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
	return nil
}

func (m *MemoryMirror) RedirectTarget() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.redirect
}

func (m *MemoryMirror) SetRedirectTarget(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redirect = path
	return nil
}

func (m *MemoryMirror) ClearRedirectTarget() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redirect = ""
	return nil
}

func (m *MemoryMirror) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	m.pending = nil
	m.redirect = ""
	return nil
}

// MemoryTransient is a Transient backed by a map.
type MemoryTransient struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryTransient returns an empty MemoryTransient.
func NewMemoryTransient() *MemoryTransient {
	return &MemoryTransient{values: make(map[string]string)}
}

func (t *MemoryTransient) Get(key string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[key]
	return v, ok
}

func (t *MemoryTransient) Set(key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[key] = value
}

func (t *MemoryTransient) Delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.values, key)
}

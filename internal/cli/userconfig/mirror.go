package userconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/alderburg/Teste-sub007/internal/session"
)

const mirrorFileName = "session.json"

// mirrorData is the on-disk layout of the session mirror.
type mirrorData struct {
	User             *session.User `json:"user,omitempty"`
	PendingTwoFactor bool          `json:"pending_two_factor,omitempty"`
	TempUser         *session.User `json:"temp_user,omitempty"`
	RedirectAfter2FA string        `json:"redirect_after_2fa,omitempty"`
}

// FileMirror is a session.Mirror persisted as JSON. Every operation reads or
// rewrites the whole file; an empty mirror removes it.
type FileMirror struct {
	path string
	mu   sync.Mutex
}

var _ session.Mirror = (*FileMirror)(nil)

// NewFileMirror creates a mirror stored at path.
func NewFileMirror(path string) *FileMirror {
	return &FileMirror{path: path}
}

// DefaultMirror returns the mirror at ~/.config/gestor/session.json, one
// file per server so switching servers never mixes sessions.
func DefaultMirror(serverAlias string) (*FileMirror, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}
	name := mirrorFileName
	if serverAlias != "" {
		name = fmt.Sprintf("session-%s.json", sanitize(serverAlias))
	}
	return NewFileMirror(filepath.Join(configDir, name)), nil
}

// Path returns the file location.
func (m *FileMirror) Path() string {
	return m.path
}

func (m *FileMirror) LoadUser() (*session.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := m.read()
	if err != nil {
		return nil, err
	}
	return data.User, nil
}

func (m *FileMirror) SaveUser(u session.User) error {
	return m.update(func(d *mirrorData) { d.User = &u })
}

func (m *FileMirror) PendingTwoFactor() (*session.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := m.read()
	if err != nil || !data.PendingTwoFactor || data.TempUser == nil {
		return nil, false
	}
	return data.TempUser, true
}

func (m *FileMirror) SetPendingTwoFactor(u session.User) error {
	return m.update(func(d *mirrorData) {
		d.User = nil
		d.PendingTwoFactor = true
		d.TempUser = &u
	})
}

func (m *FileMirror) ClearPendingTwoFactor() error {
	return m.update(func(d *mirrorData) {
		d.PendingTwoFactor = false
		d.TempUser = nil
	})
}

func (m *FileMirror) RedirectTarget() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := m.read()
	if err != nil {
		return ""
	}
	return data.RedirectAfter2FA
}

func (m *FileMirror) SetRedirectTarget(path string) error {
	return m.update(func(d *mirrorData) { d.RedirectAfter2FA = path })
}

func (m *FileMirror) ClearRedirectTarget() error {
	return m.update(func(d *mirrorData) { d.RedirectAfter2FA = "" })
}

func (m *FileMirror) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session mirror: %w", err)
	}
	return nil
}

func (m *FileMirror) update(fn func(*mirrorData)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.read()
	if err != nil {
		// A corrupt mirror is replaced rather than trusted.
		data = &mirrorData{}
	}
	fn(data)
	return m.write(data)
}

func (m *FileMirror) read() (*mirrorData, error) {
	raw, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return &mirrorData{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session mirror: %w", err)
	}

	var data mirrorData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse session mirror: %w", err)
	}
	return &data, nil
}

func (m *FileMirror) write(data *mirrorData) error {
	if *data == (mirrorData{}) {
		if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove session mirror: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session mirror: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("failed to write session mirror: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("failed to replace session mirror: %w", err)
	}
	return nil
}

func sanitize(name string) string {
	out := make([]rune, 0, len(name))
	for _, char := range name {
		if (char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '-' ||
			char == '_' {
			out = append(out, char)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

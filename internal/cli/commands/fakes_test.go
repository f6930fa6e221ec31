package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alderburg/Teste-sub007/internal/cli/auth"
	"github.com/alderburg/Teste-sub007/internal/cli/config"
	"github.com/alderburg/Teste-sub007/internal/session"
)

const validCode = "123456"

type fakeAccount struct {
	user     session.User
	password string
}

// fakeGestor is an in-memory gestor API. Tokens are "pending-<id>" or
// "active-<id>"; revoked tokens are rejected.
type fakeGestor struct {
	*httptest.Server

	mu       sync.Mutex
	accounts map[string]fakeAccount
	revoked  map[string]bool
	calls    []string
	down     bool
}

func newFakeGestor(t *testing.T, accounts ...fakeAccount) *fakeGestor {
	t.Helper()
	f := &fakeGestor{
		accounts: map[string]fakeAccount{},
		revoked:  map[string]bool{},
	}
	for _, a := range accounts {
		f.accounts[a.user.Username] = a
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", f.login)
	mux.HandleFunc("/api/verify-2fa", f.verify)
	mux.HandleFunc("/api/user", f.currentUser)
	mux.HandleFunc("/api/auth/2fa-session-status", f.status)
	mux.HandleFunc("/api/logout", f.logout)
	mux.HandleFunc("/api/register", f.register)
	mux.HandleFunc("/api/2fa/setup", f.setup)
	mux.HandleFunc("/api/2fa/enable", f.enable)

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, r.Method+" "+r.URL.Path)
		down := f.down
		f.mu.Unlock()
		if down {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Database unavailable"})
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeGestor) server() *config.Server {
	return &config.Server{URL: f.URL, Alias: "test"}
}

func (f *fakeGestor) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeGestor) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// session returns the account and stage behind the bearer token.
func (f *fakeGestor) session(r *http.Request) (fakeAccount, string, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	stage, id, ok := strings.Cut(token, "-")
	if !ok || f.revoked[token] {
		return fakeAccount{}, "", false
	}
	for _, a := range f.accounts {
		if a.user.ID == id {
			return a, stage, true
		}
	}
	return fakeAccount{}, "", false
}

func (f *fakeGestor) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if (a.user.Username == req.Identifier || a.user.Email == req.Identifier) && a.password == req.Password {
			if a.user.TwoFactorEnabled {
				writeJSON(w, http.StatusOK, map[string]interface{}{"requires2FA": true, "user": a.user, "token": "pending-" + a.user.ID})
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"requires2FA": false, "user": a.user, "token": "active-" + a.user.ID})
			return
		}
	}
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Usuário ou senha inválidos"})
}

func (f *fakeGestor) verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		Code   string `json:"code"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()
	a, stage, ok := f.session(r)
	if !ok || stage != "pending" || a.user.ID != req.UserID {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Sessão de verificação expirada"})
		return
	}
	if req.Code != validCode {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Código inválido"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": a.user, "token": "active-" + a.user.ID})
}

func (f *fakeGestor) currentUser(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, _, ok := f.session(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Not authenticated"})
		return
	}
	writeJSON(w, http.StatusOK, a.user)
}

func (f *fakeGestor) status(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, stage, ok := f.session(r)
	writeJSON(w, http.StatusOK, session.TwoFactorStatus{
		Authenticated:        ok,
		RequiresVerification: ok && stage == "pending",
	})
}

func (f *fakeGestor) logout(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")] = true
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (f *fakeGestor) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.accounts[req.Username]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "Nome de usuário já existe"})
		return
	}
	user := session.User{ID: fmt.Sprintf("u%d", len(f.accounts)+1), Username: req.Username, Email: req.Email, Role: "user"}
	f.accounts[req.Username] = fakeAccount{user: user, password: req.Password}
	writeJSON(w, http.StatusCreated, user)
}

func (f *fakeGestor) setup(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, stage, ok := f.session(r); !ok || stage != "active" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Not authenticated"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"secret":     "JBSWY3DPEHPK3PXP",
		"otpauthUrl": "otpauth://totp/Gestor:maria?secret=JBSWY3DPEHPK3PXP&issuer=Gestor",
		"qrCode":     "data:image/png;base64,iVBORw0KGgo=",
	})
}

func (f *fakeGestor) enable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()
	a, stage, ok := f.session(r)
	if !ok || stage != "active" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Not authenticated"})
		return
	}
	if req.Code != validCode {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Código inválido"})
		return
	}
	a.user.TwoFactorEnabled = true
	f.accounts[a.user.Username] = a
	writeJSON(w, http.StatusOK, a.user)
}

// memoryTokenStore replaces the keyring.
type memoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{tokens: map[string]string{}}
}

func (m *memoryTokenStore) SaveToken(serverURL, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[serverURL] = token
	return nil
}

func (m *memoryTokenStore) LoadToken(serverURL string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[serverURL]
	if !ok {
		return "", auth.ErrNotAuthenticated
	}
	return token, nil
}

func (m *memoryTokenStore) DeleteToken(serverURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, serverURL)
	return nil
}

// scriptedPrompter answers prompts from fixed lists.
type scriptedPrompter struct {
	passwords []string
	codes     []string
}

func (p *scriptedPrompter) Password(string) (string, error) {
	if len(p.passwords) == 0 {
		return "", errors.New("no password available")
	}
	v := p.passwords[0]
	p.passwords = p.passwords[1:]
	return v, nil
}

func (p *scriptedPrompter) Code(string) (string, error) {
	if len(p.codes) == 0 {
		return "", errors.New("verification cancelled")
	}
	v := p.codes[0]
	p.codes = p.codes[1:]
	return v, nil
}

var (
	maria = fakeAccount{
		user:     session.User{ID: "u1", Username: "maria", Email: "maria@example.com", Role: "admin"},
		password: "s3cret-pass",
	}
	joao = fakeAccount{
		user:     session.User{ID: "u2", Username: "joao", Email: "joao@example.com", Role: "user", TwoFactorEnabled: true},
		password: "outra-senha",
	}
)

// testEnv bundles the injected state shared by consecutive command runs.
type testEnv struct {
	gestor *fakeGestor
	tokens *memoryTokenStore
	mirror *session.MemoryMirror
}

func newTestEnv(t *testing.T, accounts ...fakeAccount) *testEnv {
	return &testEnv{
		gestor: newFakeGestor(t, accounts...),
		tokens: newMemoryTokenStore(),
		mirror: session.NewMemoryMirror(),
	}
}

func (e *testEnv) options(out *strings.Builder, extra ...Option) []Option {
	return append([]Option{
		WithServer(e.gestor.server()),
		WithTokenStore(e.tokens),
		WithMirror(e.mirror),
		WithOutput(out),
		WithPrompter(&scriptedPrompter{}),
	}, extra...)
}

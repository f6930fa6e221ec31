package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alderburg/Teste-sub007/internal/cli/auth"
	"github.com/alderburg/Teste-sub007/internal/session"
)

// memoryTokenStore is a simple in-memory token store for testing
type memoryTokenStore struct {
	tokens map[string]string
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{tokens: make(map[string]string)}
}

func (m *memoryTokenStore) SaveToken(serverURL, token string) error {
	m.tokens[serverURL] = token
	return nil
}

func (m *memoryTokenStore) LoadToken(serverURL string) (string, error) {
	token, ok := m.tokens[serverURL]
	if !ok {
		return "", auth.ErrNotAuthenticated
	}
	return token, nil
}

func (m *memoryTokenStore) DeleteToken(serverURL string) error {
	delete(m.tokens, serverURL)
	return nil
}

func TestClient_SendsCacheBustingHeadersAndCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "no-cache, no-store, must-revalidate", r.Header.Get("Cache-Control"))
		assert.Equal(t, "no-cache", r.Header.Get("Pragma"))
		assert.Equal(t, "0", r.Header.Get("Expires"))

		switch r.URL.Path {
		case "/api/login":
			http.SetCookie(w, &http.Cookie{Name: "gestor_session", Value: "cookie-tok", Path: "/"})
			json.NewEncoder(w).Encode(map[string]interface{}{
				"requires2FA": false,
				"token":       "bearer-tok",
				"user":        map[string]interface{}{"id": "u1", "username": "maria"},
			})
		case "/api/user":
			cookie, err := r.Cookie("gestor_session")
			require.NoError(t, err)
			assert.Equal(t, "cookie-tok", cookie.Value)
			assert.Equal(t, "Bearer bearer-tok", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]interface{}{"id": "u1", "username": "maria", "twoFactorEnabled": true})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.Login(context.Background(), session.LoginInput{Identifier: "maria", Password: "x"})
	require.NoError(t, err)
	assert.False(t, res.RequiresTwoFactor)
	assert.Equal(t, "u1", res.User.ID)

	user, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "maria", user.Username)
	assert.True(t, user.TwoFactorEnabled)
}

func TestClient_ErrorMessageVerbatim(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "error field", status: http.StatusUnauthorized, body: `{"error":"Usuário ou senha inválidos"}`, want: "Usuário ou senha inválidos"},
		{name: "message field", status: http.StatusBadRequest, body: `{"message":"Código inválido"}`, want: "Código inválido"},
		{name: "plain text", status: http.StatusBadGateway, body: "upstream down", want: "upstream down"},
		{name: "empty", status: http.StatusServiceUnavailable, body: "", want: "request failed (status 503)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := New(srv.URL).Login(context.Background(), session.LoginInput{Identifier: "a", Password: "b"})
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
		})
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	assert.True(t, IsUnauthorized(&APIError{StatusCode: 401}))
	assert.False(t, IsUnauthorized(&APIError{StatusCode: 500}))
	assert.True(t, IsUnavailable(&APIError{StatusCode: 503}))
	assert.False(t, IsUnavailable(&APIError{StatusCode: 401}))
	assert.True(t, IsUnavailable(errors.New("dial tcp: connection refused")))
	assert.False(t, IsUnavailable(nil))
}

func TestClient_PendingTokenUsedForVerification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/login":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"requires2FA": true,
				"token":       "pending-tok",
				"user":        map[string]interface{}{"id": "u1"},
			})
		case "/api/verify-2fa":
			assert.Equal(t, "Bearer pending-tok", r.Header.Get("Authorization"))
			var req VerifyTwoFactorRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, VerifyTwoFactorRequest{UserID: "u1", Code: "123456"}, req)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"token": "full-tok",
				"user":  map[string]interface{}{"id": "u1"},
			})
		}
	}))
	defer srv.Close()

	store := newMemoryTokenStore()
	c := New(srv.URL)
	c.SetTokenStore(store)

	res, err := c.Login(context.Background(), session.LoginInput{Identifier: "maria", Password: "x"})
	require.NoError(t, err)
	assert.True(t, res.RequiresTwoFactor)
	assert.Empty(t, store.tokens, "pending token must not be persisted")

	vres, err := c.VerifyTwoFactor(context.Background(), "u1", "123456")
	require.NoError(t, err)
	require.NoError(t, c.SaveToken(vres.Token))
	assert.Equal(t, "full-tok", store.tokens[srv.URL])
}

func TestClient_TokenStoreLoadAndClear(t *testing.T) {
	var sawBearer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawBearer = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"Unauthorized"}`)
	}))
	defer srv.Close()

	store := newMemoryTokenStore()
	store.tokens[srv.URL] = "stored-tok"

	c := New(srv.URL + "/")
	c.SetTokenStore(store)

	_, err := c.CurrentUser(context.Background())
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, "Bearer stored-tok", sawBearer)

	require.NoError(t, c.ClearCredentials())
	assert.Empty(t, store.tokens)

	_, _ = c.CurrentUser(context.Background())
	assert.Empty(t, sawBearer)
}

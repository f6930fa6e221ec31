package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/alderburg/Teste-sub007/internal/cli/auth"
	"github.com/alderburg/Teste-sub007/internal/session"
)

// DefaultTimeout bounds every API request.
const DefaultTimeout = 10 * time.Second

// APIError is a non-2xx answer from the API. Message is the server's own
// error text.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed (status %d)", e.StatusCode)
}

// IsUnauthorized reports whether err is a 401 or 403 answer.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}

// IsUnavailable reports whether err means the server could not be reached
// or failed, as opposed to refusing the session.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// Client talks to the gestor API. It keeps the session cookie in a jar and
// mirrors the session token as a bearer header, and implements both
// session.API and session.CredentialStore.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     auth.TokenStore

	mu    sync.RWMutex
	token string
}

var (
	_ session.API             = (*Client)(nil)
	_ session.CredentialStore = (*Client)(nil)
)

// New creates a new API client for baseURL (e.g. https://gestor.example.com).
func New(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Jar:     jar,
		},
	}
}

// SetHTTPClient sets a custom HTTP client. A cookie jar is attached if it
// has none.
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	if httpClient.Jar == nil {
		httpClient.Jar, _ = cookiejar.New(nil)
	}
	c.httpClient = httpClient
}

// SetTokenStore sets where session tokens persist between runs and loads
// any token already stored for this server.
func (c *Client) SetTokenStore(store auth.TokenStore) {
	c.tokens = store
	if store == nil {
		return
	}
	if token, err := store.LoadToken(c.baseURL); err == nil {
		c.setToken(token)
	}
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SaveToken keeps a completed session's token and persists it.
func (c *Client) SaveToken(token string) error {
	c.setToken(token)
	if c.tokens == nil {
		return nil
	}
	return c.tokens.SaveToken(c.baseURL, token)
}

// ClearCredentials drops the token, the cookies and the persisted token.
func (c *Client) ClearCredentials() error {
	c.setToken("")
	if jar, err := cookiejar.New(nil); err == nil {
		c.httpClient.Jar = jar
	}
	if c.tokens == nil {
		return nil
	}
	return c.tokens.DeleteToken(c.baseURL)
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// CurrentUser calls GET /api/user.
func (c *Client) CurrentUser(ctx context.Context) (*session.User, error) {
	var user *session.User
	if err := c.do(ctx, http.MethodGet, "/api/user", nil, &user); err != nil {
		return nil, err
	}
	return user, nil
}

// TwoFactorStatus calls GET /api/auth/2fa-session-status.
func (c *Client) TwoFactorStatus(ctx context.Context) (*session.TwoFactorStatus, error) {
	var status session.TwoFactorStatus
	if err := c.do(ctx, http.MethodGet, "/api/auth/2fa-session-status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Login calls POST /api/login. The returned token, pending or full, is used
// for subsequent requests in this process but is not persisted.
func (c *Client) Login(ctx context.Context, in session.LoginInput) (*session.LoginResult, error) {
	var res session.LoginResult
	if err := c.do(ctx, http.MethodPost, "/api/login", in, &res); err != nil {
		return nil, err
	}
	if res.Token != "" {
		c.setToken(res.Token)
	}
	return &res, nil
}

// VerifyTwoFactorRequest is the body of POST /api/verify-2fa.
type VerifyTwoFactorRequest struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
}

// VerifyTwoFactor calls POST /api/verify-2fa.
func (c *Client) VerifyTwoFactor(ctx context.Context, userID, code string) (*session.VerifyResult, error) {
	var res session.VerifyResult
	if err := c.do(ctx, http.MethodPost, "/api/verify-2fa", VerifyTwoFactorRequest{UserID: userID, Code: code}, &res); err != nil {
		return nil, err
	}
	if res.Token != "" {
		c.setToken(res.Token)
	}
	return &res, nil
}

// Logout calls POST /api/logout.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/logout", nil, nil)
}

// RegisterRequest is the signup body.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register calls POST /api/register.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*session.User, error) {
	var user session.User
	if err := c.do(ctx, http.MethodPost, "/api/register", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// TwoFactorSetup is the enrollment material for an authenticator app.
type TwoFactorSetup struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
	QRCode     string `json:"qrCode"`
}

// SetupTwoFactor calls POST /api/2fa/setup.
func (c *Client) SetupTwoFactor(ctx context.Context) (*TwoFactorSetup, error) {
	var setup TwoFactorSetup
	if err := c.do(ctx, http.MethodPost, "/api/2fa/setup", nil, &setup); err != nil {
		return nil, err
	}
	return &setup, nil
}

// EnableTwoFactor calls POST /api/2fa/enable with the first code.
func (c *Client) EnableTwoFactor(ctx context.Context, code string) (*session.User, error) {
	var user session.User
	if err := c.do(ctx, http.MethodPost, "/api/2fa/enable", map[string]string{"code": code}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// do sends a request with credentials and cache-defeating headers. A cached
// 200 after logout would re-admit a signed-out user.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Expires", "0")
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		apiErr.Message = payload.Error
		if apiErr.Message == "" {
			apiErr.Message = payload.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	service = "gestor-cli"
)

// ErrNotAuthenticated is returned when no token is stored for a server.
var ErrNotAuthenticated = errors.New("not authenticated. Please run 'gestor login' first")

// getKeyringKey returns a unique key for storing session tokens per server
func getKeyringKey(serverURL string) string {
	return fmt.Sprintf("session-%s", strings.TrimRight(serverURL, "/"))
}

// SaveToken persists the session token securely in the OS keychain/credential manager
func SaveToken(serverURL, token string) error {
	key := getKeyringKey(serverURL)
	if err := keyring.Set(service, key, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// LoadToken retrieves the session token from the OS keychain/credential manager
func LoadToken(serverURL string) (string, error) {
	key := getKeyringKey(serverURL)
	token, err := keyring.Get(service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotAuthenticated
		}
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return token, nil
}

// DeleteToken removes the session token from the OS keychain/credential manager
func DeleteToken(serverURL string) error {
	key := getKeyringKey(serverURL)
	if err := keyring.Delete(service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

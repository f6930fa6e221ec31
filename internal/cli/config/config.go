package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/alderburg/Teste-sub007/internal/session"
)

const ConfigFileName = "gestor.json"

// Server represents a gestor API server configuration
type Server struct {
	URL   string `json:"url"`
	Alias string `json:"alias"`
}

// Validate checks that the server URL is usable
func (s *Server) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("server URL is empty. Please edit gestor.json and add a valid URL")
	}
	u, err := url.Parse(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server URL '%s', expected http(s)://host[:port]", s.URL)
	}
	return nil
}

// Config represents the CLI configuration file
type Config struct {
	Servers []Server `json:"servers"`

	// Routes overrides the application's route names; empty fields keep
	// the defaults.
	Routes session.Routes `json:"routes,omitzero"`

	// MaxRedirects bounds automatic redirects per run (default 5)
	MaxRedirects int `json:"maxRedirects,omitempty"`

	// MaxCodeAttempts limits failed 2FA code entries per login (0 = unlimited)
	MaxCodeAttempts int `json:"maxCodeAttempts,omitempty"`
}

// DefaultConfig returns a default configuration with an example server
func DefaultConfig() *Config {
	return &Config{
		Servers: []Server{
			{
				URL:   "",
				Alias: "e.g. production",
			},
		},
	}
}

// FindConfigFile searches for gestor.json in current directory and parent directories
func FindConfigFile() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	// Search upwards until we find gestor.json or reach root
	dir := currentDir
	for {
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("gestor.json not found in %s or any parent directory", currentDir)
}

// Load reads the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	for i := range cfg.Servers {
		cfg.Servers[i].URL = strings.TrimRight(cfg.Servers[i].URL, "/")
	}
	cfg.Routes = cfg.Routes.WithDefaults()

	return &cfg, nil
}

// LoadFromCurrentDir loads config from current directory or parent directories
func LoadFromCurrentDir() (*Config, error) {
	configPath, err := FindConfigFile()
	if err != nil {
		return nil, err
	}

	return Load(configPath)
}

// Save writes the configuration to a file
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetServerByAlias returns a server by its alias
func (c *Config) GetServerByAlias(alias string) (*Server, error) {
	for i := range c.Servers {
		if c.Servers[i].Alias == alias {
			return &c.Servers[i], nil
		}
	}
	return nil, fmt.Errorf("server with alias '%s' not found", alias)
}

// GetDefaultServer returns the first server in the list
func (c *Config) GetDefaultServer() (*Server, error) {
	if len(c.Servers) == 0 {
		return nil, fmt.Errorf("no servers configured in gestor.json")
	}
	return &c.Servers[0], nil
}

package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alderburg/Teste-sub007/internal/cli/config"
)

// NewInitCmd creates the init command
func NewInitCmd() *cobra.Command {
	var alias string

	cmd := &cobra.Command{
		Use:   "init <server-url>",
		Short: "Add a gestor server to ./gestor.json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.OutOrStdout(), args[0], alias)
		},
	}

	cmd.Flags().StringVar(&alias, "alias", "", "Name for the server (defaults to production, then server-N)")

	return cmd
}

func runInit(out io.Writer, serverURL, alias string) error {
	server := config.Server{URL: strings.TrimRight(serverURL, "/"), Alias: alias}
	if err := server.Validate(); err != nil {
		return err
	}

	currentDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	configPath := filepath.Join(currentDir, config.ConfigFileName)

	var cfg *config.Config
	isNewConfig := false

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load existing config: %w", err)
		}
		fmt.Fprintf(out, "Found existing %s\n", config.ConfigFileName)
	} else {
		cfg = &config.Config{
			Servers: []config.Server{},
		}
		isNewConfig = true
	}

	for _, existing := range cfg.Servers {
		if existing.URL == server.URL {
			fmt.Fprintf(out, "Server %s already exists in %s\n", server.URL, config.ConfigFileName)
			return nil
		}
	}

	if server.Alias == "" {
		if len(cfg.Servers) == 0 {
			server.Alias = "production"
		} else {
			server.Alias = fmt.Sprintf("server-%d", len(cfg.Servers)+1)
		}
	}
	if _, err := cfg.GetServerByAlias(server.Alias); err == nil {
		return fmt.Errorf("alias '%s' is already used in %s", server.Alias, config.ConfigFileName)
	}

	cfg.Servers = append(cfg.Servers, server)

	if err := config.Save(configPath, cfg); err != nil {
		return err
	}

	if isNewConfig {
		fmt.Fprintf(out, "✓ Created ./%s with server %s (%s)\n", config.ConfigFileName, server.URL, server.Alias)
	} else {
		fmt.Fprintf(out, "✓ Added server %s (%s) to ./%s\n", server.URL, server.Alias, config.ConfigFileName)
	}

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Run 'gestor signup' if you don't have an account yet")
	fmt.Fprintln(out, "  2. Run 'gestor login' to authenticate")

	return nil
}

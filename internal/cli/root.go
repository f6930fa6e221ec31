package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alderburg/Teste-sub007/internal/cli/commands"
)

var version = "dev" // Will be set during build

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "gestor",
	Short: "Gestor - sign in and check access from the terminal",
	Long: `Gestor CLI - Manage your gestor session from the terminal.

Sign in (with two-factor verification when enabled), check which pages your
session can open and sign out again.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		commands.SetLogLevel(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envOr("GESTOR_LOG_LEVEL", "warn"), "Log level for session diagnostics (debug, info, warn, error)")

	// Add version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gestor version %s\n", version)
		},
	})

	// Add all subcommands
	rootCmd.AddCommand(commands.NewInitCmd())
	rootCmd.AddCommand(commands.NewSignupCmd())
	rootCmd.AddCommand(commands.NewLoginCmd())
	rootCmd.AddCommand(commands.NewLogoutCmd())
	rootCmd.AddCommand(commands.NewWhoamiCmd())
	rootCmd.AddCommand(commands.NewOpenCmd())
	rootCmd.AddCommand(commands.NewTwoFactorCmd())
	rootCmd.AddCommand(commands.NewSelectServerCmd())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

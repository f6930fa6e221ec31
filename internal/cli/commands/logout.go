package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewLogoutCmd creates the logout command
func NewLogoutCmd() *cobra.Command {
	var serverAlias string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogout(cmd.Context(), serverAlias, WithOutput(cmd.OutOrStdout()))
		},
	}

	cmd.Flags().StringVar(&serverAlias, "server", "", "Server alias (uses the selected server if not specified)")

	return cmd
}

func runLogout(ctx context.Context, serverAlias string, opts ...Option) error {
	o, err := resolve(serverAlias, opts)
	if err != nil {
		return err
	}

	apiClient := o.apiClient()
	m := o.sessionManager(apiClient, newTerminalNavigator(o.out))

	if err := m.Logout.Logout(ctx); err != nil {
		return fmt.Errorf("logout incomplete: %w", err)
	}

	fmt.Fprintf(o.out, "✓ Logged out of %s\n", o.server.Alias)
	return nil
}

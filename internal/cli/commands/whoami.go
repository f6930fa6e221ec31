package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alderburg/Teste-sub007/internal/cli/client"
	"github.com/alderburg/Teste-sub007/internal/session"
)

var (
	// ErrNotLoggedIn is returned when the server has no session for us.
	ErrNotLoggedIn = errors.New("not logged in. Please run 'gestor login' first")
	// ErrServiceUnavailable is returned when the session could not be checked.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// NewWhoamiCmd creates the whoami command
func NewWhoamiCmd() *cobra.Command {
	var serverAlias string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWhoami(cmd.Context(), serverAlias, WithOutput(cmd.OutOrStdout()))
		},
	}

	cmd.Flags().StringVar(&serverAlias, "server", "", "Server alias (uses the selected server if not specified)")

	return cmd
}

func runWhoami(ctx context.Context, serverAlias string, opts ...Option) error {
	o, err := resolve(serverAlias, opts)
	if err != nil {
		return err
	}

	apiClient := o.apiClient()
	m := o.sessionManager(apiClient, newTerminalNavigator(o.out))

	state, err := m.Prober.Probe(ctx)
	if err != nil {
		if client.IsUnavailable(err) && !errors.Is(err, session.ErrNoUser) {
			return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		return ErrNotLoggedIn
	}

	user, ok := session.SessionUser(state)
	if !ok {
		return ErrNotLoggedIn
	}

	status := m.Prober.TwoFactorStatus(ctx)
	if status.Authenticated {
		m.Prober.Settle(user, status)
	}
	sessionLabel := "active"
	if status.RequiresVerification {
		sessionLabel = "awaiting two-factor verification"
	}

	w := tabwriter.NewWriter(o.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Server:\t%s (%s)\n", o.server.Alias, o.server.URL)
	fmt.Fprintf(w, "User:\t%s\n", user.Username)
	fmt.Fprintf(w, "Email:\t%s\n", user.Email)
	if user.Role != "" {
		fmt.Fprintf(w, "Role:\t%s\n", user.Role)
	}
	fmt.Fprintf(w, "Two-factor:\t%s\n", enabledLabel(user.TwoFactorEnabled))
	fmt.Fprintf(w, "Session:\t%s\n", sessionLabel)
	return w.Flush()
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

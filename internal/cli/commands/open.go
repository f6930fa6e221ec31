package commands

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/alderburg/Teste-sub007/internal/session"
)

type openArgs struct {
	Route       string
	Browser     bool
	ServerAlias string
}

// NewOpenCmd creates the open command
func NewOpenCmd() *cobra.Command {
	var args openArgs

	cmd := &cobra.Command{
		Use:   "open [route]",
		Short: "Check access to an application page",
		Long: `Check access to an application page, following the redirects the
application would apply.

Examples:
  $ gestor open                 # The dashboard
  $ gestor open /produtos       # A protected page
  $ gestor open /acessar        # The sign-in page
  $ gestor open /clientes --browser`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			if len(positional) > 0 {
				args.Route = positional[0]
			}
			return runOpen(cmd.Context(), args, WithOutput(cmd.OutOrStdout()))
		},
	}

	cmd.Flags().BoolVar(&args.Browser, "browser", false, "Open the final page in the default browser")
	cmd.Flags().StringVar(&args.ServerAlias, "server", "", "Server alias (uses the selected server if not specified)")

	return cmd
}

func runOpen(ctx context.Context, args openArgs, opts ...Option) error {
	o, err := resolve(args.ServerAlias, opts)
	if err != nil {
		return err
	}

	apiClient := o.apiClient()
	m := o.sessionManager(apiClient, newTerminalNavigator(o.out))

	route := args.Route
	if route == "" {
		route = m.Routes.Dashboard
	}
	if session.SafeRedirect(route) == "" {
		return fmt.Errorf("route must be a path starting with '/', got '%s'", route)
	}

	for {
		u, err := url.Parse(route)
		if err != nil {
			return fmt.Errorf("invalid route '%s': %w", route, err)
		}

		var d session.Decision
		if m.Routes.IsAuthOnly(u.Path) {
			d = m.Landing.Evaluate(ctx, u)
		} else {
			d = m.RequireAuth.Evaluate(ctx, route)
		}

		switch d.Action {
		case session.Redirect:
			route = d.Navigation.Path
		case session.Halt:
			return fmt.Errorf("stopped at %s: %w", d.Navigation.Path, session.ErrRedirectLoop)
		case session.Discard:
			return fmt.Errorf("navigation to %s was superseded", route)
		default:
			return renderRoute(o, m, route, args.Browser)
		}
	}
}

func renderRoute(o *runOptions, m *session.Manager, route string, browser bool) error {
	fmt.Fprintf(o.out, "✓ %s\n", route)
	if user, ok := session.CurrentUser(m.Prober.State()); ok {
		fmt.Fprintf(o.out, "  Signed in as %s (%s)\n", user.Username, user.Email)
	}
	if route == m.Routes.TwoFactor {
		fmt.Fprintln(o.out, "  Two-factor verification pending. Run 'gestor login' to finish signing in.")
	}

	if !browser {
		return nil
	}
	pageURL := o.server.URL + route
	if err := openBrowser(pageURL); err != nil {
		return fmt.Errorf("failed to open browser: %w\nPlease visit: %s", err, pageURL)
	}
	return nil
}

// openBrowser opens the URL in the default browser
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}

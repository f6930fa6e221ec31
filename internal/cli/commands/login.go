package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alderburg/Teste-sub007/internal/session"
)

type loginArgs struct {
	Identifier  string
	Password    string
	Code        string
	Redirect    string
	ServerAlias string
}

// NewLoginCmd creates the login command
func NewLoginCmd() *cobra.Command {
	var args loginArgs

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to a gestor server",
		Long: `Sign in to a gestor server.

When the account has two-factor authentication enabled you are asked for the
6-digit code from your authenticator app after the password.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd.Context(), args, WithOutput(cmd.OutOrStdout()))
		},
	}

	cmd.Flags().StringVarP(&args.Identifier, "user", "u", "", "Username or email (or set GESTOR_IDENTIFIER)")
	cmd.Flags().StringVar(&args.Password, "password", "", "Password (or set GESTOR_PASSWORD, will prompt if not provided)")
	cmd.Flags().StringVar(&args.Code, "code", "", "Two-factor code (or set GESTOR_CODE, will prompt if required)")
	cmd.Flags().StringVar(&args.Redirect, "redirect", "", "Page to open after signing in")
	cmd.Flags().StringVar(&args.ServerAlias, "server", "", "Server alias (uses the selected server if not specified)")

	return cmd
}

func runLogin(ctx context.Context, args loginArgs, opts ...Option) error {
	// Check for environment variables (useful for CI/CD)
	if args.Identifier == "" {
		args.Identifier = os.Getenv("GESTOR_IDENTIFIER")
	}
	if args.Password == "" {
		args.Password = os.Getenv("GESTOR_PASSWORD")
	}
	if args.Code == "" {
		args.Code = os.Getenv("GESTOR_CODE")
	}

	if args.Identifier == "" {
		return fmt.Errorf("username or email is required (use --user flag or GESTOR_IDENTIFIER env var)")
	}

	o, err := resolve(args.ServerAlias, opts)
	if err != nil {
		return err
	}

	if args.Password == "" {
		args.Password, err = o.prompter.Password("Password")
		if err != nil {
			return err
		}
	}

	apiClient := o.apiClient()
	nav := newTerminalNavigator(o.out)
	m := o.sessionManager(apiClient, nav)

	fmt.Fprintf(o.out, "Logging in to %s (%s)...\n", o.server.Alias, o.server.URL)

	step, err := m.Login.SubmitCredentials(ctx, session.LoginInput{
		Identifier: args.Identifier,
		Password:   args.Password,
	}, args.Redirect)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if step == session.StepTwoFactorForm {
		fmt.Fprintln(o.out, "Two-factor authentication is enabled for this account.")
	}
	code := args.Code
	for step == session.StepTwoFactorForm {
		if code == "" {
			code, err = o.prompter.Code("Verification code")
			if err != nil {
				m.Login.Reset()
				return err
			}
		}

		step, err = m.Login.SubmitCode(ctx, code)
		code = ""
		if errors.Is(err, session.ErrTooManyAttempts) {
			return fmt.Errorf("login failed: %w", err)
		}
		if err != nil {
			fmt.Fprintf(o.out, "✗ %v\n", err)
		}
	}

	user, ok := session.CurrentUser(m.Prober.State())
	if !ok {
		return fmt.Errorf("login failed: session was not established")
	}

	fmt.Fprintln(o.out, "✓ Login successful!")
	fmt.Fprintf(o.out, "  User: %s (%s)\n", user.Username, user.Email)
	if user.Role != "" {
		fmt.Fprintf(o.out, "  Role: %s\n", user.Role)
	}

	return nil
}

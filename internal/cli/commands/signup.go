package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/alderburg/Teste-sub007/internal/cli/client"
)

type signupArgs struct {
	Username    string `validate:"required,min=3,max=50"`
	Email       string `validate:"required,email"`
	Password    string `validate:"required,min=8"`
	ServerAlias string
}

// NewSignupCmd creates the signup command
func NewSignupCmd() *cobra.Command {
	var args signupArgs

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account on a gestor server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSignup(cmd.Context(), args, WithOutput(cmd.OutOrStdout()))
		},
	}

	cmd.Flags().StringVar(&args.Username, "username", "", "Username")
	cmd.Flags().StringVar(&args.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&args.Password, "password", "", "Password (or set GESTOR_PASSWORD, will prompt if not provided)")
	cmd.Flags().StringVar(&args.ServerAlias, "server", "", "Server alias (uses the selected server if not specified)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runSignup(ctx context.Context, args signupArgs, opts ...Option) error {
	if args.Password == "" {
		args.Password = os.Getenv("GESTOR_PASSWORD")
	}

	o, err := resolve(args.ServerAlias, opts)
	if err != nil {
		return err
	}

	if args.Password == "" {
		password, err := o.prompter.Password("Password")
		if err != nil {
			return err
		}
		confirm, err := o.prompter.Password("Confirm password")
		if err != nil {
			return err
		}
		if password != confirm {
			return fmt.Errorf("passwords do not match")
		}
		args.Password = password
	}

	if err := validator.New().Struct(args); err != nil {
		return fmt.Errorf("invalid signup form: %w", err)
	}

	apiClient := o.apiClient()
	user, err := apiClient.Register(ctx, client.RegisterRequest{
		Username: args.Username,
		Email:    args.Email,
		Password: args.Password,
	})
	if err != nil {
		return fmt.Errorf("signup failed: %w", err)
	}

	fmt.Fprintf(o.out, "✓ Account created for %s (%s)\n", user.Username, user.Email)
	fmt.Fprintln(o.out, "\nNext steps:")
	fmt.Fprintln(o.out, "  1. Run 'gestor login' to sign in")
	fmt.Fprintln(o.out, "  2. Run 'gestor 2fa setup' to protect the account with an authenticator app")
	return nil
}

package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alderburg/Teste-sub007/internal/cli/client"
)

const pngDataURLPrefix = "data:image/png;base64,"

// NewTwoFactorCmd creates the 2fa command group
func NewTwoFactorCmd() *cobra.Command {
	var serverAlias string

	cmd := &cobra.Command{
		Use:   "2fa",
		Short: "Manage two-factor authentication",
	}
	cmd.PersistentFlags().StringVar(&serverAlias, "server", "", "Server alias (uses the selected server if not specified)")

	var qrFile string
	setup := &cobra.Command{
		Use:   "setup",
		Short: "Generate a new authenticator secret",
		Long: `Generate a new authenticator secret for the signed-in account.

Add the secret to your authenticator app, then confirm it with
'gestor 2fa enable <code>'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTwoFactorSetup(cmd.Context(), serverAlias, qrFile, WithOutput(cmd.OutOrStdout()))
		},
	}
	setup.Flags().StringVar(&qrFile, "qr-file", "", "Write the QR code PNG to this file")

	enable := &cobra.Command{
		Use:   "enable [code]",
		Short: "Turn on two-factor authentication with a code from your app",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var code string
			if len(args) > 0 {
				code = args[0]
			}
			return runTwoFactorEnable(cmd.Context(), serverAlias, code, WithOutput(cmd.OutOrStdout()))
		},
	}

	cmd.AddCommand(setup, enable)
	return cmd
}

func runTwoFactorSetup(ctx context.Context, serverAlias, qrFile string, opts ...Option) error {
	o, err := resolve(serverAlias, opts)
	if err != nil {
		return err
	}

	apiClient := o.apiClient()
	setup, err := apiClient.SetupTwoFactor(ctx)
	if err != nil {
		if client.IsUnauthorized(err) {
			return ErrNotLoggedIn
		}
		return fmt.Errorf("failed to start two-factor setup: %w", err)
	}

	fmt.Fprintln(o.out, "Add this account to your authenticator app:")
	fmt.Fprintf(o.out, "  Secret: %s\n", setup.Secret)
	fmt.Fprintf(o.out, "  URL:    %s\n", setup.OTPAuthURL)

	if qrFile != "" {
		png, err := decodePNGDataURL(setup.QRCode)
		if err != nil {
			return err
		}
		if err := os.WriteFile(qrFile, png, 0600); err != nil {
			return fmt.Errorf("failed to write QR code: %w", err)
		}
		fmt.Fprintf(o.out, "  QR code written to %s\n", qrFile)
	}

	fmt.Fprintln(o.out, "\nThen run 'gestor 2fa enable <code>' with the code shown in the app.")
	return nil
}

func runTwoFactorEnable(ctx context.Context, serverAlias, code string, opts ...Option) error {
	if code == "" {
		code = os.Getenv("GESTOR_CODE")
	}

	o, err := resolve(serverAlias, opts)
	if err != nil {
		return err
	}

	if code == "" {
		code, err = o.prompter.Code("Verification code")
		if err != nil {
			return err
		}
	}
	if err := validateCode(code); err != nil {
		return fmt.Errorf("invalid verification code: %w", err)
	}

	apiClient := o.apiClient()
	user, err := apiClient.EnableTwoFactor(ctx, strings.TrimSpace(code))
	if err != nil {
		if client.IsUnauthorized(err) {
			return ErrNotLoggedIn
		}
		return fmt.Errorf("failed to enable two-factor authentication: %w", err)
	}

	fmt.Fprintf(o.out, "✓ Two-factor authentication enabled for %s\n", user.Username)
	fmt.Fprintln(o.out, "  You will be asked for a code on every sign-in.")
	return nil
}

func decodePNGDataURL(dataURL string) ([]byte, error) {
	if !strings.HasPrefix(dataURL, pngDataURLPrefix) {
		return nil, fmt.Errorf("server did not return a PNG QR code")
	}
	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, pngDataURLPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to decode QR code: %w", err)
	}
	return png, nil
}

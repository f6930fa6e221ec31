package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"
)

// Prompter asks the user for secrets and codes.
type Prompter interface {
	Password(label string) (string, error)
	Code(label string) (string, error)
}

type terminalPrompter struct{}

func (terminalPrompter) Password(label string) (string, error) {
	// Check if stdin is a terminal (not piped)
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("password is required in non-interactive mode (use --password flag or GESTOR_PASSWORD env var)")
	}
	fmt.Fprintf(os.Stderr, "%s: ", label)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(bytePassword), nil
}

func (terminalPrompter) Code(label string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("verification code is required in non-interactive mode (use --code flag or GESTOR_CODE env var)")
	}
	prompt := promptui.Prompt{
		Label:    label,
		Validate: validateCode,
	}
	code, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("verification cancelled: %w", err)
	}
	return strings.TrimSpace(code), nil
}

func validateCode(input string) error {
	input = strings.TrimSpace(input)
	if len(input) != 6 {
		return errors.New("the code has 6 digits")
	}
	for _, r := range input {
		if r < '0' || r > '9' {
			return errors.New("the code has only digits")
		}
	}
	return nil
}

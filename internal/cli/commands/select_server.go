package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/alderburg/Teste-sub007/internal/cli/config"
	"github.com/alderburg/Teste-sub007/internal/cli/serverselect"
	"github.com/alderburg/Teste-sub007/internal/cli/userconfig"
)

// NewSelectServerCmd creates the select-server command
func NewSelectServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select-server [url-or-alias]",
		Short: "Select the server to use for commands",
		Long: `Select the server to use for commands.

If no param is provided, an interactive prompt will be shown.

Examples:
  $ gestor select-server                             # Interactive selection
  $ gestor select-server https://gestor.example.com  # Select by URL
  $ gestor select-server production                  # Select by alias`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var urlOrAlias string
			if len(args) > 0 {
				urlOrAlias = args[0]
			}
			return runSelectServer(cmd.OutOrStdout(), urlOrAlias, serverselect.PromptServerSelection)
		},
	}

	return cmd
}

func runSelectServer(out io.Writer, urlOrAlias string, prompt serverselect.Prompt) error {
	cfg, err := config.LoadFromCurrentDir()
	if err != nil {
		return fmt.Errorf("failed to load config: %w\nRun 'gestor init' to create a configuration file", err)
	}

	var server *config.Server
	if urlOrAlias != "" {
		server, err = serverselect.GetServerByURLOrAlias(cfg, urlOrAlias)
	} else {
		server, err = prompt(cfg)
	}
	if err != nil {
		return err
	}

	if err := userconfig.SetSelectedServer(server.URL); err != nil {
		return fmt.Errorf("failed to save selected server: %w", err)
	}

	fmt.Fprintf(out, "Selected server: %s (%s)\n", server.Alias, server.URL)
	return nil
}

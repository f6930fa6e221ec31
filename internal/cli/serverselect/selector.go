package serverselect

import (
	"fmt"

	"github.com/alderburg/Teste-sub007/internal/cli/config"
	"github.com/alderburg/Teste-sub007/internal/cli/userconfig"
	"github.com/manifoldco/promptui"
)

// Prompt picks one of the configured servers interactively.
type Prompt func(projectConfig *config.Config) (*config.Server, error)

// ResolveServer determines which server to use based on the following priority:
// 1. If serverAlias flag is provided, use that server
// 2. If user has a selected server in their local config, use that
// 3. If only one server in project config, use that
// 4. Otherwise, prompt user to select a server interactively
func ResolveServer(projectConfig *config.Config, serverAlias string) (*config.Server, error) {
	return resolve(projectConfig, serverAlias, PromptServerSelection)
}

func resolve(projectConfig *config.Config, serverAlias string, prompt Prompt) (*config.Server, error) {
	// Priority 1: Use server alias if provided
	if serverAlias != "" {
		return projectConfig.GetServerByAlias(serverAlias)
	}

	// Priority 2: Use selected server from user config
	selectedURL, err := userconfig.GetSelectedServer()
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	if selectedURL != "" {
		server, err := getServerByURL(projectConfig, selectedURL)
		if err != nil {
			// Selected server no longer exists in project config, clear it and continue
			_ = userconfig.SetSelectedServer("")
		} else {
			return server, nil
		}
	}

	var server *config.Server
	if len(projectConfig.Servers) == 1 {
		// Priority 3: If only one server, use it automatically
		server = &projectConfig.Servers[0]
	} else {
		// Priority 4: Prompt user to select a server
		server, err = prompt(projectConfig)
		if err != nil {
			return nil, err
		}
	}

	if err := userconfig.SetSelectedServer(server.URL); err != nil {
		// Don't fail if we can't save, just continue
		fmt.Printf("Warning: failed to save selected server: %v\n", err)
	}

	return server, nil
}

// PromptServerSelection shows an interactive prompt for the user to select a server
func PromptServerSelection(projectConfig *config.Config) (*config.Server, error) {
	if len(projectConfig.Servers) == 0 {
		return nil, fmt.Errorf("no servers configured in %s", config.ConfigFileName)
	}

	type serverOption struct {
		Label  string
		Server *config.Server
	}

	options := make([]serverOption, len(projectConfig.Servers))
	for i := range projectConfig.Servers {
		server := &projectConfig.Servers[i]
		options[i] = serverOption{
			Label:  fmt.Sprintf("%s (%s)", server.Alias, server.URL),
			Server: server,
		}
	}

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ .Label | cyan }}",
		Inactive: "  {{ .Label }}",
		Selected: "{{ .Label | green }}",
	}

	prompt := promptui.Select{
		Label:     "Select a server",
		Items:     options,
		Templates: templates,
		Size:      10,
	}

	index, _, err := prompt.Run()
	if err != nil {
		return nil, fmt.Errorf("server selection cancelled: %w", err)
	}

	return options[index].Server, nil
}

func getServerByURL(cfg *config.Config, serverURL string) (*config.Server, error) {
	for i := range cfg.Servers {
		if cfg.Servers[i].URL == serverURL {
			return &cfg.Servers[i], nil
		}
	}
	return nil, fmt.Errorf("server with URL '%s' not found in project config", serverURL)
}

// GetServerByURLOrAlias finds a server by URL or alias
func GetServerByURLOrAlias(cfg *config.Config, urlOrAlias string) (*config.Server, error) {
	if server, err := getServerByURL(cfg, urlOrAlias); err == nil {
		return server, nil
	}
	if server, err := cfg.GetServerByAlias(urlOrAlias); err == nil {
		return server, nil
	}
	return nil, fmt.Errorf("server with URL or alias '%s' not found", urlOrAlias)
}

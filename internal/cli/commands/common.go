package commands

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/alderburg/Teste-sub007/internal/cli/auth"
	"github.com/alderburg/Teste-sub007/internal/cli/client"
	"github.com/alderburg/Teste-sub007/internal/cli/config"
	"github.com/alderburg/Teste-sub007/internal/cli/serverselect"
	"github.com/alderburg/Teste-sub007/internal/cli/userconfig"
	"github.com/alderburg/Teste-sub007/internal/logger"
	"github.com/alderburg/Teste-sub007/internal/session"
)

// Option overrides how a command finds its server and its local state.
type Option func(*runOptions)

type runOptions struct {
	cfg        *config.Config
	server     *config.Server
	out        io.Writer
	tokens     auth.TokenStore
	mirror     session.Mirror
	httpClient *http.Client
	prompter   Prompter
	logger     *zerolog.Logger
}

// WithServer skips gestor.json lookup and server selection.
func WithServer(server *config.Server) Option {
	return func(o *runOptions) { o.server = server }
}

// WithConfig supplies the project configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *runOptions) { o.cfg = cfg }
}

// WithOutput redirects command output.
func WithOutput(w io.Writer) Option {
	return func(o *runOptions) { o.out = w }
}

// WithTokenStore replaces the OS keyring.
func WithTokenStore(store auth.TokenStore) Option {
	return func(o *runOptions) { o.tokens = store }
}

// WithMirror replaces the on-disk session mirror.
func WithMirror(m session.Mirror) Option {
	return func(o *runOptions) { o.mirror = m }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *runOptions) { o.httpClient = c }
}

// WithPrompter replaces terminal prompts.
func WithPrompter(p Prompter) Option {
	return func(o *runOptions) { o.prompter = p }
}

// WithLogger sets the logger passed to the session components.
func WithLogger(l zerolog.Logger) Option {
	return func(o *runOptions) { o.logger = &l }
}

// logLevel is set by the root command's --log-level flag.
var logLevel = "warn"

// SetLogLevel sets the level of the default command logger.
func SetLogLevel(level string) {
	logLevel = level
}

// resolve applies opts and fills everything left unset: config from
// gestor.json, the selected server, the keyring and the per-server mirror.
func resolve(serverAlias string, opts []Option) (*runOptions, error) {
	o := &runOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if o.out == nil {
		o.out = os.Stdout
	}
	if o.cfg == nil && o.server == nil {
		cfg, err := config.LoadFromCurrentDir()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w\nRun 'gestor init' to create a configuration file", err)
		}
		o.cfg = cfg
	}
	if o.cfg == nil {
		o.cfg = &config.Config{Routes: session.DefaultRoutes()}
	}
	if o.server == nil {
		server, err := serverselect.ResolveServer(o.cfg, serverAlias)
		if err != nil {
			return nil, err
		}
		o.server = server
	}
	if err := o.server.Validate(); err != nil {
		return nil, err
	}

	if o.tokens == nil {
		o.tokens = auth.Default
	}
	if o.mirror == nil {
		m, err := userconfig.DefaultMirror(o.server.Alias)
		if err != nil {
			return nil, err
		}
		o.mirror = m
	}
	if o.prompter == nil {
		o.prompter = terminalPrompter{}
	}
	if o.logger == nil {
		l := logger.NewCLI(logLevel)
		o.logger = &l
	}
	return o, nil
}

// apiClient returns a client for the resolved server with any stored
// session token loaded.
func (o *runOptions) apiClient() *client.Client {
	c := client.New(o.server.URL)
	if o.httpClient != nil {
		c.SetHTTPClient(o.httpClient)
	}
	c.SetTokenStore(o.tokens)
	return c
}

// sessionManager wires the session components to c. Every forced
// navigation is recorded by nav.
func (o *runOptions) sessionManager(c *client.Client, nav *terminalNavigator) *session.Manager {
	return session.NewManager(c, session.Options{
		Mirror:          o.mirror,
		Credentials:     c,
		Navigator:       nav,
		Routes:          o.cfg.Routes,
		Logger:          o.logger,
		MaxRedirects:    o.cfg.MaxRedirects,
		MaxCodeAttempts: o.cfg.MaxCodeAttempts,
	})
}

// terminalNavigator prints forced navigations and remembers them so the
// command can follow them.
type terminalNavigator struct {
	out     io.Writer
	history []session.Navigation
}

func newTerminalNavigator(out io.Writer) *terminalNavigator {
	return &terminalNavigator{out: out}
}

func (n *terminalNavigator) Navigate(nav session.Navigation) {
	n.history = append(n.history, nav)
	fmt.Fprintf(n.out, "→ %s (%s)\n", nav.Path, nav.Mode)
}

// Last returns the most recent navigation.
func (n *terminalNavigator) Last() (session.Navigation, bool) {
	if len(n.history) == 0 {
		return session.Navigation{}, false
	}
	return n.history[len(n.history)-1], true
}

package session

import (
	"time"

	"github.com/rs/zerolog"
)

// Options wires a Manager. Zero values get in-memory defaults.
type Options struct {
	Mirror       Mirror
	Transient    Transient
	Credentials  CredentialStore
	Navigator    Navigator
	Routes       Routes
	Logger       *zerolog.Logger
	ProbeTimeout time.Duration
	MaxRedirects int
	// RedirectBackoff is the base delay between consecutive forced redirects.
	RedirectBackoff time.Duration
	// MaxCodeAttempts limits failed second-factor attempts; zero is unlimited.
	MaxCodeAttempts int
}

// Manager bundles the session components sharing one prober, mirror and
// redirect counter.
type Manager struct {
	Prober      *Prober
	Policy      *RedirectPolicy
	RequireAuth *RequireAuth
	Landing     *RedirectIfAuthenticated
	Login       *LoginFlow
	Logout      *LogoutHandler
	Mirror      Mirror
	Transient   Transient
	Routes      Routes
}

// NewManager builds every component around api.
func NewManager(api API, opts Options) *Manager {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	if opts.Mirror == nil {
		opts.Mirror = NewMemoryMirror()
	}
	if opts.Transient == nil {
		opts.Transient = NewMemoryTransient()
	}
	if opts.Credentials == nil {
		opts.Credentials = NopCredentials{}
	}
	if opts.Navigator == nil {
		opts.Navigator = NavigatorFunc(func(Navigation) {})
	}
	timeout := opts.ProbeTimeout
	if timeout == 0 {
		timeout = DefaultProbeTimeout
	}
	routes := opts.Routes.WithDefaults()

	prober := NewProber(api, opts.Mirror, WithProberLogger(log), WithProbeTimeout(timeout))
	policy := NewRedirectPolicy(opts.MaxRedirects)
	policy.Backoff = opts.RedirectBackoff

	login := NewLoginFlow(api, prober, opts.Mirror, opts.Credentials, opts.Transient, opts.Navigator, routes, log)
	login.MaxCodeAttempts = opts.MaxCodeAttempts

	return &Manager{
		Prober:      prober,
		Policy:      policy,
		RequireAuth: NewRequireAuth(prober, opts.Mirror, opts.Navigator, policy, routes, log),
		Landing:     NewRedirectIfAuthenticated(prober, opts.Mirror, opts.Transient, opts.Navigator, policy, routes, log),
		Login:       login,
		Logout:      NewLogoutHandler(api, prober, opts.Mirror, opts.Credentials, opts.Transient, opts.Navigator, routes, log),
		Mirror:      opts.Mirror,
		Transient:   opts.Transient,
		Routes:      routes,
	}
}

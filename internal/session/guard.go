package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Phase is where RequireAuth is in its decision.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseUnauthenticated
	PhasePendingTwoFactor
	PhaseAuthorized
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhasePendingTwoFactor:
		return "pending_two_factor"
	case PhaseAuthorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// Action is what the caller should do with a route after a guard decided.
type Action int

const (
	// Render shows the requested content.
	Render Action = iota
	// Redirect means a navigation was issued.
	Redirect
	// Halt means a redirect was due but the loop bound stopped it.
	Halt
	// Discard means a newer evaluation superseded this one.
	Discard
)

func (a Action) String() string {
	switch a {
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	case Halt:
		return "halt"
	case Discard:
		return "discard"
	default:
		return "unknown"
	}
}

// Decision is the outcome of a guard evaluation. Navigation is set for
// Redirect and Halt.
type Decision struct {
	Action     Action
	Navigation Navigation
}

// RequireAuth gates protected routes behind a fresh server probe.
type RequireAuth struct {
	prober *Prober
	mirror Mirror
	nav    Navigator
	policy *RedirectPolicy
	routes Routes
	log    zerolog.Logger

	mu    sync.Mutex
	gen   uint64
	phase Phase
}

// NewRequireAuth creates the route guard.
func NewRequireAuth(prober *Prober, mirror Mirror, nav Navigator, policy *RedirectPolicy, routes Routes, log zerolog.Logger) *RequireAuth {
	return &RequireAuth{
		prober: prober,
		mirror: mirror,
		nav:    nav,
		policy: policy,
		routes: routes.WithDefaults(),
		log:    log,
		phase:  PhaseLoading,
	}
}

// Phase returns the current phase. It is PhaseLoading while an evaluation
// is waiting on the server.
func (g *RequireAuth) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// Evaluate decides whether route may render. The session probe and the
// two-factor status probe run concurrently and both must resolve before any
// navigation is issued.
func (g *RequireAuth) Evaluate(ctx context.Context, route string) Decision {
	g.mu.Lock()
	g.gen++
	gen := g.gen
	g.phase = PhaseLoading
	g.mu.Unlock()

	var (
		state  State
		status TwoFactorStatus
		eg     errgroup.Group
	)
	eg.Go(func() error {
		s, err := g.prober.OnRouteChange(ctx, route)
		if errors.Is(err, ErrSuperseded) {
			return err
		}
		state = s
		return nil
	})
	eg.Go(func() error {
		status = g.prober.TwoFactorStatus(ctx)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return Decision{Action: Discard}
	}

	g.mu.Lock()
	if gen != g.gen {
		g.mu.Unlock()
		return Decision{Action: Discard}
	}

	user, hasUser := SessionUser(state)
	switch {
	case !hasUser || !status.Authenticated:
		g.phase = PhaseUnauthenticated
		g.mu.Unlock()
		if err := g.mirror.Clear(); err != nil {
			g.log.Warn().Err(err).Msg("Failed to clear stale session mirror")
		}
		return g.redirect(ctx, Navigation{Path: g.routes.LoginWithRedirect(route), Mode: Replace})

	case status.RequiresVerification:
		g.phase = PhasePendingTwoFactor
		g.mu.Unlock()
		g.prober.Settle(user, status)
		if cleanPath(route) == g.routes.TwoFactor {
			return Decision{Action: Render}
		}
		if err := g.mirror.SetRedirectTarget(route); err != nil {
			g.log.Warn().Err(err).Msg("Failed to remember post-verification target")
		}
		return g.redirect(ctx, Navigation{Path: g.routes.TwoFactor, Mode: Replace})

	default:
		g.phase = PhaseAuthorized
		g.mu.Unlock()
		g.prober.Settle(user, status)
		return Decision{Action: Render}
	}
}

func (g *RequireAuth) redirect(ctx context.Context, n Navigation) Decision {
	if err := g.policy.Allow(ctx); err != nil {
		g.log.Warn().
			Err(err).
			Int("redirects", g.policy.Count()).
			Str("target", n.Path).
			Msg("Redirect loop detected, no longer redirecting")
		return Decision{Action: Halt, Navigation: n}
	}
	g.nav.Navigate(n)
	return Decision{Action: Redirect, Navigation: n}
}

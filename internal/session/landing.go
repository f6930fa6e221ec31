package session

import (
	"context"
	"net/url"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// RedirectIfAuthenticated sends a fully signed-in user away from the login,
// signup and forgot-password pages. It stays out of the way right after a
// logout and while a second factor is being entered.
type RedirectIfAuthenticated struct {
	prober    *Prober
	mirror    Mirror
	transient Transient
	nav       Navigator
	policy    *RedirectPolicy
	routes    Routes
	log       zerolog.Logger

	redirected atomic.Bool
}

// NewRedirectIfAuthenticated creates the landing guard.
func NewRedirectIfAuthenticated(prober *Prober, mirror Mirror, transient Transient, nav Navigator, policy *RedirectPolicy, routes Routes, log zerolog.Logger) *RedirectIfAuthenticated {
	return &RedirectIfAuthenticated{
		prober:    prober,
		mirror:    mirror,
		transient: transient,
		nav:       nav,
		policy:    policy,
		routes:    routes.WithDefaults(),
		log:       log,
	}
}

// Evaluate decides whether the page at u renders or the user is bounced to
// the dashboard. When a suppression signal is present no probe is made: a
// probe issued right after logout can still see the old session.
func (g *RedirectIfAuthenticated) Evaluate(ctx context.Context, u *url.URL) Decision {
	if !g.routes.IsAuthOnly(u.Path) {
		return Decision{Action: Render}
	}
	if reason := g.suppressed(u); reason != "" {
		g.log.Debug().Str("reason", reason).Str("path", u.Path).Msg("Skipping authenticated redirect")
		return Decision{Action: Render}
	}

	status := g.prober.TwoFactorStatus(ctx)
	if !status.Authenticated || status.RequiresVerification {
		return Decision{Action: Render}
	}

	if !g.redirected.CompareAndSwap(false, true) {
		return Decision{Action: Render}
	}
	n := Navigation{Path: g.routes.Dashboard, Mode: Hard}
	if err := g.policy.Allow(ctx); err != nil {
		g.log.Warn().Err(err).Str("target", n.Path).Msg("Redirect loop detected, no longer redirecting")
		return Decision{Action: Halt, Navigation: n}
	}
	g.nav.Navigate(n)
	return Decision{Action: Redirect, Navigation: n}
}

func (g *RedirectIfAuthenticated) suppressed(u *url.URL) string {
	if u.Query().Get("logout") == "true" {
		return "logout_query"
	}
	if _, ok := g.transient.Get(LogoutMarker); ok {
		return "logout_marker"
	}
	if _, ok := g.mirror.PendingTwoFactor(); ok {
		return "pending_two_factor"
	}
	if g.redirected.Load() {
		return "already_redirected"
	}
	return ""
}

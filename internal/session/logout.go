package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// LogoutHandler ends the session: server first, then local state.
type LogoutHandler struct {
	api       API
	prober    *Prober
	mirror    Mirror
	creds     CredentialStore
	transient Transient
	nav       Navigator
	routes    Routes
	log       zerolog.Logger
}

// NewLogoutHandler creates a LogoutHandler.
func NewLogoutHandler(api API, prober *Prober, mirror Mirror, creds CredentialStore, transient Transient, nav Navigator, routes Routes, log zerolog.Logger) *LogoutHandler {
	if creds == nil {
		creds = NopCredentials{}
	}
	return &LogoutHandler{
		api:       api,
		prober:    prober,
		mirror:    mirror,
		creds:     creds,
		transient: transient,
		nav:       nav,
		routes:    routes.WithDefaults(),
		log:       log,
	}
}

// Logout calls the server logout endpoint and then clears the mirror and
// the credentials. A failed server call is logged and local cleanup still
// runs. The returned error only reports local cleanup failures.
func (h *LogoutHandler) Logout(ctx context.Context) error {
	if err := h.api.Logout(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Server logout failed, clearing local session anyway")
	}

	var errs []error
	if err := h.mirror.Clear(); err != nil {
		errs = append(errs, fmt.Errorf("failed to clear session mirror: %w", err))
	}
	if err := h.creds.ClearCredentials(); err != nil {
		errs = append(errs, fmt.Errorf("failed to clear credentials: %w", err))
	}
	h.transient.Set(LogoutMarker, "true")
	h.prober.SetState(Unauthenticated{})

	h.nav.Navigate(Navigation{Path: h.routes.Login + "?logout=true", Mode: Replace})
	return errors.Join(errs...)
}

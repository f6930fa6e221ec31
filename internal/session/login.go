package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Step is a state of the login page.
type Step int

const (
	StepCredentialsForm Step = iota
	StepVerifying
	StepTwoFactorForm
	StepSubmitting2FA
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepCredentialsForm:
		return "credentials_form"
	case StepVerifying:
		return "verifying"
	case StepTwoFactorForm:
		return "two_factor_form"
	case StepSubmitting2FA:
		return "submitting_2fa"
	case StepDone:
		return "done"
	default:
		return "unknown"
	}
}

// LoginFlow is the credentials-then-code state machine behind the login
// page. A session is only completed by a login answer without requires2FA
// or by a successful code verification.
type LoginFlow struct {
	api       API
	prober    *Prober
	mirror    Mirror
	creds     CredentialStore
	transient Transient
	nav       Navigator
	routes    Routes
	validate  *validator.Validate
	log       zerolog.Logger

	// MaxCodeAttempts limits failed code submissions per credential check.
	// Zero means unlimited.
	MaxCodeAttempts int

	mu       sync.Mutex
	step     Step
	pending  *User
	redirect string
	attempts int
}

// NewLoginFlow creates a flow at StepCredentialsForm.
func NewLoginFlow(api API, prober *Prober, mirror Mirror, creds CredentialStore, transient Transient, nav Navigator, routes Routes, log zerolog.Logger) *LoginFlow {
	if creds == nil {
		creds = NopCredentials{}
	}
	return &LoginFlow{
		api:       api,
		prober:    prober,
		mirror:    mirror,
		creds:     creds,
		transient: transient,
		nav:       nav,
		routes:    routes.WithDefaults(),
		validate:  validator.New(),
		log:       log,
	}
}

// Step returns the current step.
func (f *LoginFlow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// PendingUser returns the partially authenticated user while the code form
// is shown.
func (f *LoginFlow) PendingUser() (User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		return User{}, false
	}
	return *f.pending, true
}

// SubmitCredentials posts the credentials form. redirect is the optional
// return target from the login URL. Validation errors are returned before
// any request is made; server errors carry the server's message.
func (f *LoginFlow) SubmitCredentials(ctx context.Context, in LoginInput, redirect string) (Step, error) {
	f.mu.Lock()
	if f.step != StepCredentialsForm {
		defer f.mu.Unlock()
		return f.step, ErrInvalidStep
	}
	if err := f.validate.Struct(in); err != nil {
		defer f.mu.Unlock()
		return f.step, fmt.Errorf("invalid credentials form: %w", err)
	}
	f.step = StepVerifying
	f.redirect = SafeRedirect(redirect)
	f.mu.Unlock()

	res, err := f.api.Login(ctx, in)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.step = StepCredentialsForm
		return f.step, err
	}

	if res.RequiresTwoFactor {
		user := res.User
		if err := f.mirror.SetPendingTwoFactor(user); err != nil {
			f.log.Warn().Err(err).Msg("Failed to persist pending two-factor marker")
		}
		f.prober.SetState(PendingTwoFactor{TempUser: user})
		f.pending = &user
		f.attempts = 0
		f.step = StepTwoFactorForm
		f.log.Info().Str("user_id", user.ID).Msg("Second factor required")
		return f.step, nil
	}

	if err := f.complete(res.User, res.Token); err != nil {
		f.step = StepCredentialsForm
		return f.step, err
	}
	return f.step, nil
}

// SubmitCode posts the 6-digit second-factor code. On failure the flow stays
// on the code form so the user can retry.
func (f *LoginFlow) SubmitCode(ctx context.Context, code string) (Step, error) {
	f.mu.Lock()
	if f.step != StepTwoFactorForm || f.pending == nil {
		defer f.mu.Unlock()
		return f.step, ErrInvalidStep
	}
	if f.MaxCodeAttempts > 0 && f.attempts >= f.MaxCodeAttempts {
		defer f.mu.Unlock()
		f.abandon()
		return f.step, ErrTooManyAttempts
	}
	if err := f.validate.Var(code, "required,len=6,numeric"); err != nil {
		defer f.mu.Unlock()
		return f.step, fmt.Errorf("invalid verification code: %w", err)
	}
	f.step = StepSubmitting2FA
	userID := f.pending.ID
	f.mu.Unlock()

	res, err := f.api.VerifyTwoFactor(ctx, userID, code)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.attempts++
		f.step = StepTwoFactorForm
		return f.step, err
	}

	if err := f.complete(res.User, res.Token); err != nil {
		f.step = StepTwoFactorForm
		return f.step, err
	}
	return f.step, nil
}

// Reset abandons a login in progress and discards the temporary user.
func (f *LoginFlow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandon()
}

func (f *LoginFlow) abandon() {
	if f.pending != nil {
		if err := f.mirror.ClearPendingTwoFactor(); err != nil {
			f.log.Warn().Err(err).Msg("Failed to clear pending two-factor marker")
		}
		f.prober.SetState(Unauthenticated{})
	}
	f.pending = nil
	f.attempts = 0
	f.step = StepCredentialsForm
}

// complete is called with f.mu held.
func (f *LoginFlow) complete(user User, token string) error {
	if token != "" {
		if err := f.creds.SaveToken(token); err != nil {
			return fmt.Errorf("failed to store session token: %w", err)
		}
	}
	// A marker left by an earlier, abandoned login must not outlive a
	// completed session.
	if err := f.mirror.ClearPendingTwoFactor(); err != nil {
		f.log.Warn().Err(err).Msg("Failed to clear pending two-factor marker")
	}
	if err := f.mirror.SaveUser(user); err != nil {
		f.log.Warn().Err(err).Msg("Failed to mirror session user")
	}
	f.transient.Delete(LogoutMarker)
	f.prober.SetState(Authenticated{User: user})

	target := f.redirect
	if target == "" {
		target = SafeRedirect(f.mirror.RedirectTarget())
	}
	if err := f.mirror.ClearRedirectTarget(); err != nil {
		f.log.Warn().Err(err).Msg("Failed to clear post-verification target")
	}
	if target == "" || f.routes.IsAuthOnly(target) || cleanPath(target) == f.routes.TwoFactor {
		target = f.routes.Dashboard
	}

	f.pending = nil
	f.attempts = 0
	f.step = StepDone
	f.log.Info().Str("user_id", user.ID).Str("target", target).Msg("Login completed")
	f.nav.Navigate(Navigation{Path: target, Mode: Replace})
	return nil
}

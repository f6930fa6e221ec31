package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultProbeTimeout bounds every probe request.
const DefaultProbeTimeout = 10 * time.Second

// Prober asks the server for the authoritative session state. It never
// navigates; redirection belongs to the guards.
type Prober struct {
	api     API
	mirror  Mirror
	log     zerolog.Logger
	timeout time.Duration

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	state  State
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithProberLogger sets the logger.
func WithProberLogger(log zerolog.Logger) ProberOption {
	return func(p *Prober) { p.log = log }
}

// WithProbeTimeout sets the per-request timeout. Zero disables it.
func WithProbeTimeout(d time.Duration) ProberOption {
	return func(p *Prober) { p.timeout = d }
}

// NewProber creates a Prober in the Loading state.
func NewProber(api API, mirror Mirror, opts ...ProberOption) *Prober {
	p := &Prober{
		api:     api,
		mirror:  mirror,
		log:     zerolog.Nop(),
		timeout: DefaultProbeTimeout,
		state:   Loading{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current session snapshot.
func (p *Prober) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetState replaces the snapshot. Only the login and logout handlers call it.
func (p *Prober) SetState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// Probe calls the "who am I" endpoint. Any in-flight probe is cancelled and
// its result discarded.
//
// On success the user is mirrored and the state becomes Authenticated,
// unless the mirror holds a pending second factor for that same user: the
// endpoint also answers for pending sessions, so the state then stays
// PendingTwoFactor until Settle sees the two-factor status. On any failure
// the mirror is cleared and the state becomes Unauthenticated; the returned
// error says why. ErrSuperseded means nothing was changed.
func (p *Prober) Probe(ctx context.Context) (State, error) {
	ctx, gen, done := p.begin(ctx)
	defer done()

	user, err := p.api.CurrentUser(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		p.log.Debug().Uint64("generation", gen).Msg("Discarding superseded session probe")
		return nil, ErrSuperseded
	}

	if err != nil || user == nil {
		if clearErr := p.mirror.Clear(); clearErr != nil {
			p.log.Warn().Err(clearErr).Msg("Failed to clear session mirror")
		}
		p.state = Unauthenticated{}
		if err == nil {
			err = ErrNoUser
		}
		return p.state, err
	}

	if pending, ok := p.mirror.PendingTwoFactor(); ok && pending.ID == user.ID {
		p.state = PendingTwoFactor{TempUser: *user}
		return p.state, nil
	}

	if saveErr := p.mirror.SaveUser(*user); saveErr != nil {
		p.log.Warn().Err(saveErr).Msg("Failed to mirror session user")
	}
	p.state = Authenticated{User: *user}
	return p.state, nil
}

// Settle reconciles a probed user with the two-factor status. While a second
// factor is outstanding the user is held as PendingTwoFactor and is not
// mirrored as signed in. Once the session is verified any leftover pending
// marker is dropped.
func (p *Prober) Settle(user User, status TwoFactorStatus) State {
	p.mu.Lock()
	defer p.mu.Unlock()

	if status.RequiresVerification {
		if err := p.mirror.SetPendingTwoFactor(user); err != nil {
			p.log.Warn().Err(err).Msg("Failed to persist pending two-factor marker")
		}
		p.state = PendingTwoFactor{TempUser: user}
		return p.state
	}

	if err := p.mirror.ClearPendingTwoFactor(); err != nil {
		p.log.Warn().Err(err).Msg("Failed to clear pending two-factor marker")
	}
	if err := p.mirror.SaveUser(user); err != nil {
		p.log.Warn().Err(err).Msg("Failed to mirror session user")
	}
	p.state = Authenticated{User: user}
	return p.state
}

// OnRouteChange re-probes after a navigation so a server-side revocation is
// noticed on the next route, not only on startup.
func (p *Prober) OnRouteChange(ctx context.Context, route string) (State, error) {
	p.log.Debug().Str("route", route).Msg("Route changed, probing session")
	return p.Probe(ctx)
}

// TwoFactorStatus asks the dedicated status endpoint whether a second factor
// is outstanding. If that endpoint fails, a 200 from the "who am I" endpoint
// counts as fully authorized and anything else as signed out.
func (p *Prober) TwoFactorStatus(ctx context.Context) TwoFactorStatus {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	status, err := p.api.TwoFactorStatus(ctx)
	if err == nil && status != nil {
		return *status
	}
	p.log.Debug().Err(err).Msg("Two-factor status unavailable, falling back to user probe")

	user, err := p.api.CurrentUser(ctx)
	if err != nil || user == nil {
		return TwoFactorStatus{}
	}
	return TwoFactorStatus{Authenticated: true}
}

func (p *Prober) begin(ctx context.Context) (context.Context, uint64, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.gen++
	gen := p.gen

	probeCtx, cancel := p.withTimeout(ctx)
	p.cancel = cancel

	return probeCtx, gen, func() {
		p.mu.Lock()
		if p.gen == gen {
			p.cancel = nil
		}
		p.mu.Unlock()
		cancel()
	}
}

func (p *Prober) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return context.WithCancel(ctx)
}

package session

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxRedirects is how many forced navigations are allowed before the
// guards stop redirecting.
const DefaultMaxRedirects = 5

// RedirectPolicy bounds consecutive forced navigations. The counter lives as
// long as the policy, which is the process lifetime in the terminal client.
type RedirectPolicy struct {
	// MaxRedirects is the bound; zero means DefaultMaxRedirects.
	MaxRedirects int
	// Backoff is waited before the second redirect and doubles on each one
	// after. Zero disables waiting.
	Backoff time.Duration
	// After is the timer source used for Backoff; nil means time.After.
	After func(time.Duration) <-chan time.Time

	mu    sync.Mutex
	count int
}

// NewRedirectPolicy creates a policy with the given bound.
func NewRedirectPolicy(max int) *RedirectPolicy {
	return &RedirectPolicy{MaxRedirects: max}
}

// Allow records a navigation attempt. It returns ErrRedirectLoop once the
// count exceeds the bound, or the context error if cancelled while backing off.
func (p *RedirectPolicy) Allow(ctx context.Context) error {
	p.mu.Lock()
	p.count++
	n := p.count
	limit := p.MaxRedirects
	p.mu.Unlock()

	if limit <= 0 {
		limit = DefaultMaxRedirects
	}
	if n > limit {
		return ErrRedirectLoop
	}

	delay := p.delay(n)
	if delay <= 0 {
		return nil
	}
	after := p.After
	if after == nil {
		after = time.After
	}
	select {
	case <-after(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Count returns the number of attempts recorded.
func (p *RedirectPolicy) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Reset zeroes the counter.
func (p *RedirectPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count = 0
}

func (p *RedirectPolicy) delay(n int) time.Duration {
	if p.Backoff <= 0 || n < 2 {
		return 0
	}
	return p.Backoff << (n - 2)
}

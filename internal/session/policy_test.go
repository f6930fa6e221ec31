package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedirectPolicy_Bound(t *testing.T) {
	p := NewRedirectPolicy(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Allow(context.Background()))
	}
	assert.ErrorIs(t, p.Allow(context.Background()), ErrRedirectLoop)
	assert.ErrorIs(t, p.Allow(context.Background()), ErrRedirectLoop)
	assert.Equal(t, 5, p.Count())

	p.Reset()
	assert.NoError(t, p.Allow(context.Background()))
}

func TestRedirectPolicy_DefaultBound(t *testing.T) {
	p := &RedirectPolicy{}
	for i := 0; i < DefaultMaxRedirects; i++ {
		require.NoError(t, p.Allow(context.Background()))
	}
	assert.ErrorIs(t, p.Allow(context.Background()), ErrRedirectLoop)
}

func TestRedirectPolicy_BackoffUsesInjectedTimer(t *testing.T) {
	var delays []time.Duration
	p := &RedirectPolicy{
		MaxRedirects: 4,
		Backoff:      100 * time.Millisecond,
		After: func(d time.Duration) <-chan time.Time {
			delays = append(delays, d)
			ch := make(chan time.Time, 1)
			ch <- time.Time{}
			return ch
		},
	}

	for i := 0; i < 4; i++ {
		require.NoError(t, p.Allow(context.Background()))
	}
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, delays)
}

func TestRedirectPolicy_BackoffCancelled(t *testing.T) {
	p := &RedirectPolicy{
		MaxRedirects: 5,
		Backoff:      time.Hour,
		After:        func(time.Duration) <-chan time.Time { return make(chan time.Time) },
	}
	require.NoError(t, p.Allow(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Allow(ctx), context.Canceled)
}

// Package sessionstore keeps server-side session records. A token is only
// honoured while its record exists, so deleting the record revokes it.
package sessionstore

import (
	"context"
	"errors"
	"time"

	"github.com/alderburg/Teste-sub007/internal/models"
)

// ErrSessionNotFound is returned for unknown, revoked or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// Store persists sessions.
type Store interface {
	// Create stores s, assigning an ID when empty.
	Create(ctx context.Context, s *models.Session) error
	// Get returns a live session. Expired sessions are reported as missing.
	Get(ctx context.Context, id string) (*models.Session, error)
	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
	// RecordFailedAttempt counts a rejected second-factor code against s and
	// returns the total so far.
	RecordFailedAttempt(ctx context.Context, s *models.Session) (int, error)
	// DeleteForUser removes every session of a user.
	DeleteForUser(ctx context.Context, userID string) error
	// PurgeExpired removes sessions that expired before now and reports how
	// many were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

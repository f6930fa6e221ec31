package server

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const purgeTimeout = time.Minute

// newPurgeScheduler accepts standard 5-field expressions and descriptors
// such as "@every 15m" or "@hourly"
func newPurgeScheduler(spec string) (*cron.Cron, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid SESSION_PURGE_SCHEDULE %q: %w", spec, err)
	}
	return cron.New(cron.WithParser(parser)), nil
}

// purgeExpiredSessions removes sessions past their expiry
func (s *Server) purgeExpiredSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	purged, err := s.sessions.PurgeExpired(ctx, s.now())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to purge expired sessions")
		return
	}
	if purged > 0 {
		s.logger.Info().Int64("purged", purged).Msg("Purged expired sessions")
	}
}

package chathub

import (
	"context"
	"time"

	"debatechat/backend/internal/metrics"
	"debatechat/backend/internal/models"

	"github.com/rs/zerolog"
)

// Sweeper periodically walks the waiting pool. Users who waited past the
// timeout are sent to the no-chat survey; everyone else gets another match
// attempt, which covers users stranded when their partner connected to
// another process at the wrong moment.
type Sweeper struct {
	Coordinator *Coordinator
	Interval    time.Duration
	Log         zerolog.Logger
}

func NewSweeper(co *Coordinator, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		Coordinator: co,
		Interval:    interval,
		Log:         logger.With().Str("component", "sweeper").Logger(),
	}
}

// Run sweeps every Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Log.Info().Dur("interval", s.Interval).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. A failure on one user is logged and the pass moves on.
func (s *Sweeper) Sweep(ctx context.Context) {
	co := s.Coordinator
	users, err := co.Storage.ListWaitingUsers(ctx)
	if err != nil {
		s.Log.Error().Err(err).Msg("failed to list waiting users")
		return
	}

	now := co.Now()
	matched := make(map[uint]bool)
	for i := range users {
		user := &users[i]
		if matched[user.ID] {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		if co.Matcher.TimedOut(user, now) {
			s.timeout(ctx, user)
			continue
		}

		match, err := co.Matcher.TryMatch(ctx, user)
		if err != nil {
			s.Log.Error().Err(err).Uint("user_id", user.ID).Msg("sweep match failed")
			continue
		}
		if match != nil {
			matched[match.User.ID] = true
			matched[match.Partner.ID] = true
			co.announceMatch(ctx, match)
		}
	}
}

func (s *Sweeper) timeout(ctx context.Context, user *models.User) {
	co := s.Coordinator
	url := user.NoChatURL(co.Survey.NoChatURL)
	co.emit(ctx, deref(user.WaitingSessionID), models.EventNameRedirect, models.RedirectPayload{URL: url})
	co.record(ctx, user.ID, models.EventRedirectNoChat, map[string]interface{}{"url": url})
	metrics.WaitingTimeouts.Inc()
	s.Log.Info().Uint("user_id", user.ID).Msg("waiting room timeout")
}

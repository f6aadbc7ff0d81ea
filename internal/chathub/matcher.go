package chathub

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"debatechat/backend/internal/apperrors"
	"debatechat/backend/internal/metrics"
	"debatechat/backend/internal/models"
	"debatechat/backend/internal/storage"

	"github.com/rs/zerolog"
)

// Match is a committed pairing, with both users reloaded after the commit.
type Match struct {
	Chatroom *models.Chatroom
	User     *models.User
	Partner  *models.User
}

// MatcherService pairs waiting users of opposite positions. It keeps no
// state of its own: the waiting pool is the users table, and the only
// synchronization is the conditional commit in storage.CommitMatch, so any
// number of processes can match concurrently.
type MatcherService struct {
	Storage storage.Storage
	Log     zerolog.Logger

	// WaitingTimeout excludes users who have waited longer than this. Zero
	// disables the cutoff.
	WaitingTimeout time.Duration

	Now  func() time.Time
	Intn func(n int) int
}

func NewMatcherService(s storage.Storage, waitingTimeout time.Duration, logger zerolog.Logger) *MatcherService {
	return &MatcherService{
		Storage:        s,
		Log:            logger.With().Str("component", "matcher").Logger(),
		WaitingTimeout: waitingTimeout,
		Now:            func() time.Time { return time.Now().UTC() },
		Intn:           rand.Intn,
	}
}

// cutoff is the earliest start time that has not timed out.
func (m *MatcherService) cutoff(now time.Time) time.Time {
	if m.WaitingTimeout <= 0 {
		return time.Time{}
	}
	return now.Add(-m.WaitingTimeout)
}

// TimedOut reports whether user has waited past the timeout.
func (m *MatcherService) TimedOut(user *models.User, now time.Time) bool {
	c := m.cutoff(now)
	return !c.IsZero() && user.StartedWaitingTime != nil && user.StartedWaitingTime.Before(c)
}

// TryMatch pairs user with the longest-waiting eligible partner. user must
// already be marked waiting. A nil Match with a nil error means nobody is
// available yet, or another process won the race; the user stays queued.
func (m *MatcherService) TryMatch(ctx context.Context, user *models.User) (*Match, error) {
	now := m.Now()
	if user.IsMatched() || !user.IsWaiting() || m.TimedOut(user, now) {
		return nil, nil
	}

	candidate, err := m.Storage.FindMatchCandidate(ctx, user, m.cutoff(now))
	if err != nil {
		metrics.MatchAttempts.WithLabelValues("error").Inc()
		return nil, err
	}
	if candidate == nil {
		metrics.MatchAttempts.WithLabelValues("no_candidate").Inc()
		return nil, nil
	}

	treatment := models.Treatments[m.Intn(len(models.Treatments))]
	room, err := m.Storage.CommitMatch(ctx, storage.MatchClaim{
		Users: [2]storage.Claim{
			{UserID: user.ID, Version: user.Version, Treatment: treatment},
			{UserID: candidate.ID, Version: candidate.Version, Treatment: treatment.Complement()},
		},
		ViewsReversed: m.Intn(2) == 1,
		Now:           now,
	})
	if errors.Is(err, apperrors.ErrConcurrencyConflict) {
		metrics.MatchAttempts.WithLabelValues("conflict").Inc()
		m.Log.Warn().Uint("user_id", user.ID).Uint("candidate_id", candidate.ID).Msg("match lost a concurrent commit")
		return nil, nil
	}
	if err != nil {
		metrics.MatchAttempts.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.MatchAttempts.WithLabelValues("matched").Inc()
	metrics.ChatroomsCreated.Inc()
	m.Log.Info().
		Uint("chatroom_id", room.ID).
		Uint("user_id", user.ID).
		Uint("partner_id", candidate.ID).
		Str("treatment", string(treatment)).
		Msg("match found")

	me, err := m.Storage.GetUserByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	partner, err := m.Storage.GetUserByID(ctx, candidate.ID)
	if err != nil {
		return nil, err
	}
	return &Match{Chatroom: room, User: me, Partner: partner}, nil
}

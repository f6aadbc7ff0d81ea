package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"debatechat/backend/internal/apperrors"
	"debatechat/backend/internal/models"

	"gorm.io/gorm"
)

// Claim is one side of a match: the user, the version read before the
// commit, and the treatment to assign.
type Claim struct {
	UserID    uint
	Version   string
	Treatment models.Treatment
}

// MatchClaim pairs two waiting users into a new chatroom.
type MatchClaim struct {
	Users         [2]Claim
	ViewsReversed bool
	Now           time.Time
}

// FindMatchCandidate returns the longest-waiting connected, unmatched user of
// the opposite position, breaking ties by ID. Users who started waiting
// before notBefore are skipped; pass the zero time to disable the cutoff.
// It returns nil, nil when nobody qualifies.
func (s *Service) FindMatchCandidate(ctx context.Context, user *models.User, notBefore time.Time) (*models.User, error) {
	q := s.DB.WithContext(ctx).
		Where("position = ?", user.Position.Complement()).
		Where("chatroom_id IS NULL").
		Where("waiting_session_id IS NOT NULL").
		Where("id <> ?", user.ID)
	if !notBefore.IsZero() {
		q = q.Where("started_waiting_time >= ?", notBefore)
	}

	var candidate models.User
	err := q.Order("started_waiting_time asc").Order("id asc").Take(&candidate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find match candidate for user %d: %w", user.ID, err)
	}
	return &candidate, nil
}

// CommitMatch creates the chatroom and claims both users in one transaction.
// Each user row is only updated if its version still equals the one read
// before the commit and it has no chatroom; otherwise the whole transaction
// rolls back and apperrors.ErrConcurrencyConflict is returned.
func (s *Service) CommitMatch(ctx context.Context, claim MatchClaim) (*models.Chatroom, error) {
	claims := claim.Users[:]
	// Lock rows in a fixed order so concurrent commits cannot deadlock.
	sort.Slice(claims, func(i, j int) bool { return claims[i].UserID < claims[j].UserID })

	room := &models.Chatroom{InitialViewsReversed: claim.ViewsReversed}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		for _, c := range claims {
			res := tx.Model(&models.User{}).
				Where("id = ? AND version = ? AND chatroom_id IS NULL", c.UserID, c.Version).
				Updates(map[string]interface{}{
					"chatroom_id":           room.ID,
					"treatment":             c.Treatment,
					"found_match_time":      claim.Now,
					"finished_waiting_time": claim.Now,
					"version":               models.NewVersion(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				return apperrors.ErrConcurrencyConflict
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrConcurrencyConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("commit match: %w", err)
	}
	return room, nil
}

// ListWaitingUsers returns connected, unmatched users in matching order.
func (s *Service) ListWaitingUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.DB.WithContext(ctx).
		Where("chatroom_id IS NULL AND waiting_session_id IS NOT NULL").
		Order("started_waiting_time asc").Order("id asc").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list waiting users: %w", err)
	}
	return users, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"debatechat/backend/internal/apperrors"
	"debatechat/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Storage is everything the chat layer needs from the shared store. Every
// process talks to the same database and Redis, so all cross-process
// coordination goes through these methods.
type Storage interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	GetUserByResponseID(ctx context.Context, responseID string) (*models.User, error)
	GetChatroomMembers(ctx context.Context, chatroomID uint) ([]models.User, error)
	SetInitialView(ctx context.Context, userID uint, view string) (bool, error)
	MarkTutorialSeen(ctx context.Context, userID uint) (bool, error)
	SetLeaveReason(ctx context.Context, userID uint, reason string) error

	StartWaiting(ctx context.Context, userID uint, sessionID string, page models.Page, now time.Time) (*models.User, error)
	StopWaiting(ctx context.Context, userID uint, sessionID string) (bool, error)
	FindMatchCandidate(ctx context.Context, user *models.User, notBefore time.Time) (*models.User, error)
	CommitMatch(ctx context.Context, claim MatchClaim) (*models.Chatroom, error)
	ListWaitingUsers(ctx context.Context) ([]models.User, error)

	StartChatSession(ctx context.Context, userID uint, sessionID string, now time.Time) error
	EndChatSession(ctx context.Context, userID uint, sessionID string, now time.Time) (bool, error)
	GetChatroom(ctx context.Context, id uint) (*models.Chatroom, error)
	SetChatroomError(ctx context.Context, id uint) error
	MarkLimitReached(ctx context.Context, id uint) (bool, error)
	SeedInitialViews(ctx context.Context, chatroomID uint, views []models.Message) (bool, error)
	ClearChatroom(ctx context.Context, id uint) (int64, error)

	GetChatHistory(ctx context.Context, chatroomID uint) ([]models.Message, error)
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id uint) (*models.Message, error)
	ListPendingMessages(ctx context.Context, chatroomID, senderID uint) ([]models.Message, error)
	GetRephrasing(ctx context.Context, id uint) (*models.Rephrasing, error)
	SaveRephrasings(ctx context.Context, rephrasings []models.Rephrasing) error
	ResolveMessage(ctx context.Context, res MessageResolution) (bool, error)

	SaveEvent(ctx context.Context, event *models.UserEvent) error
	GetStats(ctx context.Context) ([]PositionStats, error)

	PublishDelivery(ctx context.Context, delivery models.Delivery) error
	LockChatroom(ctx context.Context, chatroomID uint, ttl, wait time.Duration) (func(), error)
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Log   zerolog.Logger
}

var _ Storage = (*Service)(nil)

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client, logger zerolog.Logger) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Log:   logger.With().Str("component", "storage").Logger(),
	}
}

// AutoMigrate creates or updates every table the service uses.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Chatroom{},
		&models.Message{},
		&models.Rephrasing{},
		&models.UserEvent{},
	)
}

func notFound(err error, what string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %v: %w", what, id, apperrors.ErrNotFound)
	}
	return fmt.Errorf("load %s %v: %w", what, id, err)
}

func (s *Service) CreateUser(ctx context.Context, user *models.User) error {
	if err := s.DB.WithContext(ctx).Create(user).Error; err != nil {
		s.Log.Error().Err(err).Str("response_id", user.ResponseID).Msg("failed to create user")
		return err
	}
	return nil
}

func (s *Service) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

func (s *Service) GetUserByResponseID(ctx context.Context, responseID string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("response_id = ?", responseID).Take(&user).Error
	if err != nil {
		return nil, notFound(err, "user", responseID)
	}
	return &user, nil
}

// GetChatroomMembers returns the users of a chatroom ordered by ID. Callers
// check the count; anything but two is an integrity violation.
func (s *Service) GetChatroomMembers(ctx context.Context, chatroomID uint) ([]models.User, error) {
	var users []models.User
	if err := s.DB.WithContext(ctx).Where("chatroom_id = ?", chatroomID).Order("id asc").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load members of chatroom %d: %w", chatroomID, err)
	}
	return users, nil
}

// SetInitialView stores the pre-chat view once. It reports false when a view was already set.
func (s *Service) SetInitialView(ctx context.Context, userID uint, view string) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND view IS NULL", userID).
		Update("view", view)
	return res.RowsAffected == 1, res.Error
}

// MarkTutorialSeen flips the tutorial flag. Only the first caller gets true.
func (s *Service) MarkTutorialSeen(ctx context.Context, userID uint) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND seen_tutorial = ?", userID, false).
		Update("seen_tutorial", true)
	return res.RowsAffected == 1, res.Error
}

func (s *Service) SetLeaveReason(ctx context.Context, userID uint, reason string) error {
	return s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("leave_reason", reason).Error
}

// StartWaiting attaches a waiting-room session to the user. The started
// waiting time is only set the first time, so reconnecting keeps the user's
// place in line. page is the screen the session was opened from.
func (s *Service) StartWaiting(ctx context.Context, userID uint, sessionID string, page models.Page, now time.Time) (*models.User, error) {
	err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"waiting_session_id":   sessionID,
			"waiting_page":         page,
			"started_waiting_time": gorm.Expr("COALESCE(started_waiting_time, ?)", now),
			"version":              models.NewVersion(),
		}).Error
	if err != nil {
		return nil, fmt.Errorf("start waiting for user %d: %w", userID, err)
	}
	return s.GetUserByID(ctx, userID)
}

// StopWaiting detaches the waiting-room session, unless a newer session has
// replaced it in the meantime.
func (s *Service) StopWaiting(ctx context.Context, userID uint, sessionID string) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND waiting_session_id = ?", userID, sessionID).
		Updates(map[string]interface{}{
			"waiting_session_id":    nil,
			"waiting_page":          models.PageNone,
			"finished_waiting_time": gorm.Expr("CASE WHEN chatroom_id IS NULL THEN NULL ELSE finished_waiting_time END"),
			"version":               models.NewVersion(),
		})
	return res.RowsAffected == 1, res.Error
}

func (s *Service) StartChatSession(ctx context.Context, userID uint, sessionID string, now time.Time) error {
	return s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"chatroom_session_id": sessionID,
			"started_chat_time":   gorm.Expr("COALESCE(started_chat_time, ?)", now),
			"finished_chat_time":  nil,
		}).Error
}

func (s *Service) EndChatSession(ctx context.Context, userID uint, sessionID string, now time.Time) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND chatroom_session_id = ?", userID, sessionID).
		Updates(map[string]interface{}{
			"chatroom_session_id": nil,
			"finished_chat_time":  now,
		})
	return res.RowsAffected == 1, res.Error
}

func (s *Service) GetChatroom(ctx context.Context, id uint) (*models.Chatroom, error) {
	var room models.Chatroom
	if err := s.DB.WithContext(ctx).First(&room, id).Error; err != nil {
		return nil, notFound(err, "chatroom", id)
	}
	return &room, nil
}

func (s *Service) SetChatroomError(ctx context.Context, id uint) error {
	return s.DB.WithContext(ctx).Model(&models.Chatroom{}).
		Where("id = ?", id).
		Update("error", true).Error
}

// MarkLimitReached sets the limit flag. Only the first caller gets true.
func (s *Service) MarkLimitReached(ctx context.Context, id uint) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Chatroom{}).
		Where("id = ? AND limit_reached = ?", id, false).
		Update("limit_reached", true)
	return res.RowsAffected == 1, res.Error
}

func (s *Service) SaveEvent(ctx context.Context, event *models.UserEvent) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	if err := s.DB.WithContext(ctx).Create(event).Error; err != nil {
		s.Log.Error().Err(err).Uint("user_id", event.UserID).Str("type", event.Type).Msg("failed to save user event")
		return err
	}
	return nil
}

// PositionStats is one row of the dashboard.
type PositionStats struct {
	Position   models.Position `json:"position"`
	Unmatched  int64           `json:"unmatched"`
	Prechat    int64           `json:"prechat"`
	InChatroom int64           `json:"inChatroom"`
}

type positionCount struct {
	Position models.Position
	N        int64
}

// GetStats counts connected users by position and stage.
func (s *Service) GetStats(ctx context.Context) ([]PositionStats, error) {
	stages := []struct {
		where string
		set   func(*PositionStats, int64)
	}{
		{"chatroom_id IS NULL AND waiting_session_id IS NOT NULL", func(p *PositionStats, n int64) { p.Unmatched = n }},
		{"chatroom_id IS NOT NULL AND chatroom_session_id IS NULL AND waiting_session_id IS NOT NULL", func(p *PositionStats, n int64) { p.Prechat = n }},
		{"chatroom_session_id IS NOT NULL", func(p *PositionStats, n int64) { p.InChatroom = n }},
	}

	stats := []PositionStats{{Position: models.PositionSupport}, {Position: models.PositionOppose}}
	for _, stage := range stages {
		var rows []positionCount
		err := s.DB.WithContext(ctx).Model(&models.User{}).
			Select("position, count(*) as n").
			Where(stage.where).
			Group("position").
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("count users: %w", err)
		}
		for _, row := range rows {
			for i := range stats {
				if stats[i].Position == row.Position {
					stage.set(&stats[i], row.N)
				}
			}
		}
	}
	return stats, nil
}

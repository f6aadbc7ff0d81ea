// Package moderation holds the actions taken on a chatroom or a participant
// from outside the conversation: a moderator clearing a chatroom and a user
// recording why they left.
package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"debatechat/backend/internal/models"
	"debatechat/backend/internal/storage"

	"github.com/rs/zerolog"
)

// Service handles the business logic for moderation.
type Service struct {
	Storage storage.Storage
	Log     zerolog.Logger
}

// NewService creates a new moderation service.
func NewService(s storage.Storage, logger zerolog.Logger) *Service {
	return &Service{
		Storage: s,
		Log:     logger.With().Str("component", "moderation").Logger(),
	}
}

// ClearChatroom wipes a chatroom's conversation and tells both members'
// open chatroom connections to reset. It returns the number of messages
// deleted.
func (s *Service) ClearChatroom(ctx context.Context, chatroomID uint) (int64, error) {
	if _, err := s.Storage.GetChatroom(ctx, chatroomID); err != nil {
		return 0, err
	}

	deleted, err := s.Storage.ClearChatroom(ctx, chatroomID)
	if err != nil {
		return 0, err
	}

	members, err := s.Storage.GetChatroomMembers(ctx, chatroomID)
	if err != nil {
		return deleted, err
	}
	env, err := models.NewEnvelope(models.EventNameClear, models.ClearPayload{ChatroomID: chatroomID})
	if err != nil {
		return deleted, err
	}
	for _, member := range members {
		if member.ChatroomSessionID == nil {
			continue
		}
		if err := s.Storage.PublishDelivery(ctx, models.Delivery{SessionID: *member.ChatroomSessionID, Envelope: env}); err != nil {
			return deleted, fmt.Errorf("notify user %d of clear: %w", member.ID, err)
		}
	}

	s.Log.Info().Uint("chatroom_id", chatroomID).Int64("deleted", deleted).Msg("chatroom cleared")
	return deleted, nil
}

// RecordLeave stores why a user abandoned the study.
func (s *Service) RecordLeave(ctx context.Context, userID uint, reason string) error {
	if err := s.Storage.SetLeaveReason(ctx, userID, reason); err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return err
	}
	return s.Storage.SaveEvent(ctx, &models.UserEvent{
		UserID:  userID,
		Type:    models.EventLeave,
		Time:    time.Now().UTC(),
		Payload: payload,
	})
}

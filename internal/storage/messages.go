package storage

import (
	"context"
	"fmt"

	"debatechat/backend/internal/models"

	"gorm.io/gorm"
)

// MessageResolution finalizes a message that was held back for a rephrasing
// choice. RephrasingID nil means the sender kept their own text.
type MessageResolution struct {
	MessageID            uint
	SenderID             uint
	RephrasingID         *uint
	RephrasingEditedBody *string
	EditedBody           *string
}

// GetChatHistory returns a chatroom's messages in send order with their
// accepted rephrasings loaded, ready for SelectedBody.
func (s *Service) GetChatHistory(ctx context.Context, chatroomID uint) ([]models.Message, error) {
	var messages []models.Message
	err := s.DB.WithContext(ctx).
		Preload("AcceptedRephrasing").
		Where("chatroom_id = ?", chatroomID).
		Order("send_time asc").Order("id asc").
		Find(&messages).Error
	if err != nil {
		s.Log.Error().Err(err).Uint("chatroom_id", chatroomID).Msg("failed to get chat history")
		return nil, err
	}
	return messages, nil
}

func (s *Service) SaveMessage(ctx context.Context, msg *models.Message) error {
	if err := s.DB.WithContext(ctx).Create(msg).Error; err != nil {
		s.Log.Error().Err(err).Uint("chatroom_id", msg.ChatroomID).Msg("failed to save message")
		return err
	}
	return nil
}

func (s *Service) GetMessage(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	if err := s.DB.WithContext(ctx).Preload("AcceptedRephrasing").First(&msg, id).Error; err != nil {
		return nil, notFound(err, "message", id)
	}
	return &msg, nil
}

// ListPendingMessages returns the sender's messages still waiting for a
// rephrasing choice, with their offered rephrasings.
func (s *Service) ListPendingMessages(ctx context.Context, chatroomID, senderID uint) ([]models.Message, error) {
	var messages []models.Message
	err := s.DB.WithContext(ctx).
		Preload("Rephrasings", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Where("chatroom_id = ? AND sender_id = ? AND delivered = ?", chatroomID, senderID, false).
		Order("send_time asc").Order("id asc").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list pending messages: %w", err)
	}
	return messages, nil
}

func (s *Service) GetRephrasing(ctx context.Context, id uint) (*models.Rephrasing, error) {
	var r models.Rephrasing
	if err := s.DB.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, notFound(err, "rephrasing", id)
	}
	return &r, nil
}

func (s *Service) SaveRephrasings(ctx context.Context, rephrasings []models.Rephrasing) error {
	if len(rephrasings) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Create(&rephrasings).Error
}

// ResolveMessage records the sender's choice and marks the message
// delivered. It reports false when the message was already resolved.
func (s *Service) ResolveMessage(ctx context.Context, res MessageResolution) (bool, error) {
	resolved := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		update := tx.Model(&models.Message{}).
			Where("id = ? AND sender_id = ? AND delivered = ?", res.MessageID, res.SenderID, false).
			Updates(map[string]interface{}{
				"accepted_rephrasing_id": res.RephrasingID,
				"edited_body":            res.EditedBody,
				"delivered":              true,
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected != 1 {
			return nil
		}
		resolved = true

		if res.RephrasingID != nil && res.RephrasingEditedBody != nil {
			return tx.Model(&models.Rephrasing{}).
				Where("id = ? AND message_id = ?", *res.RephrasingID, res.MessageID).
				Update("edited_body", *res.RephrasingEditedBody).Error
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("resolve message %d: %w", res.MessageID, err)
	}
	return resolved, nil
}

// SeedInitialViews inserts the two pre-chat views as the first messages of a
// chatroom, exactly once.
func (s *Service) SeedInitialViews(ctx context.Context, chatroomID uint, views []models.Message) (bool, error) {
	seeded := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Chatroom{}).
			Where("id = ? AND views_seeded = ?", chatroomID, false).
			Update("views_seeded", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return nil
		}
		for i := range views {
			views[i].ChatroomID = chatroomID
			if err := tx.Create(&views[i]).Error; err != nil {
				return err
			}
		}
		seeded = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("seed views for chatroom %d: %w", chatroomID, err)
	}
	return seeded, nil
}

// ClearChatroom deletes every message and rephrasing of a chatroom and
// resets its flags, so the views are seeded again on the next connect.
func (s *Service) ClearChatroom(ctx context.Context, id uint) (int64, error) {
	var deleted int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		messageIDs := tx.Model(&models.Message{}).Select("id").Where("chatroom_id = ?", id)
		if err := tx.Where("message_id IN (?)", messageIDs).Delete(&models.Rephrasing{}).Error; err != nil {
			return err
		}
		res := tx.Where("chatroom_id = ?", id).Delete(&models.Message{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return tx.Model(&models.Chatroom{}).Where("id = ?", id).
			Updates(map[string]interface{}{"views_seeded": false, "limit_reached": false}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("clear chatroom %d: %w", id, err)
	}
	return deleted, nil
}

package moderation_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"debatechat/backend/internal/apperrors"
	"debatechat/backend/internal/models"
	"debatechat/backend/internal/moderation"
	"debatechat/backend/internal/storage"
	"debatechat/backend/internal/storage/storagetest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClearChatroom_NotifiesConnectedMembers(t *testing.T) {
	store := storagetest.NewStore(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	a := &models.User{ResponseID: "a", Position: models.PositionSupport}
	b := &models.User{ResponseID: "b", Position: models.PositionOppose}
	require.NoError(t, store.CreateUser(ctx, a))
	require.NoError(t, store.CreateUser(ctx, b))
	room, err := store.CommitMatch(ctx, storage.MatchClaim{
		Users: [2]storage.Claim{{UserID: a.ID, Version: a.Version}, {UserID: b.ID, Version: b.Version}},
		Now:   now,
	})
	require.NoError(t, err)
	require.NoError(t, store.StartChatSession(ctx, a.ID, "chat-a", now))

	require.NoError(t, store.SaveMessage(ctx, &models.Message{ChatroomID: room.ID, SenderID: a.ID, Body: "one", SendTime: now, Delivered: true}))
	require.NoError(t, store.SaveMessage(ctx, &models.Message{ChatroomID: room.ID, SenderID: b.ID, Body: "two", SendTime: now.Add(time.Second), Delivered: true}))

	svc := moderation.NewService(store, zerolog.Nop())
	deleted, err := svc.ClearChatroom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	deliveries := store.Deliveries()
	require.Len(t, deliveries, 1, "only the connected member is notified")
	assert.Equal(t, "chat-a", deliveries[0].SessionID)
	assert.Equal(t, models.EventNameClear, deliveries[0].Envelope.Event)

	var payload models.ClearPayload
	require.NoError(t, json.Unmarshal(deliveries[0].Envelope.Data, &payload))
	assert.Equal(t, room.ID, payload.ChatroomID)
}

func TestClearChatroom_Unknown(t *testing.T) {
	store := storagetest.NewStore(t)
	svc := moderation.NewService(store, zerolog.Nop())

	_, err := svc.ClearChatroom(context.Background(), 99)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, store.Deliveries())
}

func TestRecordLeave(t *testing.T) {
	store := storagetest.NewStore(t)
	ctx := context.Background()
	u := &models.User{ResponseID: "a", Position: models.PositionSupport}
	require.NoError(t, store.CreateUser(ctx, u))

	svc := moderation.NewService(store, zerolog.Nop())
	require.NoError(t, svc.RecordLeave(ctx, u.ID, "took too long"))

	got, err := store.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LeaveReason)
	assert.Equal(t, "took too long", *got.LeaveReason)

	var events []models.UserEvent
	require.NoError(t, store.DB.Where("user_id = ? AND type = ?", u.ID, models.EventLeave).Find(&events).Error)
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"reason":"took too long"}`, string(events[0].Payload))
}

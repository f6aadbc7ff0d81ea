package chathub_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"debatechat/backend/internal/chathub"
	"debatechat/backend/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, publisher chathub.Publisher) *chathub.ManagerService {
	t.Helper()
	hub := chathub.NewManagerService(publisher, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func receive(t *testing.T, c *MockClient) models.Envelope {
	t.Helper()
	select {
	case env := <-c.RecvChannel:
		return env
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", c.sessionID)
		return models.Envelope{}
	}
}

func TestManager_EmitLoopsBackToLocalClient(t *testing.T) {
	hub := startHub(t, nil)
	clientA := newMockClient("sess-A", 1, models.NamespaceChatroom, models.PageChatroom)
	clientB := newMockClient("sess-B", 2, models.NamespaceChatroom, models.PageChatroom)
	require.True(t, hub.Register(clientA))
	require.True(t, hub.Register(clientB))

	require.NoError(t, hub.Emit(context.Background(), "sess-B", models.EventNameNewMessage, models.NewMessagePayload{UserID: 1, Message: "hello"}))

	env := receive(t, clientB)
	assert.Equal(t, models.EventNameNewMessage, env.Event)
	var payload models.NewMessagePayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "hello", payload.Message)
	assert.Empty(t, clientA.RecvChannel)
}

func TestManager_EmptySessionIsDiscarded(t *testing.T) {
	hub := startHub(t, nil)
	assert.NoError(t, hub.Emit(context.Background(), "", models.EventNameTyping, nil))
}

func TestManager_UnregisterClosesClient(t *testing.T) {
	hub := startHub(t, nil)
	client := newMockClient("sess-A", 1, models.NamespaceWaitingRoom, models.PageWaiting)
	require.True(t, hub.Register(client))

	hub.Unregister(client)
	assert.Eventually(t, client.IsClosed, time.Second, 10*time.Millisecond)

	// Deliveries to a gone session are ignored.
	require.NoError(t, hub.Emit(context.Background(), "sess-A", models.EventNameTyping, nil))
}

func TestManager_UnregisterIgnoresReplacedClient(t *testing.T) {
	hub := startHub(t, nil)
	stale := newMockClient("sess-A", 1, models.NamespaceWaitingRoom, models.PageWaiting)
	fresh := newMockClient("sess-A", 1, models.NamespaceWaitingRoom, models.PageWaiting)
	require.True(t, hub.Register(stale))
	require.True(t, hub.Register(fresh))

	hub.Unregister(stale)
	require.NoError(t, hub.Emit(context.Background(), "sess-A", models.EventNameTyping, nil))
	assert.Equal(t, models.EventNameTyping, receive(t, fresh).Event)
	assert.False(t, fresh.IsClosed())
}

func TestManager_SlowClientIsDropped(t *testing.T) {
	hub := startHub(t, nil)
	client := newMockClient("sess-A", 1, models.NamespaceChatroom, models.PageChatroom)
	require.True(t, hub.Register(client))

	for i := 0; i < cap(client.RecvChannel)+1; i++ {
		require.NoError(t, hub.Emit(context.Background(), "sess-A", models.EventNameTyping, nil))
	}
	assert.Eventually(t, client.IsClosed, time.Second, 10*time.Millisecond)
}

func TestManager_StopClosesClients(t *testing.T) {
	hub := chathub.NewManagerService(nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := newMockClient("sess-A", 1, models.NamespaceChatroom, models.PageChatroom)
	require.True(t, hub.Register(client))
	cancel()
	<-stopped

	assert.True(t, client.IsClosed())
	assert.False(t, hub.Register(newMockClient("late", 2, models.NamespaceChatroom, models.PageChatroom)))
	assert.ErrorIs(t, hub.Emit(context.Background(), "sess-A", models.EventNameTyping, nil), chathub.ErrHubStopped)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishDelivery(ctx context.Context, d models.Delivery) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func TestManager_EmitPublishesWhenConfigured(t *testing.T) {
	publisher := new(MockPublisher)
	publisher.On("PublishDelivery", mock.Anything, mock.MatchedBy(func(d models.Delivery) bool {
		return d.SessionID == "remote" && d.Envelope.Event == models.EventNamePartnerStatus
	})).Return(nil).Once()

	hub := chathub.NewManagerService(publisher, zerolog.Nop())
	require.NoError(t, hub.Emit(context.Background(), "remote", models.EventNamePartnerStatus, models.PartnerStatusPayload{Status: models.PartnerOnline}))
	publisher.AssertExpectations(t)
}

package chathub_test

import (
	"context"
	"sync"

	"debatechat/backend/internal/models"
)

// MockClient is a connection with no socket behind it.
type MockClient struct {
	sessionID string
	userID    uint
	namespace models.Namespace
	page      models.Page

	RecvChannel chan models.Envelope

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closed    chan struct{}
}

func newMockClient(sessionID string, userID uint, ns models.Namespace, page models.Page) *MockClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &MockClient{
		sessionID:   sessionID,
		userID:      userID,
		namespace:   ns,
		page:        page,
		RecvChannel: make(chan models.Envelope, 10),
		ctx:         ctx,
		cancel:      cancel,
		closed:      make(chan struct{}),
	}
}

func (c *MockClient) GetSessionID() string                   { return c.sessionID }
func (c *MockClient) GetUserID() uint                        { return c.userID }
func (c *MockClient) GetNamespace() models.Namespace         { return c.namespace }
func (c *MockClient) GetPage() models.Page                   { return c.page }
func (c *MockClient) GetSendChannel() chan<- models.Envelope { return c.RecvChannel }
func (c *MockClient) Context() context.Context               { return c.ctx }

func (c *MockClient) Run() {
	// Not needed for testing
}

func (c *MockClient) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.closed)
	})
}

func (c *MockClient) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

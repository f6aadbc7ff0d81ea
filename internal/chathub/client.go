package chathub

import (
	"context"

	"debatechat/backend/internal/models"
)

// Client is one live connection to either namespace. The hub owns its send
// channel; the coordinator only reads its identity.
type Client interface {
	// GetSessionID returns the id deliveries are addressed to. It is unique
	// per connection, so a reconnect gets a new one.
	GetSessionID() string
	GetUserID() uint
	GetNamespace() models.Namespace
	// GetPage returns the screen the client said it was on when it connected.
	GetPage() models.Page

	// GetSendChannel returns the channel the hub writes envelopes to.
	GetSendChannel() chan<- models.Envelope

	// Context is cancelled when the connection closes. Work started on
	// behalf of the connection, like rephrasing generation, is bound to it.
	Context() context.Context

	// Run starts the client's read and write pumps.
	Run()
	// Close cancels the context and stops the write pump. It is idempotent.
	Close()
}

// EventHandler reacts to a connection's lifecycle and its inbound events.
// All three methods are called from the client's read pump, in order.
type EventHandler interface {
	Connect(c Client)
	HandleEvent(c Client, env models.Envelope)
	Disconnect(c Client)
}

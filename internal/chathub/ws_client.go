package chathub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"debatechat/backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 64
)

// WebSocketClient implements Client over a gorilla websocket.
type WebSocketClient struct {
	SessionID string
	UserID    uint
	Namespace models.Namespace
	Page      models.Page

	Conn    *websocket.Conn
	Hub     *ManagerService
	Handler EventHandler
	Send    chan models.Envelope
	Log     zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func NewWebSocketClient(conn *websocket.Conn, hub *ManagerService, handler EventHandler, userID uint, ns models.Namespace, page models.Page, logger zerolog.Logger) *WebSocketClient {
	ctx, cancel := context.WithCancel(context.Background())
	sessionID := uuid.NewString()
	return &WebSocketClient{
		SessionID: sessionID,
		UserID:    userID,
		Namespace: ns,
		Page:      page,
		Conn:      conn,
		Hub:       hub,
		Handler:   handler,
		Send:      make(chan models.Envelope, sendBufferSize),
		Log: logger.With().
			Str("session_id", sessionID).
			Uint("user_id", userID).
			Str("namespace", string(ns)).
			Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *WebSocketClient) GetSessionID() string                   { return c.SessionID }
func (c *WebSocketClient) GetUserID() uint                        { return c.UserID }
func (c *WebSocketClient) GetNamespace() models.Namespace         { return c.Namespace }
func (c *WebSocketClient) GetPage() models.Page                   { return c.Page }
func (c *WebSocketClient) GetSendChannel() chan<- models.Envelope { return c.Send }
func (c *WebSocketClient) Context() context.Context               { return c.ctx }

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close cancels in-flight work and closes Send, which stops writePump.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.Send)
	})
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Handler.Disconnect(c)
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.Handler.Connect(c)

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Log.Warn().Err(err).Msg("error reading message")
			}
			break
		}

		var env models.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.Log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		c.Handler.HandleEvent(c, env)
	}
}

// writePump writes every envelope from Send as its own text frame.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(env); err != nil {
				c.Log.Warn().Err(err).Str("event", env.Event).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package chathub

import (
	"context"
	"errors"

	"debatechat/backend/internal/metrics"
	"debatechat/backend/internal/models"

	"github.com/rs/zerolog"
)

// ErrHubStopped is returned by Emit once the hub's Run loop has exited.
var ErrHubStopped = errors.New("hub stopped")

// Publisher fans deliveries out to every process.
type Publisher interface {
	PublishDelivery(ctx context.Context, delivery models.Delivery) error
}

// Emitter addresses an event to one connection, wherever it lives.
type Emitter interface {
	Emit(ctx context.Context, sessionID, event string, payload interface{}) error
}

// ManagerService is the per-process hub. It owns the connections of this
// process, keyed by session id, and hands them the deliveries addressed to
// them. Only the Run goroutine touches Clients.
type ManagerService struct {
	Clients map[string]Client

	RegisterCh   chan Client
	UnregisterCh chan Client
	DeliverCh    chan models.Delivery

	// Publisher is nil in single-process setups and tests; Emit then loops
	// deliveries straight back into DeliverCh.
	Publisher Publisher
	Log       zerolog.Logger

	done chan struct{}
}

var _ Emitter = (*ManagerService)(nil)

func NewManagerService(publisher Publisher, logger zerolog.Logger) *ManagerService {
	return &ManagerService{
		Clients:      make(map[string]Client),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		DeliverCh:    make(chan models.Delivery, 256),
		Publisher:    publisher,
		Log:          logger.With().Str("component", "hub").Logger(),
		done:         make(chan struct{}),
	}
}

// Run processes registrations and deliveries until ctx is cancelled, then
// closes every remaining client.
func (m *ManagerService) Run(ctx context.Context) {
	m.Log.Info().Msg("hub started")
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			for id, client := range m.Clients {
				m.drop(id, client)
			}
			m.Log.Info().Msg("hub stopped")
			return

		case client := <-m.RegisterCh:
			m.Clients[client.GetSessionID()] = client
			metrics.ActiveConnections.WithLabelValues(string(client.GetNamespace())).Inc()

		case client := <-m.UnregisterCh:
			if existing, ok := m.Clients[client.GetSessionID()]; ok && existing == client {
				m.drop(client.GetSessionID(), client)
			}

		case d := <-m.DeliverCh:
			client, ok := m.Clients[d.SessionID]
			if !ok {
				// Owned by another process, or already gone.
				continue
			}
			select {
			case client.GetSendChannel() <- d.Envelope:
			default:
				m.Log.Warn().Str("session_id", d.SessionID).Str("event", d.Envelope.Event).Msg("send buffer full, dropping client")
				m.drop(d.SessionID, client)
			}
		}
	}
}

func (m *ManagerService) drop(sessionID string, client Client) {
	delete(m.Clients, sessionID)
	client.Close()
	metrics.ActiveConnections.WithLabelValues(string(client.GetNamespace())).Dec()
}

// Register adds a client. It returns false if the hub has stopped.
func (m *ManagerService) Register(c Client) bool {
	select {
	case m.RegisterCh <- c:
		return true
	case <-m.done:
		return false
	}
}

// Unregister removes and closes a client.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
		c.Close()
	}
}

// Emit encodes payload and routes it to sessionID. An empty sessionID means
// the recipient is not connected and the event is discarded.
func (m *ManagerService) Emit(ctx context.Context, sessionID, event string, payload interface{}) error {
	if sessionID == "" {
		return nil
	}
	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	d := models.Delivery{SessionID: sessionID, Envelope: env}

	if m.Publisher != nil {
		return m.Publisher.PublishDelivery(ctx, d)
	}
	return m.deliver(ctx, d)
}

func (m *ManagerService) deliver(ctx context.Context, d models.Delivery) error {
	select {
	case <-m.done:
		return ErrHubStopped
	default:
	}
	select {
	case m.DeliverCh <- d:
		return nil
	case <-m.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

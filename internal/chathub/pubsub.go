package chathub

import (
	"context"
	"encoding/json"

	"debatechat/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// DeliverySubscriber opens the cross-process delivery subscription.
type DeliverySubscriber interface {
	SubscribeDeliveries(ctx context.Context) *redis.PubSub
}

// StartPubSubListener feeds deliveries published by any process into this
// hub until ctx is cancelled.
func (m *ManagerService) StartPubSubListener(ctx context.Context, sub DeliverySubscriber) {
	go func() {
		pubsub := sub.SubscribeDeliveries(ctx)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				d, err := decodeDelivery(msg.Payload)
				if err != nil {
					m.Log.Error().Err(err).Msg("error unmarshalling redis delivery")
					continue
				}
				if err := m.deliver(ctx, d); err != nil {
					return
				}
			}
		}
	}()
}

func decodeDelivery(payload string) (models.Delivery, error) {
	var d models.Delivery
	err := json.Unmarshal([]byte(payload), &d)
	return d, err
}

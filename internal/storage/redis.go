package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"debatechat/backend/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DeliveryChannel carries every server-to-client frame between processes.
const DeliveryChannel = "chat:deliveries"

// ErrLockTimeout is returned when a chatroom lock could not be taken in time.
var ErrLockTimeout = errors.New("chatroom lock wait expired")

const lockRetryInterval = 25 * time.Millisecond

// Deletes the lock only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func chatroomLockKey(chatroomID uint) string {
	return fmt.Sprintf("lock:chatroom:%d", chatroomID)
}

// PublishDelivery hands an envelope to whichever process owns the session.
func (s *Service) PublishDelivery(ctx context.Context, delivery models.Delivery) error {
	payload, err := json.Marshal(delivery)
	if err != nil {
		return err
	}
	if err := s.Redis.Publish(ctx, DeliveryChannel, payload).Err(); err != nil {
		s.Log.Error().Err(err).Str("session_id", delivery.SessionID).Msg("failed to publish delivery")
		return err
	}
	return nil
}

// SubscribeDeliveries subscribes to the delivery channel. The caller closes
// the returned PubSub.
func (s *Service) SubscribeDeliveries(ctx context.Context) *redis.PubSub {
	return s.Redis.Subscribe(ctx, DeliveryChannel)
}

// LockChatroom serializes message processing for one chatroom across all
// processes. It retries until wait elapses and returns an unlock function.
// The lock expires on its own after ttl if the holder dies.
func (s *Service) LockChatroom(ctx context.Context, chatroomID uint, ttl, wait time.Duration) (func(), error) {
	key := chatroomLockKey(chatroomID)
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := s.Redis.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock chatroom %d: %w", chatroomID, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	return func() {
		// The caller's ctx may already be cancelled when it unlocks.
		if err := unlockScript.Run(context.Background(), s.Redis, []string{key}, token).Err(); err != nil {
			s.Log.Warn().Err(err).Uint("chatroom_id", chatroomID).Msg("failed to release chatroom lock")
		}
	}, nil
}

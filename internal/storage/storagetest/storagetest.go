// Package storagetest provides an in-memory Storage for tests: the real gorm
// Service on sqlite, with Redis delivery and locking replaced by in-process
// equivalents.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"debatechat/backend/internal/models"
	"debatechat/backend/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewService returns a migrated Service backed by a private in-memory
// sqlite database. Its Redis client is nil.
func NewService(t testing.TB) *storage.Service {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, storage.AutoMigrate(db))
	return storage.NewStorageService(db, nil, zerolog.Nop())
}

// Store records published deliveries and locks chatrooms with in-process
// mutexes.
type Store struct {
	*storage.Service

	mu         sync.Mutex
	deliveries []models.Delivery
	locks      map[uint]*sync.Mutex
	// OnPublish, if set, receives every delivery after it is recorded.
	OnPublish func(models.Delivery)
}

var _ storage.Storage = (*Store)(nil)

func NewStore(t testing.TB) *Store {
	return &Store{Service: NewService(t), locks: make(map[uint]*sync.Mutex)}
}

func (s *Store) PublishDelivery(_ context.Context, d models.Delivery) error {
	s.mu.Lock()
	s.deliveries = append(s.deliveries, d)
	hook := s.OnPublish
	s.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return nil
}

func (s *Store) LockChatroom(_ context.Context, chatroomID uint, _, _ time.Duration) (func(), error) {
	s.mu.Lock()
	l, ok := s.locks[chatroomID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chatroomID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock, nil
}

// Deliveries returns a copy of everything published so far.
func (s *Store) Deliveries() []models.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Delivery(nil), s.deliveries...)
}

// DeliveriesTo returns the events published to one session, in order.
func (s *Store) DeliveriesTo(sessionID string) []models.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Envelope
	for _, d := range s.deliveries {
		if d.SessionID == sessionID {
			out = append(out, d.Envelope)
		}
	}
	return out
}

// Reset forgets recorded deliveries.
func (s *Store) Reset() {
	s.mu.Lock()
	s.deliveries = nil
	s.mu.Unlock()
}

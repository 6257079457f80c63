// Package session stores conversation sessions keyed by user id.
package session

import (
	"context"
	"sync"

	"order-bot/internal/domain"
)

// Store abstracts the session backend.
type Store interface {
	Get(ctx context.Context, userID int64) (domain.Session, bool, error)
	Put(ctx context.Context, sess domain.Session) error
	Delete(ctx context.Context, userID int64) error
}

// MemoryStore is a thread-safe map store. Sessions are lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[int64]domain.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[int64]domain.Session)}
}

func (s *MemoryStore) Get(_ context.Context, userID int64) (domain.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.data[userID]
	return sess, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sess.UserID] = sess
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, userID)
	return nil
}

// Range visits a copy of every session in no particular order.
func (s *MemoryStore) Range(fn func(sess domain.Session) error) error {
	s.mu.RLock()
	all := make([]domain.Session, 0, len(s.data))
	for _, sess := range s.data {
		all = append(all, sess)
	}
	s.mu.RUnlock()
	for _, sess := range all {
		if err := fn(sess); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

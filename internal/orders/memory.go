package orders

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"order-bot/internal/domain"
)

// Checkpointer persists the full order mapping.
type Checkpointer interface {
	Load() (map[string]domain.Order, error)
	Save(all map[string]domain.Order) error
}

// MemoryStore keeps orders in a map. It is authoritative while the process
// runs; the optional checkpoint is written only on Flush and Delete.
type MemoryStore struct {
	mu         sync.RWMutex
	data       map[string]domain.Order
	checkpoint Checkpointer
}

// NewMemoryStore creates a store. When cp is non-nil its contents are loaded.
func NewMemoryStore(cp Checkpointer) (*MemoryStore, error) {
	s := &MemoryStore{data: make(map[string]domain.Order), checkpoint: cp}
	if cp == nil {
		return s, nil
	}
	all, err := cp.Load()
	if err != nil {
		return nil, fmt.Errorf("orders: load checkpoint: %w", err)
	}
	for k, v := range all {
		s.data[k] = v
	}
	return s, nil
}

func (s *MemoryStore) Create(_ context.Context, userID int64) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := domain.Order{}
	s.data[Key(userID)] = o
	return o, nil
}

func (s *MemoryStore) Get(_ context.Context, userID int64) (domain.Order, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.data[Key(userID)]
	if !ok {
		return domain.Order{}, false, nil
	}
	return o.Clone(), true, nil
}

func (s *MemoryStore) SetField(_ context.Context, userID int64, field Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.data[Key(userID)]
	if err := ApplyField(&o, field, value); err != nil {
		return err
	}
	s.data[Key(userID)] = o
	return nil
}

func (s *MemoryStore) ReplaceLineItems(_ context.Context, userID int64, items []domain.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.data[Key(userID)]
	o.Items = append([]domain.LineItem(nil), items...)
	s.data[Key(userID)] = o
	return nil
}

// Delete drops the user's order and rewrites the checkpoint.
func (s *MemoryStore) Delete(ctx context.Context, userID int64) error {
	s.mu.Lock()
	delete(s.data, Key(userID))
	s.mu.Unlock()
	return s.Flush(ctx)
}

// Retain drops every order whose owner keep rejects and rewrites the
// checkpoint when something was dropped. Keys that are not user ids are
// dropped too.
func (s *MemoryStore) Retain(ctx context.Context, keep func(userID int64) bool) (int, error) {
	s.mu.Lock()
	removed := 0
	for k := range s.data {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil || !keep(id) {
			delete(s.data, k)
			removed++
		}
	}
	s.mu.Unlock()
	if removed == 0 {
		return 0, nil
	}
	return removed, s.Flush(ctx)
}

// Flush writes the whole mapping to the checkpoint, if one is configured.
func (s *MemoryStore) Flush(_ context.Context) error {
	if s.checkpoint == nil {
		return nil
	}
	if err := s.checkpoint.Save(s.Snapshot()); err != nil {
		return fmt.Errorf("orders: flush: %w", err)
	}
	return nil
}

// Snapshot returns a deep copy of every order.
func (s *MemoryStore) Snapshot() map[string]domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.Order, len(s.data))
	for k, v := range s.data {
		out[k] = v.Clone()
	}
	return out
}

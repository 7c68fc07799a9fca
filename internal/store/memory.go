package store

import (
	"context"
	"sync"

	"github.com/rcliao/memory-engine/internal/model"
)

// MemoryStore keeps entries in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*model.Entry
	order   []string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*model.Entry)}
}

func (s *MemoryStore) Put(ctx context.Context, e *model.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; !ok {
		s.order = append(s.order, e.ID)
	}
	s.entries[e.ID] = e.Clone()
	return nil
}

func (s *MemoryStore) GetAll(ctx context.Context) ([]*model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].Clone())
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return nil
	}
	delete(s.entries, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

package uploader

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store persists upload records. Implementations must return copies so
// callers can mutate what they get back.
type Store interface {
	NextID(ctx context.Context) (int, error)
	Save(ctx context.Context, u *Upload) error
	Get(ctx context.Context, id int) (*Upload, error)
	List(ctx context.Context) ([]*Upload, error)
	Delete(ctx context.Context, id int) error
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	next    int
	records map[int]*Upload
}

// NewMemoryStore returns an empty store whose first ID is 0, matching the
// engine's zero-based file ids.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[int]*Upload{}}
}

func (s *MemoryStore) NextID(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	return id, nil
}

func (s *MemoryStore) Save(_ context.Context, u *Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[u.ID] = u.clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id int) (*Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("upload %d: %w", id, ErrNotFound)
	}
	return u.clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Upload, 0, len(s.records))
	for _, u := range s.records {
		out = append(out, u.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

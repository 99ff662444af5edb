package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps values in a map.
type MemoryRepository[T any] struct {
	mu     sync.RWMutex
	values map[uuid.UUID]T
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository[T any]() *MemoryRepository[T] {
	return &MemoryRepository[T]{values: make(map[uuid.UUID]T)}
}

func (r *MemoryRepository[T]) Create(ctx context.Context, v T) (uuid.UUID, error) {
	id := uuid.New()
	return id, r.Put(ctx, id, v)
}

func (r *MemoryRepository[T]) Put(_ context.Context, id uuid.UUID, v T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[id] = v
	return nil
}

func (r *MemoryRepository[T]) Read(_ context.Context, id uuid.UUID) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[id]
	if !ok {
		return v, notFound(id)
	}
	return v, nil
}

func (r *MemoryRepository[T]) Update(_ context.Context, id uuid.UUID, v T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.values[id]; !ok {
		return notFound(id)
	}
	r.values[id] = v
	return nil
}

func (r *MemoryRepository[T]) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.values[id]
	delete(r.values, id)
	return ok, nil
}

func (r *MemoryRepository[T]) List(context.Context) ([]Entry[T], error) {
	r.mu.RLock()
	entries := make([]Entry[T], 0, len(r.values))
	for id, v := range r.values {
		entries = append(entries, Entry[T]{ID: id, Value: v})
	}
	r.mu.RUnlock()
	sortEntries(entries)
	return entries, nil
}

// MemoryHistory keeps process history in a slice per task.
type MemoryHistory struct {
	mu      sync.RWMutex
	entries map[string][]models.ProcessHistory
}

// NewMemoryHistory creates an empty history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{entries: make(map[string][]models.ProcessHistory)}
}

func (h *MemoryHistory) Record(_ context.Context, e models.ProcessHistory) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[e.TaskHash] = append(h.entries[e.TaskHash], e)
	return nil
}

func (h *MemoryHistory) LastSuccess(_ context.Context, taskHash string) (*time.Time, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var last *time.Time
	for _, e := range h.entries[taskHash] {
		if e.State != stateCompleted {
			continue
		}
		if last == nil || e.StartTime.After(*last) {
			t := e.StartTime
			last = &t
		}
	}
	return last, nil
}

func (h *MemoryHistory) List(_ context.Context, taskHash string) ([]models.ProcessHistory, error) {
	h.mu.RLock()
	out := append([]models.ProcessHistory(nil), h.entries[taskHash]...)
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}

// stateCompleted mirrors the process state name; the store does not depend
// on the pipeline package.
const stateCompleted = "COMPLETED"

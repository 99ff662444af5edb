// Package store persists task definitions, trigger instance definitions and
// process history.
//
// Two drivers exist: an in-memory one for one-shot runs and tests, and a
// PostgreSQL one (pgx) that keeps definitions as JSONB documents so that
// trigger instances survive restarts.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/ajitpratap0/harvester/pkg/config"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Entry is a stored value with its identifier.
type Entry[T any] struct {
	ID    uuid.UUID
	Value T
}

// Repository is CRUD storage keyed by UUID.
type Repository[T any] interface {
	// Create stores v under a fresh identifier.
	Create(ctx context.Context, v T) (uuid.UUID, error)
	// Put stores v under id, replacing any previous value.
	Put(ctx context.Context, id uuid.UUID, v T) error
	// Read returns the value stored under id or a not_found error.
	Read(ctx context.Context, id uuid.UUID) (T, error)
	// Update replaces an existing value or returns a not_found error.
	Update(ctx context.Context, id uuid.UUID, v T) error
	// Delete removes a value and reports whether it existed.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	// List returns every entry ordered by identifier.
	List(ctx context.Context) ([]Entry[T], error)
}

// HistoryRepository records finished processes.
type HistoryRepository interface {
	Record(ctx context.Context, h models.ProcessHistory) error
	// LastSuccess returns the start time of the latest COMPLETED process of
	// the task, or nil when there is none.
	LastSuccess(ctx context.Context, taskHash string) (*time.Time, error)
	// List returns the history of a task, newest first.
	List(ctx context.Context, taskHash string) ([]models.ProcessHistory, error)
}

// Stores groups the repositories the engine needs.
type Stores struct {
	Tasks    Repository[models.TaskDefinition]
	Triggers Repository[models.TriggerInstanceDefinition]
	History  HistoryRepository

	pool *pgxpool.Pool
}

// Close releases the database pool, if any.
func (s *Stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// NewMemoryStores creates stores that live as long as the process.
func NewMemoryStores() *Stores {
	return &Stores{
		Tasks:    NewMemoryRepository[models.TaskDefinition](),
		Triggers: NewMemoryRepository[models.TriggerInstanceDefinition](),
		History:  NewMemoryHistory(),
	}
}

// Open creates the stores selected by cfg.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*Stores, error) {
	switch cfg.Driver {
	case "", config.StoreMemory:
		return NewMemoryStores(), nil
	case config.StorePostgres:
		pool, err := Connect(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		tasks, err := NewPostgresRepository[models.TaskDefinition](ctx, pool, "harvester_tasks")
		if err != nil {
			pool.Close()
			return nil, err
		}
		triggers, err := NewPostgresRepository[models.TriggerInstanceDefinition](ctx, pool, "harvester_triggers")
		if err != nil {
			pool.Close()
			return nil, err
		}
		history, err := NewPostgresHistory(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return &Stores{Tasks: tasks, Triggers: triggers, History: history, pool: pool}, nil
	default:
		return nil, errors.New(errors.ErrorTypeConfig, "unknown store driver").WithDetail("driver", cfg.Driver)
	}
}

func notFound(id uuid.UUID) error {
	return errors.New(errors.ErrorTypeNotFound, "definition not found").WithDetail("id", id.String())
}

func sortEntries[T any](entries []Entry[T]) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID.String() < entries[j].ID.String()
	})
}

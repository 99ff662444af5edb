package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Connect opens a pgx pool and checks it answers.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse connection string")
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 4
	}
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create connection pool")
	}

	var version string
	if err := pool.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to validate connection")
	}
	logger.Info("connected to PostgreSQL store",
		zap.String("version", version),
		zap.Int32("max_connections", cfg.MaxConns))
	return pool, nil
}

// PostgresRepository stores values as JSONB documents in one table.
type PostgresRepository[T any] struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresRepository creates the table if needed.
func NewPostgresRepository[T any](ctx context.Context, pool *pgxpool.Pool, table string) (*PostgresRepository[T], error) {
	r := &PostgresRepository[T]{pool: pool, table: pgx.Identifier{table}.Sanitize()}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id UUID PRIMARY KEY,
		body JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, r.table)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create table").WithDetail("table", table)
	}
	return r, nil
}

func (r *PostgresRepository[T]) Create(ctx context.Context, v T) (uuid.UUID, error) {
	id := uuid.New()
	return id, r.Put(ctx, id, v)
}

func (r *PostgresRepository[T]) Put(ctx context.Context, id uuid.UUID, v T) error {
	body, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "failed to encode definition")
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, body) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`, r.table)
	if _, err := r.pool.Exec(ctx, query, id, body); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to store definition")
	}
	return nil
}

func (r *PostgresRepository[T]) Read(ctx context.Context, id uuid.UUID) (T, error) {
	var v T
	var body []byte
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT body FROM %s WHERE id = $1`, r.table), id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return v, notFound(id)
	}
	if err != nil {
		return v, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read definition")
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, errors.Wrap(err, errors.ErrorTypeValidation, "failed to decode definition")
	}
	return v, nil
}

func (r *PostgresRepository[T]) Update(ctx context.Context, id uuid.UUID, v T) error {
	body, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "failed to encode definition")
	}
	tag, err := r.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET body = $2, updated_at = now() WHERE id = $1`, r.table), id, body)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to update definition")
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

func (r *PostgresRepository[T]) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table), id)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeConnection, "failed to delete definition")
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository[T]) List(ctx context.Context) ([]Entry[T], error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT id, body FROM %s ORDER BY id`, r.table))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to list definitions")
	}
	defer rows.Close()

	var entries []Entry[T]
	for rows.Next() {
		var (
			id   uuid.UUID
			body []byte
			v    T
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to scan definition")
		}
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to decode definition").
				WithDetail("id", id.String())
		}
		entries = append(entries, Entry[T]{ID: id, Value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to list definitions")
	}
	sortEntries(entries)
	return entries, nil
}

// PostgresHistory stores process history rows.
type PostgresHistory struct {
	pool *pgxpool.Pool
}

// NewPostgresHistory creates the history table if needed.
func NewPostgresHistory(ctx context.Context, pool *pgxpool.Pool) (*PostgresHistory, error) {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS harvester_history (
			id UUID PRIMARY KEY,
			task_hash TEXT NOT NULL,
			task_name TEXT NOT NULL,
			state TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			harvested BIGINT NOT NULL,
			published BIGINT NOT NULL,
			failed BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS harvester_history_task ON harvester_history (task_hash, start_time DESC)`,
	}
	for _, stmt := range ddl {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create history table")
		}
	}
	return &PostgresHistory{pool: pool}, nil
}

func (h *PostgresHistory) Record(ctx context.Context, e models.ProcessHistory) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "invalid process id")
	}
	_, err = h.pool.Exec(ctx, `INSERT INTO harvester_history
		(id, task_hash, task_name, state, start_time, end_time, harvested, published, failed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		id, e.TaskHash, e.TaskName, e.State, e.StartTime, e.EndTime, e.Harvested, e.Published, e.Failed)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to record history")
	}
	return nil
}

func (h *PostgresHistory) LastSuccess(ctx context.Context, taskHash string) (*time.Time, error) {
	var last *time.Time
	err := h.pool.QueryRow(ctx,
		`SELECT max(start_time) FROM harvester_history WHERE task_hash = $1 AND state = $2`,
		taskHash, stateCompleted).Scan(&last)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read history")
	}
	return last, nil
}

func (h *PostgresHistory) List(ctx context.Context, taskHash string) ([]models.ProcessHistory, error) {
	rows, err := h.pool.Query(ctx, `SELECT id, task_hash, task_name, state, start_time, end_time,
		harvested, published, failed
		FROM harvester_history WHERE task_hash = $1 ORDER BY start_time DESC`, taskHash)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to list history")
	}
	defer rows.Close()

	var out []models.ProcessHistory
	for rows.Next() {
		var (
			e  models.ProcessHistory
			id uuid.UUID
		)
		if err := rows.Scan(&id, &e.TaskHash, &e.TaskName, &e.State, &e.StartTime, &e.EndTime,
			&e.Harvested, &e.Published, &e.Failed); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to scan history")
		}
		e.ID = id.String()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Package postgres upserts harvested documents into a PostgreSQL table.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/sdk"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Type is the connector type name.
const Type = "POSTGRES"

// Definition properties.
const (
	PropertyDSN      = "dsn"
	PropertyTable    = "table"
	PropertyMaxConns = "maxConnections"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Broker keeps one row per reference, keyed by the reference key.
type Broker struct {
	def      models.EntityDefinition
	dsn      string
	table    string
	ident    string
	maxConns int

	mu     sync.Mutex
	pool   *pgxpool.Pool
	upsert string
	logger *zap.Logger
}

// NewBroker builds a broker from def.
func NewBroker(def models.EntityDefinition) (core.OutputBroker, error) {
	return New(def)
}

// New builds a broker from def.
func New(def models.EntityDefinition) (*Broker, error) {
	v := sdk.NewPropertyValidator(def)
	dsn := v.Required(PropertyDSN)
	table := v.String(PropertyTable, "harvested_documents")
	maxConns := v.Int(PropertyMaxConns, 4, 1, 64)
	if err := v.Err(); err != nil {
		return nil, err
	}
	if !tableName.MatchString(table) {
		return nil, errors.New(errors.ErrorTypeConfig, "invalid table name").WithDetail(PropertyTable, table)
	}
	if _, err := pgxpool.ParseConfig(dsn); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse connection string").WithDetail("type", Type)
	}
	return &Broker{
		def:      def.Clone(),
		dsn:      dsn,
		table:    table,
		ident:    identifier(table),
		maxConns: maxConns,
		logger:   zap.NewNop(),
	}, nil
}

func identifier(table string) string {
	var parts pgx.Identifier
	start := 0
	for i := 0; i <= len(table); i++ {
		if i == len(table) || table[i] == '.' {
			parts = append(parts, table[start:i])
			start = i + 1
		}
	}
	return parts.Sanitize()
}

// Initialize connects and creates the table when it does not exist.
func (b *Broker) Initialize(ctx context.Context, initCtx core.InitContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = initCtx.Log().With(zap.String("broker", b.BrokerURI()))

	cfg, err := pgxpool.ParseConfig(b.dsn)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse connection string")
	}
	cfg.MaxConns = int32(b.maxConns)
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create connection pool")
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		broker_uri TEXT NOT NULL,
		id TEXT NOT NULL,
		source_label TEXT,
		last_modified TIMESTAMPTZ,
		content_uri TEXT,
		content_type TEXT NOT NULL,
		content BYTEA NOT NULL,
		harvested_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, b.ident)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create table").WithDetail(PropertyTable, b.table)
	}

	b.pool = pool
	b.upsert = upsertStatement(b.ident)
	b.logger.Info("PostgreSQL destination ready", zap.String("table", b.table))
	return nil
}

// upsertStatement reports through xmax whether the row was inserted:
// a fresh row has no deleting transaction.
func upsertStatement(ident string) string {
	return fmt.Sprintf(`INSERT INTO %s
		(key, broker_uri, id, source_label, last_modified, content_uri, content_type, content, harvested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (key) DO UPDATE SET
			source_label = EXCLUDED.source_label,
			last_modified = EXCLUDED.last_modified,
			content_uri = EXCLUDED.content_uri,
			content_type = EXCLUDED.content_type,
			content = EXCLUDED.content,
			harvested_at = EXCLUDED.harvested_at
		RETURNING (xmax = 0) AS inserted`, ident)
}

// Terminate closes the pool.
func (b *Broker) Terminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pool != nil {
		b.pool.Close()
		b.pool = nil
	}
	return nil
}

func (b *Broker) EntityDefinition() models.EntityDefinition { return b.def.Clone() }

// BrokerURI is postgres://host/database/table without credentials.
func (b *Broker) BrokerURI() string {
	cfg, err := pgxpool.ParseConfig(b.dsn)
	if err != nil {
		return "postgres:///" + b.table
	}
	return fmt.Sprintf("postgres://%s/%s/%s", cfg.ConnConfig.Host, cfg.ConnConfig.Database, b.table)
}

// Publish inserts or replaces the row of ref.
func (b *Broker) Publish(ctx context.Context, ref *models.DataReference) (models.PublishingStatus, error) {
	b.mu.Lock()
	pool, upsert := b.pool, b.upsert
	b.mu.Unlock()
	if pool == nil {
		return "", errors.New(errors.ErrorTypeInternal, "broker is not initialized").WithDetail("broker", b.BrokerURI())
	}

	var inserted bool
	err := pool.QueryRow(ctx, upsert,
		ref.Key(), ref.BrokerURI, ref.ID, nullable(ref.SourceLabel), ref.LastModified,
		nullable(ref.ContentURI), ref.ContentType, ref.Content,
	).Scan(&inserted)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to upsert document").
			WithDetail(PropertyTable, b.table).
			WithDetail("id", ref.ID)
	}
	if inserted {
		return models.PublishingStatusCreated, nil
	}
	return models.PublishingStatusUpdated, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Package pgpool owns the single pgx connection pool shared by the
// pgvector/tsvector-heavy tables (semantic_memories, knowledge_embeddings)
// and the raw-SQL migration that creates them, grounded in
// vasic-digital-SuperAgent's internal/database pattern of a pgxpool.Pool
// wrapped by per-table repositories.
package pgpool

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds the pool's DSN and sizing knobs.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConns == 0 {
		c.MaxConns = 20
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = time.Hour
	}
	return c
}

// Open creates and verifies a pgx pool.
func Open(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	cfg = cfg.withDefaults()
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgpool: parse dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pgpool: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgpool: ping: %w", err)
	}
	return pool, nil
}

// schema is applied once at startup. It is written idempotently
// (CREATE ... IF NOT EXISTS) so repeated boots are safe.
const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS semantic_memories (
	id               uuid PRIMARY KEY,
	user_id          text NOT NULL,
	kind             text NOT NULL,
	content          text NOT NULL,
	embedding        vector(768) NOT NULL,
	importance       double precision NOT NULL DEFAULT 0,
	metadata         jsonb NOT NULL DEFAULT '{}'::jsonb,
	session_id       text NOT NULL DEFAULT '',
	category         text NOT NULL DEFAULT '',
	sub_topic        text NOT NULL DEFAULT '',
	confidence       double precision NOT NULL DEFAULT 0,
	source_messages  text[] NOT NULL DEFAULT '{}',
	evolution_notes  text[] NOT NULL DEFAULT '{}',
	fact_type        text NOT NULL DEFAULT '',
	created_at       timestamptz NOT NULL DEFAULT now(),
	updated_at       timestamptz NOT NULL DEFAULT now(),
	last_accessed_at timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_semantic_memories_user_kind
	ON semantic_memories (user_id, kind);
CREATE UNIQUE INDEX IF NOT EXISTS idx_semantic_memories_user_fact
	ON semantic_memories (user_id, fact_type) WHERE kind = 'user_fact';
CREATE INDEX IF NOT EXISTS idx_semantic_memories_embedding
	ON semantic_memories USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);

CREATE TABLE IF NOT EXISTS knowledge_embeddings (
	id                 uuid PRIMARY KEY,
	document_id        text NOT NULL,
	page_number        int NOT NULL,
	chunk_index        int NOT NULL,
	content            text NOT NULL,
	embedding          vector(768) NOT NULL,
	search_vector      tsvector NOT NULL,
	content_type       text NOT NULL DEFAULT 'text',
	confidence         double precision NOT NULL DEFAULT 0,
	image_url          text NOT NULL DEFAULT '',
	bounding_boxes     jsonb NOT NULL DEFAULT '[]'::jsonb,
	metadata           jsonb NOT NULL DEFAULT '{}'::jsonb,
	created_at         timestamptz NOT NULL DEFAULT now(),
	UNIQUE (document_id, page_number, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_knowledge_embeddings_embedding
	ON knowledge_embeddings USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
CREATE INDEX IF NOT EXISTS idx_knowledge_embeddings_search_vector
	ON knowledge_embeddings USING gin (search_vector);
`

// Migrate applies the raw-SQL schema for the pgvector/tsvector tables.
// gorm owns the rest of the schema (user, chat, message); this migration
// owns only the tables queried with cosine-distance/tsvector operators.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pgpool: migrate: %w", err)
	}
	return nil
}

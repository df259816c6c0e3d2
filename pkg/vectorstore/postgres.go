package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/randalmurphal/portfolio-agent/pkg/state"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "documents"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PGStore is a Store over a Postgres table with a pgvector column:
//
//	id text PRIMARY KEY, content text, metadata jsonb, embedding vector(N)
type PGStore struct {
	db     *sql.DB
	table  string // quoted
	logger *slog.Logger
}

var _ Store = (*PGStore)(nil)

// PGOption configures a PGStore.
type PGOption func(*PGStore)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) PGOption {
	return func(s *PGStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewPGStore wraps db. The table name may be schema-qualified
// ("schema.table"); each part must be a plain identifier.
func NewPGStore(db *sql.DB, table string, opts ...PGOption) (*PGStore, error) {
	quoted, err := quoteTable(table)
	if err != nil {
		return nil, err
	}
	s := &PGStore{db: db, table: quoted, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OpenPG opens and pings a Postgres connection and wraps it in a PGStore.
// The store owns the connection; Close releases it.
func OpenPG(ctx context.Context, dsn, table string, opts ...PGOption) (*PGStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := NewPGStore(db, table, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func quoteTable(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	parts := strings.Split(table, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	for i, p := range parts {
		if !identPattern.MatchString(p) {
			return "", fmt.Errorf("%w: %q", ErrInvalidTable, table)
		}
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, "."), nil
}

// EnsureSchema creates the vector extension and the table if missing.
func (s *PGStore) EnsureSchema(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("ensure schema: dimensions must be > 0, got %d", dims)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create extension: %w", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id text PRIMARY KEY,
	content text NOT NULL DEFAULT '',
	metadata jsonb,
	embedding vector(%d)
)`, s.table, dims)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Nearest implements Store.
func (s *PGStore) Nearest(ctx context.Context, vector []float32, topK int) ([]state.Document, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	if topK <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT id, content, metadata, embedding <#> $1 AS distance
FROM %s
ORDER BY embedding <#> $1
LIMIT $2`, s.table)

	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("nearest: %w", err)
	}
	defer rows.Close()

	var docs []state.Document
	for rows.Next() {
		var (
			doc     state.Document
			content sql.NullString
			meta    []byte
		)
		if err := rows.Scan(&doc.ID, &content, &meta, &doc.Distance); err != nil {
			return nil, fmt.Errorf("nearest: scan: %w", err)
		}
		doc.Content = content.String
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &doc.Metadata); err != nil {
				s.logger.Warn("unreadable document metadata",
					slog.String("id", doc.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("nearest: %w", err)
	}
	return docs, nil
}

// Upsert implements Store.
func (s *PGStore) Upsert(ctx context.Context, id string, metadata map[string]any, vector []float32) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("upsert %s: metadata: %w", id, err)
	}

	stmt := fmt.Sprintf(`INSERT INTO %s (id, content, metadata, embedding)
VALUES ($1, $2, $3::jsonb, $4)
ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`, s.table)

	if _, err := s.db.ExecContext(ctx, stmt, id, contentOf(metadata), string(meta), pgvector.NewVector(vector)); err != nil {
		return fmt.Errorf("upsert %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *PGStore) Close() error {
	return s.db.Close()
}

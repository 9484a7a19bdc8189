package credstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgDefaultSchema = "pairgate"

// PostgresProvider stores namespaces as rows of <schema>.credential_entries.
//
// Ownership model:
// - PostgresProvider does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
type PostgresProvider struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresProvider behavior.
type PostgresOption func(*PostgresProvider) error

// WithSchema sets the DB schema used by this provider (default: "pairgate").
func WithSchema(schema string) PostgresOption {
	return func(p *PostgresProvider) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("credstore: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("credstore: invalid schema identifier")
		}
		p.schema = schema
		return nil
	}
}

// NewPostgresProvider constructs a Postgres-backed Provider.
func NewPostgresProvider(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresProvider, error) {
	p := &PostgresProvider{pool: pool, schema: pgDefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.pool == nil {
		return nil, errors.New("credstore: nil pool")
	}
	return p, nil
}

// EnsureSchema creates the schema and table when they do not exist.
func (p *PostgresProvider) EnsureSchema(ctx context.Context) error {
	table := p.table()
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %s;
CREATE TABLE IF NOT EXISTS %s (
	namespace  text        NOT NULL,
	key        text        NOT NULL,
	value      bytea       NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, key)
);`, pgx.Identifier{p.schema}.Sanitize(), table))
	return err
}

// Close is a no-op because the pool is owned by the caller.
func (p *PostgresProvider) Close() error { return nil }

// Open returns a namespace handle. Rows are created lazily on the first Put.
func (p *PostgresProvider) Open(ctx context.Context, sessionID string) (Namespace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validNamespaceID(sessionID) {
		return nil, fmt.Errorf("credstore.Open: %w", ErrInvalidKey)
	}
	return &pgNamespace{id: sessionID, pool: p.pool, table: p.table()}, nil
}

func (p *PostgresProvider) table() string {
	return pgIdent(p.schema, "credential_entries")
}

type pgNamespace struct {
	id    string
	pool  *pgxpool.Pool
	table string

	mu        sync.Mutex
	destroyed bool
}

func (n *pgNamespace) ID() string { return n.id }

func (n *pgNamespace) Put(ctx context.Context, entries ...Entry) error {
	for _, e := range entries {
		if !validKey(e.Key) {
			return fmt.Errorf("credstore.Put %q: %w", e.Key, ErrInvalidKey)
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed {
		return ErrDestroyed
	}

	tx, err := n.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	for _, e := range entries {
		if e.Value == nil {
			if _, err := tx.Exec(ctx, `DELETE FROM `+n.table+` WHERE namespace = $1 AND key = $2`, n.id, e.Key); err != nil {
				return err
			}
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO `+n.table+` (namespace, key, value, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (namespace, key) DO UPDATE
			SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		`, n.id, e.Key, e.Value, now); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (n *pgNamespace) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := n.pool.QueryRow(ctx, `SELECT value FROM `+n.table+` WHERE namespace = $1 AND key = $2`, n.id, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (n *pgNamespace) ReadBundle(ctx context.Context) ([]byte, error) {
	b, err := n.Get(ctx, BundleKey)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotReady
	}
	return b, err
}

func (n *pgNamespace) Destroy(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed {
		return nil
	}
	if _, err := n.pool.Exec(ctx, `DELETE FROM `+n.table+` WHERE namespace = $1`, n.id); err != nil {
		return err
	}
	n.destroyed = true
	return nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

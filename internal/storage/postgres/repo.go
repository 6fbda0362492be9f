// Package postgres implements the Postgres record sink using pgx v5. The
// configured database name maps to a schema inside the DSN's database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"accesslog/internal/storage"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN    string // connection string for pgxpool
	Schema string // schema holding the table; empty means search_path
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres ping: %w", pgDetail(err))
	}
	closeFn := func() { pool.Close() }
	return &Repository{pool: pool, cfg: cfg}, closeFn, nil
}

// EnsureDatabase creates the schema name if it does not exist.
func (r *Repository) EnsureDatabase(ctx context.Context, name string) error {
	if _, err := r.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgIdent(name)); err != nil {
		return fmt.Errorf("create schema: %w", pgDetail(err))
	}
	return nil
}

// EnsureTable creates def in the configured schema if it does not exist.
func (r *Repository) EnsureTable(ctx context.Context, def storage.TableDef) error {
	if _, err := r.pool.Exec(ctx, createTableSQL(r.fqn(def.Name), def)); err != nil {
		return fmt.Errorf("create table: %w", pgDetail(err))
	}
	return nil
}

// Insert writes one row in its own implicit transaction.
func (r *Repository) Insert(ctx context.Context, table string, columns []string, values []any) error {
	if _, err := r.pool.Exec(ctx, insertSQL(r.fqn(table), columns), values...); err != nil {
		return pgDetail(err)
	}
	return nil
}

func (r *Repository) fqn(table string) string {
	if r.cfg.Schema == "" {
		return pgFQN(table)
	}
	return pgIdent(r.cfg.Schema) + "." + pgFQN(table)
}

// pgDetail folds the server's detail and SQLSTATE into the message so that
// failure reports carry the sink's explanation.
func pgDetail(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%s: %s (%s)", pgErr.Message, pgErr.Detail, pgErr.SQLState())
	}
	return err
}

func columnSQL(c storage.Column) string {
	switch c.Type {
	case storage.TypeIdentity:
		return "BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY"
	case storage.TypeString:
		return fmt.Sprintf("VARCHAR(%d)", c.Size)
	case storage.TypeTimestamp:
		return "TIMESTAMPTZ"
	case storage.TypeInt:
		return "INTEGER"
	case storage.TypeBigInt:
		return "BIGINT"
	default:
		return "TEXT"
	}
}

func createTableSQL(fqn string, def storage.TableDef) string {
	cols := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		cols[i] = pgIdent(c.Name) + " " + columnSQL(c)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", fqn, strings.Join(cols, ",\n  "))
}

func insertSQL(fqn string, columns []string) string {
	ph := make([]string, len(columns))
	for i := range columns {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		fqn, strings.Join(mapIdent(columns), ","), strings.Join(ph, ","))
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "public.access_logs" to
// "public"."access_logs". If no dot is present, returns a single quoted ident.
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}

// mapIdent maps a list of column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}

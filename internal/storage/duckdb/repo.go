//go:build cgo

// Package duckdb implements a DuckDB-backed storage.Repository. The DSN names
// the database file (or ":memory:") and the configured database maps to a
// schema inside it. DuckDB has no identity column type, so the id column
// draws from a per-table sequence.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/marcboeker/go-duckdb"

	"accesslog/internal/storage"
)

// Config holds DuckDB repository configuration.
type Config struct {
	DSN    string // database file path; "" means in-memory
	Schema string // schema holding the table; empty means main
}

// Repository is a DuckDB-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository opens the database and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	connector, err := duckdb.NewConnector(cfg.DSN, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("duckdb: open %q: %w", cfg.DSN, err)
	}
	db := sql.OpenDB(connector)
	// One connection keeps primary-key checks of concurrent loader workers
	// from conflicting across transactions.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("duckdb: ping: %w", err)
	}
	closeFn := func() {
		_ = db.Close()
		_ = connector.Close()
	}
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

// EnsureDatabase creates the schema name if it does not exist.
func (r *Repository) EnsureDatabase(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+duckIdent(name)); err != nil {
		return fmt.Errorf("duckdb: create schema: %w", err)
	}
	return nil
}

// EnsureTable creates the id sequence and def if they do not exist.
func (r *Repository) EnsureTable(ctx context.Context, def storage.TableDef) error {
	for _, stmt := range createTableSQL(r.cfg.Schema, def) {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("duckdb: create table: %w", err)
		}
	}
	return nil
}

// Insert writes one row in autocommit mode.
func (r *Repository) Insert(ctx context.Context, table string, columns []string, values []any) error {
	if _, err := r.db.ExecContext(ctx, insertSQL(r.fqn(table), columns), values...); err != nil {
		return fmt.Errorf("duckdb: insert: %w", err)
	}
	return nil
}

func (r *Repository) fqn(name string) string { return qualify(r.cfg.Schema, name) }

func qualify(schema, name string) string {
	if schema == "" {
		return duckIdent(name)
	}
	return duckIdent(schema) + "." + duckIdent(name)
}

func columnSQL(schema, table string, c storage.Column) string {
	switch c.Type {
	case storage.TypeIdentity:
		return fmt.Sprintf("BIGINT PRIMARY KEY DEFAULT nextval('%s')",
			strings.ReplaceAll(qualify(schema, seqName(table)), "'", "''"))
	case storage.TypeString:
		return fmt.Sprintf("VARCHAR(%d)", c.Size)
	case storage.TypeTimestamp:
		return "TIMESTAMP"
	case storage.TypeInt:
		return "INTEGER"
	case storage.TypeBigInt:
		return "BIGINT"
	default:
		return "VARCHAR"
	}
}

func seqName(table string) string { return table + "_id_seq" }

func createTableSQL(schema string, def storage.TableDef) []string {
	cols := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		cols[i] = duckIdent(c.Name) + " " + columnSQL(schema, def.Name, c)
	}
	return []string{
		"CREATE SEQUENCE IF NOT EXISTS " + qualify(schema, seqName(def.Name)),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", qualify(schema, def.Name), strings.Join(cols, ",\n  ")),
	}
}

func insertSQL(fqn string, columns []string) string {
	quoted := make([]string, len(columns))
	ph := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = duckIdent(c)
		ph[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", fqn, strings.Join(quoted, ", "), strings.Join(ph, ", "))
}

// duckIdent double-quotes an identifier, escaping embedded quotes.
func duckIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

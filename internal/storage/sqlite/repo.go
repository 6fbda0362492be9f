// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql and the pure-Go modernc driver. SQLite has no separate
// database namespace, so EnsureDatabase is a no-op and the DSN names the file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"accesslog/internal/storage"
)

// Config holds SQLite repository configuration.
type Config struct {
	// DSN is passed directly to database/sql; for example:
	//
	//	"file:access.db?_pragma=busy_timeout(5000)"
	//	"access.db"
	DSN string
}

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository opens a SQLite connection using the provided DSN and returns
// a Repository plus a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY when
	// the loader runs several workers, and keeps ":memory:" to one database.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	closeFn := func() { db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

// EnsureDatabase is a no-op: the DSN already selects the database file.
func (r *Repository) EnsureDatabase(context.Context, string) error { return nil }

// EnsureTable creates def if it does not exist.
func (r *Repository) EnsureTable(ctx context.Context, def storage.TableDef) error {
	if _, err := r.db.ExecContext(ctx, createTableSQL(def)); err != nil {
		return fmt.Errorf("sqlite: create table: %w", err)
	}
	return nil
}

// Insert writes one row in autocommit mode.
func (r *Repository) Insert(ctx context.Context, table string, columns []string, values []any) error {
	if len(values) != len(columns) {
		return fmt.Errorf("sqlite: insert: %d values for %d columns", len(values), len(columns))
	}
	if _, err := r.db.ExecContext(ctx, insertSQL(table, columns), values...); err != nil {
		return fmt.Errorf("sqlite: insert: %w", err)
	}
	return nil
}

func columnSQL(c storage.Column) string {
	switch c.Type {
	case storage.TypeIdentity:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	case storage.TypeString:
		return fmt.Sprintf("VARCHAR(%d)", c.Size)
	case storage.TypeTimestamp:
		return "DATETIME"
	case storage.TypeInt, storage.TypeBigInt:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func createTableSQL(def storage.TableDef) string {
	cols := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		cols[i] = sqlIdent(c.Name) + " " + columnSQL(c)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", sqlIdent(def.Name), strings.Join(cols, ",\n  "))
}

func insertSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = sqlIdent(c)
		placeholders[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		sqlIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
}

// sqlIdent double-quotes an identifier, escaping embedded quotes.
func sqlIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

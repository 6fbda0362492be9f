// Package mssql implements the Microsoft SQL Server record sink using
// go-mssqldb. Tables live in the dbo schema of the configured database.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"accesslog/internal/storage"
)

const defaultSchema = "dbo"

// Config holds MSSQL repository configuration.
type Config struct {
	DSN      string
	Database string // database holding the table; empty means the login's default
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", msDetail(err))
	}
	closeFn := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

// EnsureDatabase creates the named database if it does not exist.
func (r *Repository) EnsureDatabase(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, createDatabaseSQL(name)); err != nil {
		return fmt.Errorf("create database: %w", msDetail(err))
	}
	return nil
}

// EnsureTable creates def if it does not exist.
func (r *Repository) EnsureTable(ctx context.Context, def storage.TableDef) error {
	if _, err := r.db.ExecContext(ctx, createTableSQL(r.cfg.Database, def)); err != nil {
		return fmt.Errorf("create table: %w", msDetail(err))
	}
	return nil
}

// Insert writes one row in its own implicit transaction.
func (r *Repository) Insert(ctx context.Context, table string, columns []string, values []any) error {
	if _, err := r.db.ExecContext(ctx, insertSQL(r.fqn(table), columns), values...); err != nil {
		return msDetail(err)
	}
	return nil
}

func (r *Repository) fqn(table string) string { return qualify(r.cfg.Database, table) }

// qualify returns [db].[dbo].[table], or [dbo].[table] when db is empty.
func qualify(database, table string) string {
	if database == "" {
		return msFQN(defaultSchema + "." + table)
	}
	return msFQN(database + "." + defaultSchema + "." + table)
}

// msDetail adds the server error number so failure reports identify the
// constraint that rejected a row.
func msDetail(err error) error {
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return fmt.Errorf("mssql error %d: %s", msErr.Number, msErr.Message)
	}
	return err
}

func columnSQL(c storage.Column) string {
	switch c.Type {
	case storage.TypeIdentity:
		return "BIGINT IDENTITY(1,1) PRIMARY KEY"
	case storage.TypeString:
		return fmt.Sprintf("NVARCHAR(%d)", c.Size)
	case storage.TypeTimestamp:
		return "DATETIMEOFFSET"
	case storage.TypeInt:
		return "INT"
	case storage.TypeBigInt:
		return "BIGINT"
	default:
		return "NVARCHAR(MAX)"
	}
}

// msString quotes s as an N'' literal.
func msString(s string) string { return "N'" + strings.ReplaceAll(s, "'", "''") + "'" }

func createDatabaseSQL(name string) string {
	return fmt.Sprintf("IF DB_ID(%s) IS NULL CREATE DATABASE %s", msString(name), msIdent(name))
}

func createTableSQL(database string, def storage.TableDef) string {
	fqn := qualify(database, def.Name)
	cols := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		cols[i] = msIdent(c.Name) + " " + columnSQL(c)
	}
	return fmt.Sprintf("IF OBJECT_ID(%s, N'U') IS NULL CREATE TABLE %s (\n  %s\n)",
		msString(fqn), fqn, strings.Join(cols, ",\n  "))
}

func insertSQL(fqn string, columns []string) string {
	ph := make([]string, len(columns))
	for i := range columns {
		ph[i] = fmt.Sprintf("@p%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		fqn, strings.Join(mapIdent(columns), ","), strings.Join(ph, ","))
}

// msIdent safely quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msFQN quotes a possibly schema-qualified name like "dbo.access_logs" to
// "[dbo].[access_logs]". If no dot is present, returns a single quoted ident.
func msFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = msIdent(p)
	}
	return strings.Join(parts, ".")
}

// mapIdent maps a list of column names to their bracket-quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = msIdent(c)
	}
	return out
}

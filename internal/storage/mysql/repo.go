// Package mysql implements the MySQL record sink using go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"accesslog/internal/storage"
)

// Config holds MySQL repository configuration.
type Config struct {
	DSN      string // go-sql-driver DSN, e.g. "user:pass@tcp(localhost:3306)/"
	Database string // database holding the table; empty means the DSN's default
}

// Repository is a MySQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	dc, err := driverConfig(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	conn, err := mysql.NewConnector(dc)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(conn)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", myDetail(err))
	}
	closeFn := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

// driverConfig parses dsn and pins the session to UTC so TIMESTAMP columns
// store the instant that was parsed.
func driverConfig(dsn string) (*mysql.Config, error) {
	dc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	dc.ParseTime = true
	dc.Loc = time.UTC
	if dc.Params == nil {
		dc.Params = map[string]string{}
	}
	if _, ok := dc.Params["time_zone"]; !ok {
		dc.Params["time_zone"] = "'+00:00'"
	}
	return dc, nil
}

// EnsureDatabase creates the named database if it does not exist.
func (r *Repository) EnsureDatabase(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+myIdent(name)); err != nil {
		return fmt.Errorf("create database: %w", myDetail(err))
	}
	return nil
}

// EnsureTable creates def if it does not exist.
func (r *Repository) EnsureTable(ctx context.Context, def storage.TableDef) error {
	if _, err := r.db.ExecContext(ctx, createTableSQL(r.fqn(def.Name), def)); err != nil {
		return fmt.Errorf("create table: %w", myDetail(err))
	}
	return nil
}

// Insert writes one row; the driver runs it in autocommit mode.
func (r *Repository) Insert(ctx context.Context, table string, columns []string, values []any) error {
	if _, err := r.db.ExecContext(ctx, insertSQL(r.fqn(table), columns), values...); err != nil {
		return myDetail(err)
	}
	return nil
}

func (r *Repository) fqn(table string) string {
	if r.cfg.Database == "" {
		return myFQN(table)
	}
	return myIdent(r.cfg.Database) + "." + myFQN(table)
}

// myDetail reduces server errors to "Error <n>: <message>".
func myDetail(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return fmt.Errorf("Error %d: %s", myErr.Number, myErr.Message)
	}
	return err
}

func columnSQL(c storage.Column) string {
	switch c.Type {
	case storage.TypeIdentity:
		return "BIGINT AUTO_INCREMENT PRIMARY KEY"
	case storage.TypeString:
		return fmt.Sprintf("VARCHAR(%d)", c.Size)
	case storage.TypeTimestamp:
		return "TIMESTAMP NULL"
	case storage.TypeInt:
		return "INT"
	case storage.TypeBigInt:
		return "BIGINT"
	default:
		return "TEXT"
	}
}

func createTableSQL(fqn string, def storage.TableDef) string {
	cols := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		cols[i] = myIdent(c.Name) + " " + columnSQL(c)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", fqn, strings.Join(cols, ",\n  "))
}

func insertSQL(fqn string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = myIdent(c)
	}
	ph := strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", fqn, strings.Join(quoted, ","), ph)
}

// myIdent quotes a MySQL identifier with backticks, doubling embedded ones.
func myIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

// myFQN quotes a possibly database-qualified name like "weblogs.access_logs".
func myFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = myIdent(p)
	}
	return strings.Join(parts, ".")
}

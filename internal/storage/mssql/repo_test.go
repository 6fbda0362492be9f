package mssql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	mssql "github.com/microsoft/go-mssqldb"

	"accesslog/internal/record"
	"accesslog/internal/storage"
)

// TestMsIdent verifies the MSSQL identifier quoting and escaping in msIdent.
func TestMsIdent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "simple", in: "id", want: "[id]"},
		{name: "empty", in: "", want: "[]"},
		{name: "with space", in: "user id", want: "[user id]"},
		{name: "escape closing bracket", in: "user]id", want: "[user]]id]"},
		{name: "double bracket", in: `weird]]name`, want: `[weird]]]]name]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := msIdent(tt.in); got != tt.want {
				t.Fatalf("msIdent(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestQualify verifies database and schema qualification of table names.
func TestQualify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		database string
		table    string
		want     string
	}{
		{name: "default database", table: "access_logs", want: "[dbo].[access_logs]"},
		{name: "named database", database: "weblogs", table: "access_logs", want: "[weblogs].[dbo].[access_logs]"},
		{name: "with bracket", database: "we]b", table: "t", want: "[we]]b].[dbo].[t]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := qualify(tt.database, tt.table); got != tt.want {
				t.Fatalf("qualify(%q, %q) = %q, want %q", tt.database, tt.table, got, tt.want)
			}
		})
	}
}

func TestCreateDatabaseSQL(t *testing.T) {
	t.Parallel()

	got := createDatabaseSQL("o'brien")
	want := "IF DB_ID(N'o''brien') IS NULL CREATE DATABASE [o'brien]"
	if got != want {
		t.Fatalf("createDatabaseSQL = %q, want %q", got, want)
	}
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	got := createTableSQL("weblogs", storage.AccessLogTable("access_logs"))
	for _, want := range []string{
		"IF OBJECT_ID(N'[weblogs].[dbo].[access_logs]', N'U') IS NULL",
		"CREATE TABLE [weblogs].[dbo].[access_logs]",
		"[id] BIGINT IDENTITY(1,1) PRIMARY KEY",
		"[client_address] NVARCHAR(255)",
		"[timestamp] DATETIMEOFFSET",
		"[method] NVARCHAR(10)",
		"[url] NVARCHAR(MAX)",
		"[status_code] INT",
		"[response_size] BIGINT",
		"[query_parameters] NVARCHAR(MAX)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("DDL missing %q:\n%s", want, got)
		}
	}
}

func TestInsertSQL(t *testing.T) {
	t.Parallel()

	got := insertSQL("[dbo].[t]", []string{"a", "b", "c"})
	want := "INSERT INTO [dbo].[t] ([a],[b],[c]) VALUES (@p1,@p2,@p3)"
	if got != want {
		t.Fatalf("insertSQL = %q, want %q", got, want)
	}
}

func TestMsDetail(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("exec: %w", mssql.Error{Number: 2628, Message: "String or binary data would be truncated"})
	if got := msDetail(err).Error(); got != "mssql error 2628: String or binary data would be truncated" {
		t.Fatalf("msDetail = %q", got)
	}
	plain := errors.New("plain")
	if msDetail(plain) != plain {
		t.Fatalf("non-server errors must pass through")
	}
}

// BenchmarkMsFQN measures the cost of quoting fully qualified names.
func BenchmarkMsFQN(b *testing.B) {
	names := []string{"dbo.Users", "weblogs.dbo.access_logs", "dbo.user]table"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = msFQN(names[i%len(names)])
	}
}

// BenchmarkInsertSQL measures statement construction per row.
func BenchmarkInsertSQL(b *testing.B) {
	fqn := qualify("weblogs", "access_logs")
	for i := 0; i < b.N; i++ {
		_ = insertSQL(fqn, record.Columns)
	}
}

// --- Test driver plumbing for exercising statements without a real DB ---

type execCall struct {
	query string
	args  []driver.NamedValue
}

// recDriver records every ExecContext call; queries containing failOn fail.
type recDriver struct {
	mu     sync.Mutex
	calls  []execCall
	failOn string
}

type recConn struct{ d *recDriver }

func (d *recDriver) Open(string) (driver.Conn, error) { return &recConn{d: d}, nil }

func (c *recConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("unexpected Prepare call")
}

func (c *recConn) Close() error { return nil }

func (c *recConn) Begin() (driver.Tx, error) {
	return nil, errors.New("unexpected Begin call")
}

func (c *recConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.calls = append(c.d.calls, execCall{query: query, args: args})
	if c.d.failOn != "" && strings.Contains(query, c.d.failOn) {
		return nil, mssql.Error{Number: 262, Message: "permission denied"}
	}
	return driver.RowsAffected(1), nil
}

var driverSeq struct {
	sync.Mutex
	n int
}

// openRecDB registers a fresh recording driver and opens it.
func openRecDB(t *testing.T, failOn string) (*sql.DB, *recDriver) {
	t.Helper()

	driverSeq.Lock()
	driverSeq.n++
	name := fmt.Sprintf("mssql_test_rec_%d", driverSeq.n)
	driverSeq.Unlock()

	d := &recDriver{failOn: failOn}
	sql.Register(name, d)
	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("sql.Open(%q) error = %v", name, err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, d
}

// TestInsertSendsOneParameterizedRow checks the statement and arguments.
func TestInsertSendsOneParameterizedRow(t *testing.T) {
	t.Parallel()

	db, d := openRecDB(t, "")
	r := &Repository{db: db, cfg: Config{Database: "weblogs"}}

	rec := record.AccessRecord{
		ClientAddress:   "127.0.0.1",
		Timestamp:       time.Date(2023, time.October, 10, 13, 55, 36, 0, time.FixedZone("", -7*3600)),
		Method:          "GET",
		URL:             "/a?b=1",
		StatusCode:      200,
		ResponseSize:    2326,
		QueryParameters: "b=1",
	}
	if err := r.Insert(context.Background(), "access_logs", record.Columns, rec.Values()); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if len(d.calls) != 1 {
		t.Fatalf("exec calls = %d, want 1", len(d.calls))
	}
	call := d.calls[0]
	if !strings.HasPrefix(call.query, "INSERT INTO [weblogs].[dbo].[access_logs]") {
		t.Fatalf("query = %q", call.query)
	}
	if len(call.args) != len(record.Columns) {
		t.Fatalf("args = %d, want %d", len(call.args), len(record.Columns))
	}
	if ts, ok := call.args[1].Value.(time.Time); !ok || !ts.Equal(rec.Timestamp) {
		t.Fatalf("timestamp arg = %#v", call.args[1].Value)
	}
}

// TestEnsureDatabaseWrapsServerError verifies the server message is kept.
func TestEnsureDatabaseWrapsServerError(t *testing.T) {
	t.Parallel()

	db, _ := openRecDB(t, "CREATE DATABASE")
	r := &Repository{db: db}

	err := r.EnsureDatabase(context.Background(), "weblogs")
	if err == nil {
		t.Fatalf("EnsureDatabase() error = nil, want non-nil")
	}
	if !strings.Contains(err.Error(), "create database:") || !strings.Contains(err.Error(), "262") {
		t.Fatalf("EnsureDatabase() error = %q", err.Error())
	}
}

// TestEnsureSchemaRunsGuardedDDL drives EnsureSchema through the driver.
func TestEnsureSchemaRunsGuardedDDL(t *testing.T) {
	t.Parallel()

	db, d := openRecDB(t, "")
	r := &wrappedRepo{Repository: &Repository{db: db, cfg: Config{Database: "weblogs"}}, closeFn: func() {}}

	if err := storage.EnsureSchema(context.Background(), r, "weblogs", "access_logs"); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if len(d.calls) != 2 {
		t.Fatalf("exec calls = %d, want 2", len(d.calls))
	}
	if !strings.HasPrefix(d.calls[0].query, "IF DB_ID(") || !strings.HasPrefix(d.calls[1].query, "IF OBJECT_ID(") {
		t.Fatalf("unexpected DDL order: %q / %q", d.calls[0].query, d.calls[1].query)
	}
}

// TestLoadRecordsIsolatesRejectedRow rejects one row through the driver.
func TestLoadRecordsIsolatesRejectedRow(t *testing.T) {
	t.Parallel()

	db, _ := openRecDB(t, "")
	r := &Repository{db: db}
	failing := &failingRepo{Repository: r, reject: "10.0.0.2"}

	var recs []record.AccessRecord
	for i := 0; i < 4; i++ {
		recs = append(recs, record.AccessRecord{ClientAddress: fmt.Sprintf("10.0.0.%d", i), Method: "GET", URL: "/"})
	}
	inserted, failures, err := storage.LoadRecords(context.Background(), failing, "t", recs, 1)
	if err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}
	if inserted != 3 || len(failures) != 1 || failures[0].Record.ClientAddress != "10.0.0.2" {
		t.Fatalf("inserted=%d failures=%+v", inserted, failures)
	}
}

// failingRepo rejects rows from one client before they reach the driver.
type failingRepo struct {
	*Repository
	reject string
}

func (f *failingRepo) Insert(ctx context.Context, table string, columns []string, values []any) error {
	if values[0] == f.reject {
		return msDetail(mssql.Error{Number: 2628, Message: "String or binary data would be truncated"})
	}
	return f.Repository.Insert(ctx, table, columns, values)
}

func (f *failingRepo) Close() {}

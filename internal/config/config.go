// Package config defines the JSON-serializable configuration model for the
// access log loader. Pipelines are loaded from disk (configs/pipelines/*.json)
// and passed through the program without additional glue code.
//
// Example:
//
//	{
//	  "job":     "access_log_etl",
//	  "source":  { "kind": "file", "file": { "path": "data/nginx_logs.txt" } },
//	  "storage": { "kind": "mysql",
//	               "db": { "dsn": "user:pass@tcp(localhost:3306)/",
//	                       "database": "weblogs", "table": "access_logs" } },
//	  "reports": { "dir": "reports" },
//	  "runtime": { "parse_workers": 4, "loader_workers": 2 },
//	  "log_file": "ETL_process.log"
//	}
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Defaults applied by ApplyDefaults and Default.
const (
	DefaultJob             = "access_log_etl"
	DefaultTable           = "access_logs"
	DefaultParseErrors     = "parsing_errors.log"
	DefaultInsertionErrors = "insertion_errors.log"

	// EnvDSN overrides storage.db.dsn so credentials can stay out of the file.
	EnvDSN = "ACCESSLOG_DB_DSN"
)

// Pipeline describes one loader run. It is the top-level object decoded from a
// pipeline file.
type Pipeline struct {
	// Job names the run for logs and metrics labels.
	Job string `json:"job"`

	// Source describes where the access log comes from.
	Source Source `json:"source"`

	// Storage describes the record sink.
	Storage Storage `json:"storage"`

	// Reports configures the failure artifacts.
	Reports Reports `json:"reports"`

	Runtime RuntimeConfig `json:"runtime"`

	// LogFile, when set, receives the process log instead of stderr.
	LogFile string `json:"log_file"`
}

// RuntimeConfig controls concurrency. Zero defers to the environment
// (ACCESSLOG_PARSE_WORKERS, ACCESSLOG_LOADER_WORKERS), then to one worker.
type RuntimeConfig struct {
	ParseWorkers  int `json:"parse_workers"`
	LoaderWorkers int `json:"loader_workers"`
}

// Source identifies the data source. Additional kinds can be added over time.
type Source struct {
	// Kind selects the source implementation. Current value: "file".
	Kind string `json:"kind"`

	// File carries options for the "file" source kind.
	File SourceFile `json:"file"`
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	// Path is the local filesystem path to the input file.
	Path string `json:"path"`
}

// Storage selects the sink used to persist records.
type Storage struct {
	// Kind selects the backend: "mysql", "postgres", "mssql", "sqlite" or
	// "duckdb" (cgo builds only).
	Kind string `json:"kind"`

	DB DBConfig `json:"db"`
}

// DBConfig configures the DB sink.
type DBConfig struct {
	// DSN is the driver-specific connection string.
	DSN string `json:"dsn"`

	// Database names the database (a schema on Postgres) that holds the
	// table. It is created when missing. Empty uses the DSN's default.
	Database string `json:"database"`

	// Table is the destination table name.
	Table string `json:"table"`

	// AutoCreateTable creates the database and table before loading. It
	// defaults to true when the key is absent.
	AutoCreateTable bool `json:"auto_create_table"`
}

// Reports names the failure artifacts. Relative names are joined to Dir.
type Reports struct {
	Dir             string `json:"dir"`
	ParseErrors     string `json:"parse_errors"`
	InsertionErrors string `json:"insertion_errors"`
}

// Default returns a Pipeline with every optional field at its default.
// Load decodes over it, so absent keys keep these values.
func Default() Pipeline {
	p := Pipeline{
		Source:  Source{Kind: "file"},
		Storage: Storage{DB: DBConfig{AutoCreateTable: true}},
	}
	p.ApplyDefaults()
	return p
}

// ApplyDefaults fills empty optional fields.
func (p *Pipeline) ApplyDefaults() {
	if strings.TrimSpace(p.Job) == "" {
		p.Job = DefaultJob
	}
	if p.Source.Kind == "" {
		p.Source.Kind = "file"
	}
	if p.Storage.DB.Table == "" {
		p.Storage.DB.Table = DefaultTable
	}
	if p.Reports.Dir == "" {
		p.Reports.Dir = "."
	}
	if p.Reports.ParseErrors == "" {
		p.Reports.ParseErrors = DefaultParseErrors
	}
	if p.Reports.InsertionErrors == "" {
		p.Reports.InsertionErrors = DefaultInsertionErrors
	}
}

// ApplyEnv applies environment overrides using lookup (os.LookupEnv in
// production).
func (p *Pipeline) ApplyEnv(lookup func(string) (string, bool)) {
	if dsn, ok := lookup(EnvDSN); ok && dsn != "" {
		p.Storage.DB.DSN = dsn
	}
}

// Decode reads a pipeline from r over the defaults and applies environment
// overrides.
func Decode(r io.Reader) (Pipeline, error) {
	p := Default()
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("decode config: %w", err)
	}
	p.ApplyDefaults()
	p.ApplyEnv(os.LookupEnv)
	return p, nil
}

// Load opens path and decodes it with Decode.
func Load(path string) (Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Package storage contains the storage-agnostic record sink contract, the
// backend registry, and the loader that drives a sink.
//
// Backends (mysql, postgres, mssql, sqlite) live in subpackages and register
// a Factory for their kind from init. Callers open a sink with New and never
// import a driver directly; importing storage/all enables every backend.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Repository is a connected record sink.
//
// EnsureDatabase and EnsureTable are idempotent. Insert writes exactly one
// row and commits it on its own, so a rejected row never affects another.
type Repository interface {
	EnsureDatabase(ctx context.Context, name string) error
	EnsureTable(ctx context.Context, def TableDef) error
	Insert(ctx context.Context, table string, columns []string, values []any) error
	Close()
}

// Config selects and configures a backend.
type Config struct {
	Kind     string // registered backend name, e.g. "mysql"
	DSN      string // driver-specific connection string
	Database string // database (or schema) that holds the table; may be empty
}

// Factory connects to a backend. A connect or authentication failure is
// returned as an error and is fatal for the run.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the Factory for kind.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// New opens a Repository for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns a sorted snapshot of the registered kinds.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) causes the init functions of each concrete storage backend to run,
// which in turn register their factories with the storage package.
//
// Importing this package makes the following storage kinds available:
//
//   - "mysql"    (accesslog/internal/storage/mysql)
//   - "postgres" (accesslog/internal/storage/postgres)
//   - "mssql"    (accesslog/internal/storage/mssql)
//   - "sqlite"   (accesslog/internal/storage/sqlite)
//   - "duckdb"   (accesslog/internal/storage/duckdb, cgo builds only)
//
// Typical usage (in cmd/accesslog/main.go or a similar wiring layer):
//
//	import _ "accesslog/internal/storage/all"
//
//	repo, err := storage.New(ctx, storage.Config{
//	    Kind:     spec.Storage.Kind,
//	    DSN:      spec.Storage.DB.DSN,
//	    Database: spec.Storage.DB.Database,
//	})
package all

import (
	_ "accesslog/internal/storage/mssql"
	_ "accesslog/internal/storage/mysql"
	_ "accesslog/internal/storage/postgres"
	_ "accesslog/internal/storage/sqlite"
)

//go:build cgo

package all

import _ "accesslog/internal/storage/duckdb"

// Package datasource defines where raw access log bytes come from.
package datasource

import (
	"context"
	"io"
)

// Source opens a finite, already-closed input for reading. Failing to open
// is fatal for a run.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

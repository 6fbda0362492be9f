package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"accesslog/internal/record"
)

// progressEvery controls how often LoadRecords logs progress.
const progressEvery = 1000

// EnsureSchema creates the database (when named) and the access log table if
// they do not exist. Any error is fatal for the run.
func EnsureSchema(ctx context.Context, repo Repository, database, table string) error {
	if database != "" {
		if err := repo.EnsureDatabase(ctx, database); err != nil {
			return fmt.Errorf("ensure database %s: %w", database, err)
		}
	}
	if err := repo.EnsureTable(ctx, AccessLogTable(table)); err != nil {
		return fmt.Errorf("ensure table %s: %w", table, err)
	}
	return nil
}

// LoadRecords inserts recs into table one row at a time. A row the sink
// rejects becomes an InsertionFailure and loading continues with the next
// record. Failures are returned in input order.
//
// With workers > 1 rows are inserted concurrently through the repository's
// connection pool; the backends in this module are safe for that.
//
// The returned error is non-nil only when ctx is canceled; rows not attempted
// by then are neither inserted nor reported as failures.
func LoadRecords(
	ctx context.Context,
	repo Repository,
	table string,
	recs []record.AccessRecord,
	workers int,
) (int64, []record.InsertionFailure, error) {
	if workers < 1 {
		workers = 1
	}

	var (
		inserted atomic.Int64
		failed   atomic.Int64
		done     atomic.Int64
		errs     = make([]error, len(recs))
		start    = time.Now()
		logMu    sync.Mutex
		lastTS   = start
		lastDone int64
	)

	progress := func() {
		n := done.Add(1)
		if n%progressEvery != 0 {
			return
		}
		logMu.Lock()
		defer logMu.Unlock()
		now := time.Now()
		since := now.Sub(lastTS)
		rps := float64(0)
		if since > 0 {
			rps = float64(n-lastDone) / since.Seconds()
		}
		log.Printf("loader: rps=%.0f done=%d/%d inserted=%d failed=%d elapsed=%s",
			rps, n, len(recs), inserted.Load(), failed.Load(), now.Sub(start).Truncate(time.Millisecond))
		lastTS, lastDone = now, n
	}

	insertOne := func(i int) {
		err := repo.Insert(ctx, table, record.Columns, recs[i].Values())
		if err != nil {
			errs[i] = err
			failed.Add(1)
		} else {
			inserted.Add(1)
		}
		progress()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range recs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			insertOne(i)
			return nil
		})
	}
	werr := g.Wait()
	if werr == nil {
		werr = ctx.Err()
	}

	var failures []record.InsertionFailure
	for i, err := range errs {
		if err == nil {
			continue
		}
		// Rows interrupted by cancellation are not sink rejections.
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			continue
		}
		failures = append(failures, record.InsertionFailure{Record: recs[i], Error: err.Error()})
	}

	log.Printf("loader: finished inserted=%d failed=%d elapsed=%s",
		inserted.Load(), len(failures), time.Since(start).Truncate(time.Millisecond))
	if werr != nil {
		return inserted.Load(), failures, fmt.Errorf("load canceled: %w", werr)
	}
	return inserted.Load(), failures, nil
}

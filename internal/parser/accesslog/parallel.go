package accesslog

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"accesslog/internal/record"
)

// chunkSize is the number of lines one worker parses per task.
const chunkSize = 1024

// result is one parsed slot; exactly one of rec/fail is meaningful.
type result struct {
	rec  record.AccessRecord
	fail *record.ParseFailure
}

// ParseAll parses lines with up to workers goroutines and returns the records
// and failures in input order. workers <= 1 parses on the calling goroutine.
//
// The only error returned is ctx.Err(); per-line problems are reported as
// failures.
func ParseAll(ctx context.Context, lines []string, workers int) ([]record.AccessRecord, []record.ParseFailure, error) {
	slots := make([]result, len(lines))

	parseRange := func(lo, hi int) {
		for i := lo; i < hi; i++ {
			rec, err := Parse(lines[i])
			if err != nil {
				var pe *ParseError
				if errors.As(err, &pe) {
					f := pe.Failure()
					slots[i].fail = &f
					continue
				}
				slots[i].fail = &record.ParseFailure{Line: lines[i], Error: err.Error()}
				continue
			}
			slots[i].rec = rec
		}
	}

	if workers <= 1 {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		parseRange(0, len(lines))
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for lo := 0; lo < len(lines); lo += chunkSize {
			lo, hi := lo, min(lo+chunkSize, len(lines))
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				// Each task owns a disjoint index range of slots.
				parseRange(lo, hi)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
	}

	recs := make([]record.AccessRecord, 0, len(lines))
	var fails []record.ParseFailure
	for _, s := range slots {
		if s.fail != nil {
			fails = append(fails, *s.fail)
			continue
		}
		recs = append(recs, s.rec)
	}
	return recs, fails, nil
}

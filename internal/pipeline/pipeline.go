// Package pipeline runs one access log load:
//
//	Reading → Parsing → Deduplicating → SchemaEnsure → Loading → Reporting → Done
//
// Reading, connecting to the sink and schema creation are fatal. Lines that do
// not parse and records the sink rejects are collected in a report.Sink; they
// never stop the run. Parse failures are written as soon as Parsing ends,
// insertion failures in Reporting.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"accesslog/internal/config"
	"accesslog/internal/datasource"
	"accesslog/internal/datasource/file"
	"accesslog/internal/metrics"
	"accesslog/internal/parser/accesslog"
	"accesslog/internal/reader"
	"accesslog/internal/record"
	"accesslog/internal/report"
	"accesslog/internal/storage"
	"accesslog/internal/transformer/builtin"
)

// newRepositoryFn is a test seam for the storage factory.
var newRepositoryFn = storage.New

// Summary reports the counts of a run.
type Summary struct {
	Lines             int
	Parsed            int
	ParseFailures     int
	Duplicates        int
	Inserted          int64
	InsertionFailures int
	Reports           []string // artifact paths written
	Elapsed           time.Duration
}

// Run executes spec. A non-nil error is a *StageError; the returned Summary
// holds whatever was counted before it.
func Run(ctx context.Context, spec config.Pipeline) (Summary, error) {
	var (
		sum   Summary
		start = time.Now()
		job   = spec.Job
		sink  = report.New(report.Config{
			Dir:             spec.Reports.Dir,
			ParseErrors:     spec.Reports.ParseErrors,
			InsertionErrors: spec.Reports.InsertionErrors,
		})
		parseWorkers  = pickInt(spec.Runtime.ParseWorkers, getenvInt("ACCESSLOG_PARSE_WORKERS", 1))
		loaderWorkers = pickInt(spec.Runtime.LoaderWorkers, getenvInt("ACCESSLOG_LOADER_WORKERS", 1))
	)
	log.Printf("run: job=%s source=%s storage=%s database=%s table=%s parse_workers=%d loader_workers=%d",
		job, spec.Source.File.Path, spec.Storage.Kind, spec.Storage.DB.Database, spec.Storage.DB.Table,
		parseWorkers, loaderWorkers)

	flushReports := func() error {
		paths, err := sink.Flush()
		sum.Reports = append(sum.Reports, paths...)
		return err
	}

	step := func(stage Stage, fn func() error) error {
		log.Printf("stage: %s", stage)
		t0 := time.Now()
		err := fn()
		d := time.Since(t0)
		metrics.RecordStep(job, stage.String(), err, d)
		if err != nil {
			log.Printf("stage: %s failed after %s: %v", stage, d.Truncate(time.Millisecond), err)
			return &StageError{Stage: stage, Err: err}
		}
		return nil
	}

	// Reading
	var lines []string
	if err := step(Reading, func() error {
		src, err := openSource(spec.Source)
		if err != nil {
			return err
		}
		lines, err = reader.ReadAll(ctx, src)
		return err
	}); err != nil {
		return finish(sum, start), err
	}
	sum.Lines = len(lines)
	metrics.RecordRow(job, metrics.KindLines, int64(sum.Lines))
	log.Printf("read %d lines", sum.Lines)

	// Parsing
	var recs []record.AccessRecord
	if err := step(Parsing, func() error {
		var (
			failures []record.ParseFailure
			err      error
		)
		recs, failures, err = accesslog.ParseAll(ctx, lines, parseWorkers)
		if err != nil {
			return err
		}
		for _, f := range failures {
			sink.RecordParseFailure(f)
		}
		// Parse failures are written before the sink is contacted, so a
		// later fatal stage cannot drop them.
		return flushReports()
	}); err != nil {
		return finish(sum, start), err
	}
	sum.Parsed = len(recs)
	sum.ParseFailures = len(sink.ParseFailures())
	metrics.RecordRow(job, metrics.KindParsed, int64(sum.Parsed))
	metrics.RecordRow(job, metrics.KindParseErrors, int64(sum.ParseFailures))
	log.Printf("parsed %d records, %d parse failures", sum.Parsed, sum.ParseFailures)

	// Deduplicating
	_ = step(Deduplicating, func() error {
		recs, sum.Duplicates = builtin.DeDup{}.Apply(recs)
		return nil
	})
	metrics.RecordRow(job, metrics.KindDuplicates, int64(sum.Duplicates))
	log.Printf("%d duplicated records, %d unique", sum.Duplicates, len(recs))

	// SchemaEnsure
	var repo storage.Repository
	if err := step(SchemaEnsure, func() error {
		var err error
		repo, err = newRepositoryFn(ctx, storage.Config{
			Kind:     spec.Storage.Kind,
			DSN:      spec.Storage.DB.DSN,
			Database: spec.Storage.DB.Database,
		})
		if err != nil {
			return fmt.Errorf("connect %s: %w", spec.Storage.Kind, err)
		}
		if !spec.Storage.DB.AutoCreateTable {
			log.Printf("auto_create_table disabled; expecting %s to exist", spec.Storage.DB.Table)
			return nil
		}
		if err := storage.EnsureSchema(ctx, repo, spec.Storage.DB.Database, spec.Storage.DB.Table); err != nil {
			return err
		}
		log.Printf("table ensured: %s", spec.Storage.DB.Table)
		return nil
	}); err != nil {
		if repo != nil {
			repo.Close()
		}
		return finish(sum, start), err
	}
	defer repo.Close()

	// Loading
	loadErr := step(Loading, func() error {
		inserted, failures, err := storage.LoadRecords(ctx, repo, spec.Storage.DB.Table, recs, loaderWorkers)
		sum.Inserted = inserted
		for _, f := range failures {
			sink.RecordInsertionFailure(f)
		}
		return err
	})
	sum.InsertionFailures = len(sink.InsertionFailures())
	metrics.RecordRow(job, metrics.KindInserted, sum.Inserted)
	metrics.RecordRow(job, metrics.KindInsertErrors, int64(sum.InsertionFailures))
	log.Printf("inserted %d records, %d insertion failures", sum.Inserted, sum.InsertionFailures)

	// Reporting runs even after a canceled load so insertion failures are kept.
	reportErr := step(Reporting, flushReports)
	if loadErr != nil {
		return finish(sum, start), loadErr
	}
	if reportErr != nil {
		return finish(sum, start), reportErr
	}

	sum = finish(sum, start)
	logSummary(sum)
	metrics.RecordSuccess(job, time.Now())
	log.Printf("stage: %s", Done)
	return sum, nil
}

func openSource(s config.Source) (datasource.Source, error) {
	switch s.Kind {
	case "file":
		return file.NewLocal(s.File.Path), nil
	default:
		return nil, fmt.Errorf("unsupported source.kind=%s", s.Kind)
	}
}

func finish(s Summary, start time.Time) Summary {
	s.Elapsed = time.Since(start)
	return s
}

// logSummary prints the end-of-run counts and checks that every line is
// accounted for:
//
//	lines  == parsed + parse_failures
//	parsed == duplicates + inserted + insertion_failures
func logSummary(s Summary) {
	log.Printf(
		"summary: lines=%d parsed=%d parse_failures=%d duplicates=%d inserted=%d insertion_failures=%d elapsed=%s",
		s.Lines, s.Parsed, s.ParseFailures, s.Duplicates, s.Inserted, s.InsertionFailures,
		s.Elapsed.Truncate(time.Millisecond),
	)
	for _, p := range s.Reports {
		log.Printf("summary: report %s", p)
	}

	if s.Lines != s.Parsed+s.ParseFailures {
		log.Printf("WARNING: line accounting mismatch: lines=%d parsed+failed=%d", s.Lines, s.Parsed+s.ParseFailures)
	}
	if loaded := int64(s.Duplicates) + s.Inserted + int64(s.InsertionFailures); int64(s.Parsed) != loaded {
		log.Printf("WARNING: record accounting mismatch: parsed=%d accounted=%d", s.Parsed, loaded)
	}
}

// getenvInt reads an int from environment, returning def when unset/invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

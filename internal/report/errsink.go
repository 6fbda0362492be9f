// Package report collects record-level failures during a run and writes them
// to diagnostic artifacts.
//
// Two artifacts exist, one per failure category. Each holds one JSON object
// per line, in the order the failures were recorded:
//
//	{"line":"<raw line>","error":"<cause>"}
//	{"record":{...},"error":"<cause>"}
//
// An artifact is only created when its category is non-empty, and files are
// opened append-only. A line that is not valid UTF-8 is written in Go-quoted
// form with "escaped":true; strconv.Unquote recovers the exact bytes.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"unicode/utf8"

	"accesslog/internal/record"
)

// Config names the artifact files.
type Config struct {
	Dir             string // directory for both files; "" means the working dir
	ParseErrors     string // file name for parse failures
	InsertionErrors string // file name for insertion failures
}

// Sink accumulates failures for one run. It is safe for concurrent use.
type Sink struct {
	cfg Config

	mu            sync.Mutex
	parse         []record.ParseFailure
	insertion     []record.InsertionFailure
	parseFlushed  bool
	insertFlushed bool
}

// New returns an empty Sink writing to the files named in cfg.
func New(cfg Config) *Sink { return &Sink{cfg: cfg} }

// RecordParseFailure appends a parse failure.
func (s *Sink) RecordParseFailure(f record.ParseFailure) {
	s.mu.Lock()
	s.parse = append(s.parse, f)
	s.mu.Unlock()
}

// RecordInsertionFailure appends an insertion failure.
func (s *Sink) RecordInsertionFailure(f record.InsertionFailure) {
	s.mu.Lock()
	s.insertion = append(s.insertion, f)
	s.mu.Unlock()
}

// ParseFailures returns a copy of the parse failures recorded so far.
func (s *Sink) ParseFailures() []record.ParseFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]record.ParseFailure(nil), s.parse...)
}

// InsertionFailures returns a copy of the insertion failures recorded so far.
func (s *Sink) InsertionFailures() []record.InsertionFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]record.InsertionFailure(nil), s.insertion...)
}

// Flush writes every non-empty category to its artifact and returns the paths
// written. A category is written at most once per Sink; later calls skip it.
func (s *Sink) Flush() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var written []string
	if !s.parseFlushed && len(s.parse) > 0 {
		p := s.path(s.cfg.ParseErrors)
		if err := writeJSONLines(p, escapeLines(s.parse)); err != nil {
			return written, fmt.Errorf("write parse failures: %w", err)
		}
		s.parseFlushed = true
		written = append(written, p)
		log.Printf("report: %d parse failures written to %s", len(s.parse), p)
	}
	if !s.insertFlushed && len(s.insertion) > 0 {
		p := s.path(s.cfg.InsertionErrors)
		if err := writeJSONLines(p, s.insertion); err != nil {
			return written, fmt.Errorf("write insertion failures: %w", err)
		}
		s.insertFlushed = true
		written = append(written, p)
		log.Printf("report: %d insertion failures written to %s", len(s.insertion), p)
	}
	return written, nil
}

// escapeLines returns fs with every line that is not valid UTF-8 replaced by
// its strconv.Quote form. JSON would otherwise turn those bytes into U+FFFD.
func escapeLines(fs []record.ParseFailure) []record.ParseFailure {
	var out []record.ParseFailure
	for i, f := range fs {
		if utf8.ValidString(f.Line) {
			continue
		}
		if out == nil {
			out = append([]record.ParseFailure(nil), fs...)
		}
		out[i].Line = strconv.Quote(f.Line)
		out[i].Escaped = true
	}
	if out == nil {
		return fs
	}
	return out
}

func (s *Sink) path(name string) string {
	if s.cfg.Dir == "" {
		return name
	}
	return filepath.Join(s.cfg.Dir, name)
}

func writeJSONLines[T any](path string, items []T) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			_ = f.Close()
			return fmt.Errorf("encode: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

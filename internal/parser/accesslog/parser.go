// Package accesslog parses combined-log-like access lines:
//
//	<client> - - [<timestamp>] "<METHOD> <url> <proto>" <status> <size>
//
// Parsing is pure and never panics. A line either yields a
// record.AccessRecord or a *ParseError that carries the original line
// verbatim; callers collect the errors and keep going.
package accesslog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"accesslog/internal/record"
)

// hostSeparator splits the client token from the rest of the line.
const hostSeparator = " - - "

// parseLayout accepts one- or two-digit days; record.TimestampLayout is used
// when formatting.
const parseLayout = "2/Jan/2006:15:04:05 -0700"

// ErrMalformedLine is returned when the host separator is missing.
var ErrMalformedLine = errors.New("malformed log line")

// ParseError describes why a single line could not be parsed.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string { return e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// Failure converts the error into the record-level failure shape.
func (e *ParseError) Failure() record.ParseFailure {
	return record.ParseFailure{Line: e.Line, Error: e.Err.Error()}
}

// Parse turns one raw log line into an AccessRecord. On failure the returned
// error is always a *ParseError.
func Parse(line string) (record.AccessRecord, error) {
	rec, err := parse(line)
	if err != nil {
		return record.AccessRecord{}, &ParseError{Line: line, Err: err}
	}
	return rec, nil
}

func parse(line string) (record.AccessRecord, error) {
	host, rest, ok := strings.Cut(line, hostSeparator)
	if !ok {
		return record.AccessRecord{}, ErrMalformedLine
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return record.AccessRecord{}, fmt.Errorf("%w: empty client address", ErrMalformedLine)
	}

	rest = strings.TrimPrefix(strings.TrimSpace(rest), "[")
	tsToken, request, ok := strings.Cut(rest, "]")
	if !ok {
		return record.AccessRecord{}, fmt.Errorf("%w: missing ']' after timestamp", ErrMalformedLine)
	}
	ts, err := time.Parse(parseLayout, strings.TrimSpace(tsToken))
	if err != nil {
		return record.AccessRecord{}, fmt.Errorf("timestamp: %w", err)
	}

	fields := strings.Fields(strings.ReplaceAll(request, `"`, ""))
	if len(fields) != 5 {
		return record.AccessRecord{}, fmt.Errorf("request: expected 5 fields, got %d", len(fields))
	}
	method, url, statusTok, sizeTok := fields[0], fields[1], fields[3], fields[4]

	status, err := strconv.Atoi(statusTok)
	if err != nil {
		return record.AccessRecord{}, fmt.Errorf("status code: %w", err)
	}

	size, err := parseSize(sizeTok)
	if err != nil {
		return record.AccessRecord{}, err
	}

	var query string
	if _, q, found := strings.Cut(url, "?"); found {
		query = q
	}

	return record.AccessRecord{
		ClientAddress:   host,
		Timestamp:       ts,
		Method:          method,
		URL:             url,
		StatusCode:      status,
		ResponseSize:    size,
		QueryParameters: query,
	}, nil
}

// parseSize maps "-" to 0 and rejects anything else that is not a
// non-negative integer.
func parseSize(tok string) (int64, error) {
	if tok == "-" {
		return 0, nil
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("response size: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("response size: negative value %d", n)
	}
	return n, nil
}

// Format renders rec back into log-line shape using proto as the discarded
// protocol token. Parse(Format(rec, proto)) yields a record equal to rec.
func Format(rec record.AccessRecord, proto string) string {
	if proto == "" {
		proto = "HTTP/1.1"
	}
	return fmt.Sprintf("%s%s[%s] \"%s %s %s\" %d %d",
		rec.ClientAddress,
		hostSeparator,
		rec.Timestamp.Format(record.TimestampLayout),
		rec.Method,
		rec.URL,
		proto,
		rec.StatusCode,
		rec.ResponseSize,
	)
}

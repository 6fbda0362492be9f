// Package record defines the business objects produced by one pipeline run:
// the parsed access record and the two failure shapes (parse and insertion).
//
// Values in this package are plain data. An AccessRecord is never mutated
// after the parser builds it; every method uses a value receiver.
package record

import "time"

// TimestampLayout is the bracketed timestamp layout used in access logs,
// e.g. "10/Oct/2023:13:55:36 +0000". Month abbreviations are always English.
const TimestampLayout = "02/Jan/2006:15:04:05 -0700"

// Column names of the destination table, in insert order. The sink-generated
// identity column is not part of this list.
const (
	ColClientAddress   = "client_address"
	ColTimestamp       = "timestamp"
	ColMethod          = "method"
	ColURL             = "url"
	ColStatusCode      = "status_code"
	ColResponseSize    = "response_size"
	ColQueryParameters = "query_parameters"
)

// Columns lists the insertable columns in the order produced by Values.
var Columns = []string{
	ColClientAddress,
	ColTimestamp,
	ColMethod,
	ColURL,
	ColStatusCode,
	ColResponseSize,
	ColQueryParameters,
}

// AccessRecord is one successfully parsed access log line.
type AccessRecord struct {
	ClientAddress   string    `json:"client_address"`
	Timestamp       time.Time `json:"timestamp"`
	Method          string    `json:"method"`
	URL             string    `json:"url"`
	StatusCode      int       `json:"status_code"`
	ResponseSize    int64     `json:"response_size"`
	QueryParameters string    `json:"query_parameters"`
}

// Equal reports whether r and o describe the same event. Timestamps compare
// as instants, so the same moment written with different offsets is equal.
func (r AccessRecord) Equal(o AccessRecord) bool {
	return r.ClientAddress == o.ClientAddress &&
		r.Timestamp.Equal(o.Timestamp) &&
		r.Method == o.Method &&
		r.URL == o.URL &&
		r.StatusCode == o.StatusCode &&
		r.ResponseSize == o.ResponseSize &&
		r.QueryParameters == o.QueryParameters
}

// Values returns the record as a row aligned with Columns. The timestamp is
// normalized to UTC so every backend stores the same instant.
func (r AccessRecord) Values() []any {
	return []any{
		r.ClientAddress,
		r.Timestamp.UTC(),
		r.Method,
		r.URL,
		r.StatusCode,
		r.ResponseSize,
		r.QueryParameters,
	}
}

// ParseFailure captures a line the parser rejected and why.
//
// Escaped is set by report writers when Line held invalid UTF-8 and was
// rewritten as a Go-quoted string literal so that every byte survives.
type ParseFailure struct {
	Line    string `json:"line"`
	Error   string `json:"error"`
	Escaped bool   `json:"escaped,omitempty"`
}

// InsertionFailure captures a record the sink rejected and why.
type InsertionFailure struct {
	Record AccessRecord `json:"record"`
	Error  string       `json:"error"`
}

// Package reader turns a datasource into the ordered list of raw log lines
// handed to the parser.
package reader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"accesslog/internal/datasource"
)

// ReadAll reads every line of src. A leading UTF-8 BOM is dropped, line
// terminators (LF or CRLF) are stripped and each line is trimmed of
// surrounding whitespace. Blank lines are kept so the parser can report them.
// Lines have no length limit.
//
// Only failing to open or read src is fatal for the run.
func ReadAll(ctx context.Context, src datasource.Source) ([]string, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer rc.Close()

	br := bufio.NewReaderSize(transform.NewReader(rc, unicode.BOMOverride(encoding.Nop.NewDecoder())), 64*1024)

	var lines []string
	for {
		if len(lines)%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read line %d: %w", len(lines)+1, err)
		}
		// A final line without a terminator still counts.
		if line != "" {
			lines = append(lines, strings.TrimSpace(line))
		}
		if err != nil {
			return lines, nil
		}
	}
}

// Package csv streams delimited text records to a consumer over a channel.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Options controls record parsing. The zero value reads comma separated
// records with strict quoting and no trimming.
type Options struct {
	Comma      rune
	LazyQuotes bool
	TrimSpace  bool
}

// Record is one parsed record. Line is its 1-based position in the
// stream, and Fields is owned by the receiver.
type Record struct {
	Line   int
	Fields []string
}

// StreamRecords parses src and sends every record, header included, to out.
// A leading UTF-8 byte order mark is dropped from the first field.
//
// Malformed records are reported to onErr and skipped; when onErr is nil
// the first malformed record stops the stream with an error. out is not
// closed.
func StreamRecords(
	ctx context.Context,
	src io.Reader,
	opt Options,
	out chan<- Record,
	onErr func(line int, err error),
) error {
	cr := csv.NewReader(src)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1

	var line int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line++
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			err = fmt.Errorf("csv line %d: %w", line, err)
			if onErr == nil {
				return err
			}
			onErr(line, err)
			continue
		}

		if line == 1 && len(rec) > 0 {
			rec[0] = strings.TrimPrefix(rec[0], "\uFEFF")
		}
		if opt.TrimSpace {
			for i, v := range rec {
				rec[i] = strings.TrimSpace(v)
			}
		}

		select {
		case out <- Record{Line: line, Fields: rec}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

package statement

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const (
	// DefaultPreambleLines is the preamble length of the current export format.
	// Older exports carry 11 lines.
	DefaultPreambleLines  = 12
	DefaultFieldDelimiter = ';'
	DefaultTagDelimiter   = '#'
	DefaultDateLayout     = "02.01.2006"
)

// Options configures how a statement export is decoded and normalized.
type Options struct {
	// PreambleLines is discarded unconditionally before record splitting.
	PreambleLines int
	// HasHeader treats the first record after the preamble as the declared
	// header: it resolves the dialect and is not a data row.
	HasHeader bool
	// Encoding of the raw bytes. Nil means Windows-1252.
	Encoding       encoding.Encoding
	FieldDelimiter rune
	TagDelimiter   rune
	// DateLayout is a Go time layout.
	DateLayout string
}

// DefaultOptions returns the options of the current export format.
func DefaultOptions() Options {
	return Options{
		PreambleLines:  DefaultPreambleLines,
		HasHeader:      true,
		Encoding:       charmap.Windows1252,
		FieldDelimiter: DefaultFieldDelimiter,
		TagDelimiter:   DefaultTagDelimiter,
		DateLayout:     DefaultDateLayout,
	}
}

// Record is one statement line split into trimmed fields.
type Record struct {
	Line   int // 1-based line in the decoded payload, preamble included
	Fields []string
	Err    error // set instead of Fields when the line could not be tokenized
}

// Width returns the number of fields, or -1 for a malformed record.
func (r Record) Width() int {
	if r.Err != nil {
		return -1
	}
	return len(r.Fields)
}

// Decode converts raw export bytes into records.
//
// Bytes are decoded with opts.Encoding; sequences invalid in that encoding
// become U+FFFD instead of failing the decode. The first opts.PreambleLines
// lines are dropped without inspection. A payload shorter than the preamble
// yields no records and no error.
//
// Quotes are read leniently: a '"' inside an unquoted field is kept as a
// literal character. A quoted field that is never closed runs to the end of
// the payload, so every later line ends up in that one record.
func Decode(raw []byte, opts Options) ([]Record, error) {
	enc := opts.Encoding
	if enc == nil {
		enc = charmap.Windows1252
	}
	comma := opts.FieldDelimiter
	if comma == 0 {
		comma = DefaultFieldDelimiter
	}

	br := bufio.NewReader(transform.NewReader(bytes.NewReader(raw), enc.NewDecoder()))
	for i := 0; i < opts.PreambleLines; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, fmt.Errorf("skipping preamble line %d: %w", i+1, err)
		}
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var records []Record
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			records = append(records, Record{
				Line: opts.PreambleLines + perr.StartLine,
				Err:  fmt.Errorf("%w: %v", ErrMalformed, perr.Err),
			})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading records: %w", err)
		}

		line, _ := cr.FieldPos(0)
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		records = append(records, Record{Line: opts.PreambleLines + line, Fields: fields})
	}
	return records, nil
}

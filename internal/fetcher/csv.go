// Package fetcher downloads source feeds over HTTP and parses CSV and XLSX tables.
package fetcher

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the CSV table reader.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool // trim every cell, header included
}

// Table is a header row plus data rows, all cells kept as opaque strings.
type Table struct {
	Header []string
	Rows   [][]string
}

// Index returns the position of the column whose header equals name, or -1.
func (t *Table) Index(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Cell returns row[idx], or "" when the row is short or idx is negative.
func Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// ReadCSV reads a header-plus-rows CSV table. Rows may have a different
// number of fields than the header. An input with no rows at all yields an
// empty table without error.
func ReadCSV(r io.Reader, opts CSVOptions) (*Table, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1 // allow variable fields

	t := &Table{}
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return t, eris.Wrap(err, "csv: read row")
		}

		if opts.TrimSpace {
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}
		}

		if first {
			first = false
			t.Header = record
			continue
		}
		t.Rows = append(t.Rows, record)
	}
}

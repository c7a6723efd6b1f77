// Package normalize maps heterogeneous feed tables onto (tax-id, name, source) records.
package normalize

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/taxid-cli/internal/fetcher"
	"github.com/sells-group/taxid-cli/internal/model"
)

// TaxIDColumn is the canonical header of the unified number column.
const TaxIDColumn = "統一編號"

// NameAliases are the accepted organization-name headers, checked in order.
// The first alias present wins; aliases are never combined.
var NameAliases = []string{"單位名稱", "機關單位名稱", "機關名稱"}

// SchemaError reports a feed that lacks a required column. It is a soft
// failure: the source contributes no records and the run continues.
type SchemaError struct {
	Label   string
	Missing string
	Headers []string
	Err     error // set when the table itself could not be parsed
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return "normalize " + e.Label + ": " + e.Err.Error()
	}
	return "normalize " + e.Label + ": missing column " + e.Missing + " (headers: " + strings.Join(e.Headers, ", ") + ")"
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Columns holds the resolved header positions for one table.
type Columns struct {
	TaxID int
	Name  int
}

// ResolveColumns trims headers and finds the tax-id column and the first matching name alias.
func ResolveColumns(header []string) (Columns, string, bool) {
	trimmed := make([]string, len(header))
	for i, h := range header {
		trimmed[i] = strings.TrimSpace(h)
	}
	t := &fetcher.Table{Header: trimmed}

	cols := Columns{TaxID: t.Index(TaxIDColumn), Name: -1}
	if cols.TaxID < 0 {
		return cols, TaxIDColumn, false
	}

	for _, alias := range NameAliases {
		if idx := t.Index(alias); idx >= 0 {
			cols.Name = idx
			return cols, "", true
		}
	}
	return cols, strings.Join(NameAliases, "|"), false
}

// Normalize parses a decoded feed and returns one record per data row,
// stamped with label. Rows are not filtered here; empty keys are dropped
// by the resolver.
func Normalize(text, label string) ([]model.NormalizedRecord, error) {
	tbl, err := fetcher.ReadCSV(strings.NewReader(text), fetcher.CSVOptions{LazyQuotes: true})
	if err != nil {
		return []model.NormalizedRecord{}, &SchemaError{Label: label, Err: eris.Wrap(err, "parse table")}
	}

	return FromTable(tbl, label)
}

// FromTable normalizes an already-parsed table, such as a re-imported export.
func FromTable(tbl *fetcher.Table, label string) ([]model.NormalizedRecord, error) {
	cols, missing, ok := ResolveColumns(tbl.Header)
	if !ok {
		return []model.NormalizedRecord{}, &SchemaError{Label: label, Missing: missing, Headers: tbl.Header}
	}

	out := make([]model.NormalizedRecord, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		out = append(out, model.NormalizedRecord{
			TaxID:  strings.TrimSpace(fetcher.Cell(row, cols.TaxID)),
			Name:   strings.TrimSpace(fetcher.Cell(row, cols.Name)),
			Source: label,
		})
	}
	return out, nil
}

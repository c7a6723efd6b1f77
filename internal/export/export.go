// Package export writes the duplicate report and the unified table to CSV
// and XLSX files, and reads exported tables back.
package export

import (
	"bufio"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/taxid-cli/internal/fetcher"
	"github.com/sells-group/taxid-cli/internal/model"
	"github.com/sells-group/taxid-cli/internal/normalize"
	"github.com/sells-group/taxid-cli/internal/resolve"
)

// Output file base names.
const (
	DuplicateReportName = "duplicate_report"
	UnifiedTableName    = "final_unified_ids_unique"
)

// SourceColumn is the header of the source label column in the duplicate report.
const SourceColumn = "來源"

// Format is an output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DefaultFormats are written when none are given.
var DefaultFormats = []Format{FormatCSV, FormatXLSX}

var (
	unifiedHeader   = []string{normalize.TaxIDColumn, normalize.NameAliases[0]}
	duplicateHeader = []string{normalize.TaxIDColumn, normalize.NameAliases[0], SourceColumn}
)

// Exporter writes pipeline outputs into a directory.
type Exporter struct {
	dir     string
	formats []Format
}

// New creates an Exporter writing to dir in the given formats.
func New(dir string, formats ...Format) *Exporter {
	if dir == "" {
		dir = "."
	}
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	return &Exporter{dir: dir, formats: formats}
}

// WriteDuplicates writes every member of every duplicate group, grouped by
// tax-id in ingestion order. It returns the paths written.
func (e *Exporter) WriteDuplicates(groups []model.DuplicateGroup) ([]string, error) {
	members := resolve.DuplicateRows(groups)
	rows := make([][]string, len(members))
	for i, r := range members {
		rows[i] = []string{r.TaxID, r.Name, r.Source}
	}
	return e.write(DuplicateReportName, "duplicates", duplicateHeader, rows)
}

// WriteUnified writes the unified (tax-id, name) table. It returns the paths written.
func (e *Exporter) WriteUnified(recs []model.UnifiedRecord) ([]string, error) {
	rows := make([][]string, len(recs))
	for i, r := range recs {
		rows[i] = []string{r.TaxID, r.Name}
	}
	return e.write(UnifiedTableName, "unified", unifiedHeader, rows)
}

func (e *Exporter) write(base, sheet string, header []string, rows [][]string) ([]string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: create dir %s", e.dir)
	}

	var paths []string
	for _, f := range e.formats {
		path := filepath.Join(e.dir, base+"."+string(f))
		var err error
		switch f {
		case FormatCSV:
			err = WriteCSV(path, header, rows)
		case FormatXLSX:
			err = WriteXLSX(path, sheet, header, rows)
		default:
			err = eris.Errorf("export: unknown format %q", f)
		}
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteCSV writes a UTF-8 CSV file with a leading byte order mark so
// spreadsheet tools detect the encoding.
func WriteCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	bw := bufio.NewWriter(f)
	if _, err := bw.WriteString("\ufeff"); err != nil {
		return eris.Wrap(err, "export: write bom")
	}

	w := csv.NewWriter(bw)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	if err := w.WriteAll(rows); err != nil {
		return eris.Wrap(err, "export: write rows")
	}
	if err := bw.Flush(); err != nil {
		return eris.Wrapf(err, "export: flush %s", path)
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

// WriteXLSX writes a single-sheet workbook. Every cell is stored as text.
func WriteXLSX(path, sheetName string, header []string, rows [][]string) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(sheetName)
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %s", sheetName)
	}

	addRow(sheet, header)
	for _, r := range rows {
		addRow(sheet, r)
	}

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// ReadTable reads an exported CSV or XLSX file by extension. CSV input may
// be UTF-8 (with or without BOM) or CP950.
func ReadTable(path string) (*fetcher.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	case ".csv", ".txt":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "export: read %s", path)
		}
		text, _, err := fetcher.Decode(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "export: decode %s", path)
		}
		return fetcher.ReadCSV(strings.NewReader(text), fetcher.CSVOptions{LazyQuotes: true})
	default:
		return nil, eris.Errorf("export: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadRecords reads an exported table and normalizes it, stamping each row with label.
func ReadRecords(path, label string) ([]model.NormalizedRecord, error) {
	tbl, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	return normalize.FromTable(tbl, label)
}

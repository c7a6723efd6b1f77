package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/taxid-cli/internal/model"
)

func sampleUnified() []model.UnifiedRecord {
	return []model.UnifiedRecord{
		{TaxID: "03730043", Name: "臺北市政府", Source: "地方政府機關"},
		{TaxID: "00000001", Name: "甲, 乙 \"聯合\" 會", Source: "非營利事業"},
	}
}

func TestWriteUnified_CSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	paths, err := New(dir, FormatCSV).WriteUnified(sampleUnified())
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "final_unified_ids_unique.csv")}, paths)

	raw, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}), "csv starts with a BOM")

	recs, err := ReadRecords(paths[0], "import")
	require.NoError(t, err)
	assert.Equal(t, []model.NormalizedRecord{
		{TaxID: "03730043", Name: "臺北市政府", Source: "import"},
		{TaxID: "00000001", Name: "甲, 乙 \"聯合\" 會", Source: "import"},
	}, recs)
}

func TestWriteUnified_XLSXRoundTrip(t *testing.T) {
	dir := t.TempDir()
	paths, err := New(dir, FormatXLSX).WriteUnified(sampleUnified())
	require.NoError(t, err)
	require.Len(t, paths, 1)

	recs, err := ReadRecords(paths[0], "import")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "03730043", recs[0].TaxID)
	assert.Equal(t, "00000001", recs[1].TaxID, "leading zeros survive")
	assert.Equal(t, "臺北市政府", recs[0].Name)
}

func TestWriteDuplicates(t *testing.T) {
	dir := t.TempDir()
	groups := []model.DuplicateGroup{
		{TaxID: "03730043", Members: []model.NormalizedRecord{
			{TaxID: "03730043", Name: "臺北市政府", Source: "全國各級學校"},
			{TaxID: "03730043", Name: "台北市府", Source: "地方政府機關"},
		}},
	}

	paths, err := New(dir).WriteDuplicates(groups)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "duplicate_report.csv"),
		filepath.Join(dir, "duplicate_report.xlsx"),
	}, paths)

	for _, p := range paths {
		tbl, err := ReadTable(p)
		require.NoError(t, err)
		assert.Equal(t, []string{"統一編號", "單位名稱", "來源"}, tbl.Header)
		require.Len(t, tbl.Rows, 2)
		assert.Equal(t, []string{"03730043", "臺北市政府", "全國各級學校"}, tbl.Rows[0])
		assert.Equal(t, []string{"03730043", "台北市府", "地方政府機關"}, tbl.Rows[1])
	}
}

func TestWriteDuplicates_Empty(t *testing.T) {
	dir := t.TempDir()
	paths, err := New(dir, FormatCSV).WriteDuplicates(nil)
	require.NoError(t, err)

	tbl, err := ReadTable(paths[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"統一編號", "單位名稱", "來源"}, tbl.Header)
	assert.Empty(t, tbl.Rows)
}

func TestExporter_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	_, err := New(dir, FormatCSV).WriteUnified(sampleUnified())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "final_unified_ids_unique.csv"))
}

func TestExporter_UnknownFormat(t *testing.T) {
	_, err := New(t.TempDir(), Format("pdf")).WriteUnified(sampleUnified())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestReadTable_Unsupported(t *testing.T) {
	_, err := ReadTable("records.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestReadTable_CP950(t *testing.T) {
	// "統一編號,單位名稱\n1,甲\n" in Big5
	big5 := []byte{0xB2, 0xCE, 0xA4, 0x40, 0xBD, 0x73, 0xB8, 0xB9, ',', 0xB3, 0xE6, 0xA6, 0xEC, 0xA6, 0x57, 0xBA, 0xD9, '\n', '1', ',', 0xA5, 0xD2, '\n'}
	path := filepath.Join(t.TempDir(), "big5.csv")
	require.NoError(t, os.WriteFile(path, big5, 0o644))

	recs, err := ReadRecords(path, "x")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "1", recs[0].TaxID)
	assert.Equal(t, "甲", recs[0].Name)
}

func TestNew_Defaults(t *testing.T) {
	e := New("")
	assert.Equal(t, ".", e.dir)
	assert.Equal(t, DefaultFormats, e.formats)
}

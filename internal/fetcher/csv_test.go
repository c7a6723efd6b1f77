package fetcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV_Basic(t *testing.T) {
	input := "統一編號,單位名稱\n03730043,臺北市政府\n00000001,某學校\n"
	tbl, err := ReadCSV(strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"統一編號", "單位名稱"}, tbl.Header)
	require.Len(t, tbl.Rows, 2)
	// Leading zeros are kept verbatim.
	assert.Equal(t, "00000001", tbl.Rows[1][0])
}

func TestReadCSV_PipeDelimited(t *testing.T) {
	input := "a|b|c\n1|2|3\n"
	tbl, err := ReadCSV(strings.NewReader(input), CSVOptions{Delimiter: '|'})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, tbl.Header)
	assert.Equal(t, [][]string{{"1", "2", "3"}}, tbl.Rows)
}

func TestReadCSV_Empty(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(""), CSVOptions{})
	require.NoError(t, err)
	assert.Empty(t, tbl.Header)
	assert.Empty(t, tbl.Rows)
}

func TestReadCSV_HeaderOnly(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader("a,b\n"), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tbl.Header)
	assert.Empty(t, tbl.Rows)
}

func TestReadCSV_VariableFields(t *testing.T) {
	input := "a,b,c\n1\n1,2,3,4\n"
	tbl, err := ReadCSV(strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 2)
	assert.Len(t, tbl.Rows[0], 1)
	assert.Len(t, tbl.Rows[1], 4)
}

func TestReadCSV_LazyQuotes(t *testing.T) {
	// Malformed CSV with quotes in unquoted field
	input := `a,b,c
1,"hello "world",3
`
	tbl, err := ReadCSV(strings.NewReader(input), CSVOptions{LazyQuotes: true})
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, []string{"a", "b", "c"}, tbl.Header)
}

func TestReadCSV_StrictQuotesError(t *testing.T) {
	input := "a,b\n1,\"unterminated\n"
	_, err := ReadCSV(strings.NewReader(input), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
}

func TestReadCSV_TrimSpace(t *testing.T) {
	input := " a , b , c \n 1 , 2 , 3 \n"
	tbl, err := ReadCSV(strings.NewReader(input), CSVOptions{TrimSpace: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, tbl.Header)
	assert.Equal(t, []string{"1", "2", "3"}, tbl.Rows[0])
}

func TestReadCSV_Comment(t *testing.T) {
	input := "# this is a comment\na,b\n1,2\n# another comment\n3,4\n"
	tbl, err := ReadCSV(strings.NewReader(input), CSVOptions{Comment: '#'})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tbl.Header)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, tbl.Rows)
}

func TestTable_Index(t *testing.T) {
	tbl := &Table{Header: []string{"統一編號", "機關名稱"}}
	assert.Equal(t, 0, tbl.Index("統一編號"))
	assert.Equal(t, 1, tbl.Index("機關名稱"))
	assert.Equal(t, -1, tbl.Index("單位名稱"))
}

func TestCell(t *testing.T) {
	row := []string{"x", "y"}
	assert.Equal(t, "y", Cell(row, 1))
	assert.Equal(t, "", Cell(row, 2))
	assert.Equal(t, "", Cell(row, -1))
}

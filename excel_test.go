package bibtemplar_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/nikitaxru/bibtemplar"
)

func TestWriteXLSX(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "refs.xlsx")
	items := []bibtemplar.Item{
		{Key: "knuth84", Label: "1", SortKey: "1", Text: `D.~E. Knuth, \textit{Literate Programming} (1984).`},
		{Key: "ghost", Text: `\textit{Warning: citation key "ghost" is not in the database}`, Omitted: true},
		{Key: "kr88", Label: "2", SortKey: "2", Text: `B. Kernighan and D. Ritchie, {The C Programming Language} 50\% (1988).`},
	}
	require.NoError(t, bibtemplar.WriteXLSX(dest, items))

	f, err := excelize.OpenFile(dest)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(bibtemplar.XLSXSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3, "опущенная запись не выводится")

	assert.Equal(t, []string{"Key", "Label", "Sort key", "Reference", "Plain text"}, rows[0])
	assert.Equal(t, []string{
		"knuth84", "1", "1",
		`D.~E. Knuth, \textit{Literate Programming} (1984).`,
		"D. E. Knuth, Literate Programming (1984).",
	}, rows[1])
	assert.Equal(t, "kr88", rows[2][0])
	assert.Equal(t, "B. Kernighan and D. Ritchie, The C Programming Language 50% (1988).", rows[2][4])

	styleID, err := f.GetCellStyle(bibtemplar.XLSXSheet, "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)
}

func TestWriteXLSX_BadPath(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "missing", "dir", "refs.xlsx")
	assert.Error(t, bibtemplar.WriteXLSX(dest, nil))
}

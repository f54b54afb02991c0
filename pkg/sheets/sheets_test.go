package sheets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		}
	}

	path := filepath.Join(t.TempDir(), "Samples_Read_Count.xlsx")
	require.NoError(t, f.SaveAs(path))

	return path
}

func TestReadSheet(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"Sample", "Reads", "Note"},
		{"S1", 100, "ok"},
		{"S2", 200},
		{"S3", 300, "low"},
	})

	t.Run("all rows", func(t *testing.T) {
		table, err := ReadSheet(path, 0)
		require.NoError(t, err)

		assert.Equal(t, "Samples_Read_Count.xlsx", table.Source)
		assert.Equal(t, []string{"Sample", "Reads", "Note"}, table.Header)
		require.Len(t, table.Rows, 3)
		assert.Equal(t, []string{"S1", "100", "ok"}, table.Rows[0])
		assert.Equal(t, []string{"S2", "200", ""}, table.Rows[1])
	})

	t.Run("limited", func(t *testing.T) {
		table, err := ReadSheet(path, 2)
		require.NoError(t, err)
		assert.Len(t, table.Rows, 2)
	})
}

func TestReadSheet_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("legacy xls", func(t *testing.T) {
		_, err := ReadSheet(filepath.Join(dir, "old.xls"), 0)
		assert.True(t, errors.Is(err, ErrUnsupported))
	})

	t.Run("missing", func(t *testing.T) {
		_, err := ReadSheet(filepath.Join(dir, "missing.xlsx"), 0)
		assert.Error(t, err)
	})

	t.Run("not a workbook", func(t *testing.T) {
		path := filepath.Join(dir, "junk.xlsx")
		require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

		_, err := ReadSheet(path, 0)
		assert.Error(t, err)
	})
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.xlsx"))
	assert.True(t, Supported("A.XLSX"))
	assert.False(t, Supported("a.xls"))
	assert.False(t, Supported("a.csv"))
}

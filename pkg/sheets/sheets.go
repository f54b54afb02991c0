// Package sheets reads lab spreadsheets (xlsx) into tables for display.
package sheets

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cometsong/mbiome-dataplots/pkg/rundir"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupported is returned for files excelize cannot open, such as the
// legacy binary .xls format.
var ErrUnsupported = errors.New("unsupported spreadsheet format")

// Supported reports whether path has an extension ReadSheet understands.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return true
	default:
		return false
	}
}

// ReadSheet reads the first worksheet of the workbook at path. The first
// row becomes the header. At most maxRows data rows are kept when maxRows
// is positive. Short rows are padded to the header width.
func ReadSheet(path string, maxRows int) (*rundir.Table, error) {
	if !Supported(path) {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupported)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}

	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: workbook has no sheets", filepath.Base(path))
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}

	table := &rundir.Table{Source: filepath.Base(path)}
	if len(rows) == 0 {
		return table, nil
	}

	table.Header = rows[0]

	for _, row := range rows[1:] {
		if maxRows > 0 && len(table.Rows) >= maxRows {
			break
		}

		for len(row) < len(table.Header) {
			row = append(row, "")
		}

		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

package rundir

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Table is a small delimited file: the first row is the header and the
// remaining rows are kept in file order.
type Table struct {
	Source string     `json:"source"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// Records returns each row keyed by header name. Short rows leave the
// missing keys empty.
func (t *Table) Records() []map[string]string {
	out := make([]map[string]string, 0, len(t.Rows))

	for _, row := range t.Rows {
		rec := make(map[string]string, len(t.Header))

		for i, col := range t.Header {
			if i < len(row) {
				rec[col] = row[i]
			} else {
				rec[col] = ""
			}
		}

		out = append(out, rec)
	}

	return out
}

// ReadTable opens path and parses it with ParseTable. Files ending in .tsv
// or .txt are tab separated, everything else comma separated.
func ReadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	comma := ','

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".txt":
		comma = '\t'
	}

	t, err := ParseTable(f, comma)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	t.Source = filepath.Base(path)

	return t, nil
}

// ParseTable reads a header row followed by data rows. Ragged rows are
// accepted.
func ParseTable(r io.Reader, comma rune) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}

	t := &Table{}
	if len(records) == 0 {
		return t, nil
	}

	t.Header = records[0]
	t.Rows = records[1:]

	return t, nil
}

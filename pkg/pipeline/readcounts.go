// Package pipeline turns the 16S pipeline QC tables into per-sample read
// loss and spike-in percentage tables.
package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/cometsong/mbiome-dataplots/pkg/reports"
)

// Read count column names, in pipeline stage order.
const (
	ColRaw        = "raw"
	ColTrimmed    = "trimmed"
	ColCombined   = "combined"
	ColNonChimera = "nonchimera"
	ColNonHost    = "nonhost"
)

// ReadCountColumns lists the count columns following the sample name.
var ReadCountColumns = []string{ColRaw, ColTrimmed, ColCombined, ColNonChimera, ColNonHost}

// ReadCountRow holds the reads left after each pipeline stage.
type ReadCountRow struct {
	Sample     string `json:"sample"`
	Raw        int64  `json:"raw"`
	Trimmed    int64  `json:"trimmed"`
	Combined   int64  `json:"combined"`
	NonChimera int64  `json:"nonchimera"`
	NonHost    int64  `json:"nonhost"`
}

// Value returns the count stored under a column name.
func (r ReadCountRow) Value(col string) (int64, bool) {
	switch col {
	case ColRaw:
		return r.Raw, true
	case ColTrimmed:
		return r.Trimmed, true
	case ColCombined:
		return r.Combined, true
	case ColNonChimera:
		return r.NonChimera, true
	case ColNonHost:
		return r.NonHost, true
	default:
		return 0, false
	}
}

// ReadCountTable is the parsed read-count file, in file order.
type ReadCountTable []ReadCountRow

// ReadCounts parses a comma separated read-count table whose first row is
// a header and whose columns are, by position, the sample name followed by
// ReadCountColumns. Cells that are not plain digit strings, such as
// "Missing", count as zero. Rows without a sample name are dropped.
func ReadCounts(r io.Reader, source string) (ReadCountTable, []reports.Diagnostic) {
	var diags []reports.Diagnostic

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var table ReadCountTable

	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				diags = append(diags, reports.Diagnostic{
					Source: source, Line: perr.Line, Message: perr.Err.Error(),
				})

				continue
			}

			diags = append(diags, reports.Diagnostic{
				Source: source, Line: line, Message: fmt.Sprintf("reading: %v", err),
			})

			break
		}

		if line == 1 {
			continue
		}

		sample := strings.TrimSpace(rec[0])
		if sample == "" {
			diags = append(diags, reports.Diagnostic{
				Source: source, Line: line, Message: "row without sample name dropped",
			})

			continue
		}

		table = append(table, ReadCountRow{
			Sample:     sample,
			Raw:        countCell(rec, 1),
			Trimmed:    countCell(rec, 2),
			Combined:   countCell(rec, 3),
			NonChimera: countCell(rec, 4),
			NonHost:    countCell(rec, 5),
		})
	}

	return table, diags
}

// countCell returns the integer in rec[i]; anything but a non-empty run of
// ASCII digits is zero.
func countCell(rec []string, i int) int64 {
	if i >= len(rec) {
		return 0
	}

	cell := strings.TrimSpace(rec[i])
	if cell == "" {
		return 0
	}

	for _, c := range cell {
		if c < '0' || c > '9' {
			return 0
		}
	}

	n, err := strconv.ParseInt(cell, 10, 64)
	if err != nil {
		return 0
	}

	return n
}

// SortReadCounts orders rows ascending by col. Unknown columns leave the
// table untouched. The sort is stable.
func SortReadCounts(table ReadCountTable, col string) ReadCountTable {
	if _, ok := (ReadCountRow{}).Value(col); !ok {
		return table
	}

	out := make(ReadCountTable, len(table))
	copy(out, table)

	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i].Value(col)
		b, _ := out[j].Value(col)

		return a < b
	})

	return out
}

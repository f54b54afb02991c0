package pipeline

import "strconv"

// Read loss column names, in display order.
const (
	ColFinal      = "final"
	ColHost       = "host"
	ColChimera    = "chimera"
	ColUncombined = "uncombined"
	ColTrim       = "trimmed"
	ColTotal      = "total"
)

// ReadDiffColumns lists the stacked components of a read loss row. Their
// sum equals Total.
var ReadDiffColumns = []string{ColFinal, ColHost, ColChimera, ColUncombined, ColTrim}

// ReadDiffRow holds the reads lost at each pipeline stage for one sample.
type ReadDiffRow struct {
	Sample     string `json:"sample"`
	Final      int64  `json:"final"`
	Host       int64  `json:"host"`
	Chimera    int64  `json:"chimera"`
	Uncombined int64  `json:"uncombined"`
	Trimmed    int64  `json:"trimmed"`
	Total      int64  `json:"total"`
}

// Components returns the stacked values in ReadDiffColumns order.
func (r ReadDiffRow) Components() []int64 {
	return []int64{r.Final, r.Host, r.Chimera, r.Uncombined, r.Trimmed}
}

// Anomaly flags a negative loss, meaning a later stage reported more
// reads than the one before it.
type Anomaly struct {
	Sample string `json:"sample"`
	Column string `json:"column"`
	Value  int64  `json:"value"`
}

// ReadDiffTable is the read loss of every sample plus any anomalies.
type ReadDiffTable struct {
	Rows      []ReadDiffRow `json:"rows"`
	Anomalies []Anomaly     `json:"anomalies,omitempty"`
}

// Diff computes per-stage read loss for each row independently. Negative
// losses are kept as computed and listed as anomalies.
func Diff(counts ReadCountTable) ReadDiffTable {
	out := ReadDiffTable{Rows: make([]ReadDiffRow, 0, len(counts))}

	for _, c := range counts {
		row := ReadDiffRow{
			Sample:     c.Sample,
			Total:      c.Raw,
			Final:      c.NonHost,
			Host:       c.NonChimera - c.NonHost,
			Chimera:    c.Combined - c.NonChimera,
			Uncombined: c.Trimmed - c.Combined,
			Trimmed:    c.Raw - c.Trimmed,
		}

		for i, v := range row.Components() {
			if v < 0 {
				out.Anomalies = append(out.Anomalies, Anomaly{
					Sample: row.Sample,
					Column: ReadDiffColumns[i],
					Value:  v,
				})
			}
		}

		out.Rows = append(out.Rows, row)
	}

	return out
}

// Records renders the table as string records with a header row: the
// sample column, the ReadDiffColumns, then the total.
func (t ReadDiffTable) Records() [][]string {
	header := make([]string, 0, len(ReadDiffColumns)+2)
	header = append(header, ColSampleName)
	header = append(header, ReadDiffColumns...)
	header = append(header, ColTotal)

	records := make([][]string, 0, len(t.Rows)+1)
	records = append(records, header)

	for _, row := range t.Rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, row.Sample)

		for _, v := range row.Components() {
			rec = append(rec, strconv.FormatInt(v, 10))
		}

		records = append(records, append(rec, strconv.FormatInt(row.Total, 10)))
	}

	return records
}

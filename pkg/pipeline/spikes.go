package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/cometsong/mbiome-dataplots/pkg/fsutil"
	"github.com/cometsong/mbiome-dataplots/pkg/reports"
	"github.com/go-gota/gota/dataframe"
	"github.com/samber/lo"
)

// Spike pivot columns besides the per-spike percentages.
const (
	ColSampleName      = "SampleName"
	ColTotalReads      = "TotalReads"
	ColTotalPct        = "TotalPct"
	ColTotalSpikeReads = "TotalSpikeReads"
)

// SpikeRow is one line of a spike percentage file.
type SpikeRow struct {
	Sample     string  `json:"sample"`
	Spike      string  `json:"spike"`
	Pct        float64 `json:"pct"`
	SpikeReads int64   `json:"spike_reads"`
	TotalReads int64   `json:"total_reads"`
}

// SpikeRows parses a headerless tab separated file with the columns
// SampleName, SpikeName, PctReads, SpikeReads, TotalReads. A trailing "%"
// on PctReads is dropped. Sample names are cut to sampleNameLen runes
// when it is positive. Rows that cannot be parsed become diagnostics.
func SpikeRows(r io.Reader, source string, sampleNameLen int) ([]SpikeRow, []reports.Diagnostic) {
	var (
		rows  []SpikeRow
		diags []reports.Diagnostic
	)

	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	addf := func(line int, format string, args ...any) {
		diags = append(diags, reports.Diagnostic{
			Source: source, Line: line, Message: fmt.Sprintf(format, args...),
		})
	}

	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				addf(perr.Line, "%v", perr.Err)

				continue
			}

			addf(line, "reading: %v", err)

			break
		}

		if len(rec) < 5 {
			addf(line, "expected 5 columns, got %d", len(rec))

			continue
		}

		sample := truncate(strings.TrimSpace(rec[0]), sampleNameLen)
		if sample == "" {
			addf(line, "row without sample name dropped")

			continue
		}

		pct, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(rec[2]), "%"), 64)
		if err != nil {
			addf(line, "invalid percentage %q", rec[2])

			continue
		}

		if pct < 0 || pct > 100 {
			addf(line, "percentage %v outside 0-100", pct)
		}

		spikeReads, err := strconv.ParseInt(strings.TrimSpace(rec[3]), 10, 64)
		if err != nil {
			addf(line, "invalid spike reads %q", rec[3])

			continue
		}

		totalReads, err := strconv.ParseInt(strings.TrimSpace(rec[4]), 10, 64)
		if err != nil {
			addf(line, "invalid total reads %q", rec[4])

			continue
		}

		rows = append(rows, SpikeRow{
			Sample:     sample,
			Spike:      strings.TrimSpace(rec[1]),
			Pct:        pct,
			SpikeReads: spikeReads,
			TotalReads: totalReads,
		})
	}

	return rows, diags
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}

	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n])
}

// SpikePivotRow is one sample of the pivot. Spikes absent for the sample
// read as zero.
type SpikePivotRow struct {
	Sample          string             `json:"sample"`
	TotalReads      int64              `json:"total_reads"`
	Pcts            map[string]float64 `json:"pcts"`
	TotalPct        float64            `json:"total_pct"`
	TotalSpikeReads int64              `json:"total_spike_reads"`
}

// Pct returns the percentage of spike, zero when absent.
func (r SpikePivotRow) Pct(spike string) float64 {
	return r.Pcts[spike]
}

// SpikePivotTable has one column per spike, sorted by name.
type SpikePivotTable struct {
	Spikes []string        `json:"spikes"`
	Rows   []SpikePivotRow `json:"rows"`
}

type pivotKey struct {
	sample     string
	totalReads int64
}

// Pivot groups rows by (sample, total reads) with one column per spike.
// Repeated (sample, spike) pairs within a group are averaged. TotalPct
// and TotalSpikeReads sum over the spike columns. The result does not
// depend on the order of rows: spikes are sorted by name and rows by
// sample then total reads.
func Pivot(rows []SpikeRow) SpikePivotTable {
	pcts := make(map[pivotKey]map[string][]float64)
	reads := make(map[pivotKey]map[string][]int64)

	for _, r := range rows {
		k := pivotKey{sample: r.Sample, totalReads: r.TotalReads}

		if pcts[k] == nil {
			pcts[k] = make(map[string][]float64)
			reads[k] = make(map[string][]int64)
		}

		pcts[k][r.Spike] = append(pcts[k][r.Spike], r.Pct)
		reads[k][r.Spike] = append(reads[k][r.Spike], r.SpikeReads)
	}

	spikes := lo.Uniq(lo.Map(rows, func(r SpikeRow, _ int) string { return r.Spike }))
	sort.Strings(spikes)

	keys := lo.Keys(pcts)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].sample != keys[j].sample {
			return keys[i].sample < keys[j].sample
		}

		return keys[i].totalReads < keys[j].totalReads
	})

	table := SpikePivotTable{
		Spikes: spikes,
		Rows:   make([]SpikePivotRow, 0, len(keys)),
	}

	for _, k := range keys {
		row := SpikePivotRow{
			Sample:     k.sample,
			TotalReads: k.totalReads,
			Pcts:       make(map[string]float64, len(spikes)),
		}

		for _, spike := range spikes {
			pct := meanFloat(pcts[k][spike])
			row.Pcts[spike] = pct
			row.TotalPct += pct
			row.TotalSpikeReads += meanInt(reads[k][spike])
		}

		table.Rows = append(table.Rows, row)
	}

	return table
}

// meanFloat averages vs in sorted order so the result is independent of
// input order. Empty input is zero.
func meanFloat(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}

	sorted := append([]float64(nil), vs...)
	sort.Float64s(sorted)

	return lo.Sum(sorted) / float64(len(sorted))
}

func meanInt(vs []int64) int64 {
	if len(vs) == 0 {
		return 0
	}

	return lo.Sum(vs) / int64(len(vs))
}

// SortSpikes orders rows ascending by a pivot column: TotalPct,
// TotalReads, TotalSpikeReads, SampleName or a spike name. Unknown columns
// leave the order unchanged. The sort is stable.
func SortSpikes(table SpikePivotTable, col string) SpikePivotTable {
	var less func(a, b SpikePivotRow) bool

	switch col {
	case ColTotalPct:
		less = func(a, b SpikePivotRow) bool { return a.TotalPct < b.TotalPct }
	case ColTotalReads:
		less = func(a, b SpikePivotRow) bool { return a.TotalReads < b.TotalReads }
	case ColTotalSpikeReads:
		less = func(a, b SpikePivotRow) bool { return a.TotalSpikeReads < b.TotalSpikeReads }
	case ColSampleName:
		less = func(a, b SpikePivotRow) bool { return a.Sample < b.Sample }
	default:
		if !lo.Contains(table.Spikes, col) {
			return table
		}

		less = func(a, b SpikePivotRow) bool { return a.Pct(col) < b.Pct(col) }
	}

	out := SpikePivotTable{
		Spikes: table.Spikes,
		Rows:   append([]SpikePivotRow(nil), table.Rows...),
	}

	sort.SliceStable(out.Rows, func(i, j int) bool {
		return less(out.Rows[i], out.Rows[j])
	})

	return out
}

// Records renders the pivot as string records with a header row:
// SampleName, TotalReads, one column per spike, TotalPct, TotalSpikeReads.
func (t SpikePivotTable) Records() [][]string {
	header := make([]string, 0, len(t.Spikes)+4)
	header = append(header, ColSampleName, ColTotalReads)
	header = append(header, t.Spikes...)
	header = append(header, ColTotalPct, ColTotalSpikeReads)

	records := make([][]string, 0, len(t.Rows)+1)
	records = append(records, header)

	for _, row := range t.Rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, row.Sample, strconv.FormatInt(row.TotalReads, 10))

		for _, spike := range t.Spikes {
			rec = append(rec, formatFloat(row.Pct(spike)))
		}

		rec = append(rec,
			formatFloat(row.TotalPct),
			strconv.FormatInt(row.TotalSpikeReads, 10),
		)
		records = append(records, rec)
	}

	return records
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// WritePivotCSV writes the pivot to path unless the file already exists,
// in which case it returns fsutil.ErrExists and leaves the file alone.
func WritePivotCSV(path string, table SpikePivotTable, owner *fsutil.OwnerConfig) error {
	f, err := fsutil.CreateExclusive(path, owner)
	if err != nil {
		return err
	}

	df := dataframe.LoadRecords(table.Records(), dataframe.DetectTypes(false))
	if df.Err != nil {
		_ = f.Close()
		_ = os.Remove(path)

		return fmt.Errorf("building pivot frame: %w", df.Err)
	}

	if err := df.WriteCSV(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)

		return fmt.Errorf("writing pivot csv: %w", err)
	}

	return f.Close()
}

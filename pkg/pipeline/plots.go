package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/cometsong/mbiome-dataplots/pkg/config"
	"github.com/cometsong/mbiome-dataplots/pkg/fsutil"
	"github.com/cometsong/mbiome-dataplots/pkg/reports"
	"github.com/cometsong/mbiome-dataplots/pkg/rundir"
	"github.com/sirupsen/logrus"
)

// ProjectName extracts <project> from a pipeline file name of the form
// <prefix>-<project>-<flowcell>.<ext>. Rather than a single positional
// segment, everything between the first and the last dash is kept, since
// lab project ids such as "18-microbe-028" contain dashes themselves. For
// three part names the two agree. Names with fewer than three dash
// separated parts are returned unchanged.
func ProjectName(filename string) string {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	parts := strings.Split(stem, "-")
	if len(parts) < 3 {
		return base
	}

	return strings.Join(parts[1:len(parts)-1], "-")
}

// PivotPath returns where the pivot of a spike file is persisted: the full
// source name with ".pivot.csv" appended, so it never matches the spike
// file glob.
func PivotPath(source string) string {
	return source + ".pivot.csv"
}

// ReadCountPlot is the read loss table of one read-count file.
type ReadCountPlot struct {
	Source  string        `json:"source"`
	Project string        `json:"project"`
	Title   string        `json:"title"`
	Table   ReadDiffTable `json:"table"`
}

// SpikePlot is the spike pivot of one spike percentage file.
type SpikePlot struct {
	Source  string          `json:"source"`
	Project string          `json:"project"`
	Title   string          `json:"title"`
	Pivot   string          `json:"pivot,omitempty"`
	Table   SpikePivotTable `json:"table"`
}

// Plots loads the pipeline tables of a run directory.
type Plots struct {
	log            logrus.FieldLogger
	readCountsGlob string
	spikePctsGlob  string
	sampleNameLen  int
	readCountsSort string
	spikesSort     string
	owner          *fsutil.OwnerConfig
}

// NewPlots creates a Plots loader from the pipeline config.
func NewPlots(
	log logrus.FieldLogger,
	cfg *config.PipelineConfig,
	owner *fsutil.OwnerConfig,
) *Plots {
	return &Plots{
		log:            log.WithField("component", "pipeline"),
		readCountsGlob: cfg.ReadCountsGlob,
		spikePctsGlob:  cfg.SpikePctsGlob,
		sampleNameLen:  cfg.SampleNameLength,
		readCountsSort: cfg.ReadCountsSort,
		spikesSort:     cfg.SpikesSort,
		owner:          owner,
	}
}

// ReadCounts returns one plot per read-count file in runDir. Rows are
// sorted by the configured column before differencing. Negative losses
// are logged.
func (p *Plots) ReadCounts(runDir string) ([]ReadCountPlot, []reports.Diagnostic) {
	var (
		plots []ReadCountPlot
		diags []reports.Diagnostic
	)

	for _, path := range rundir.FilePaths(runDir, p.readCountsGlob, false) {
		source := filepath.Base(path)

		f, err := os.Open(path)
		if err != nil {
			diags = append(diags, reports.Diagnostic{Source: source, Message: err.Error()})

			continue
		}

		counts, d := ReadCounts(f, source)
		_ = f.Close()

		diags = append(diags, d...)

		table := Diff(SortReadCounts(counts, p.readCountsSort))

		for _, a := range table.Anomalies {
			p.log.WithFields(logrus.Fields{
				"source": source,
				"sample": a.Sample,
				"column": a.Column,
				"value":  a.Value,
			}).Warn("Negative read loss")
		}

		project := ProjectName(source)

		plots = append(plots, ReadCountPlot{
			Source:  source,
			Project: project,
			Title:   "Project " + project + " Read Counts",
			Table:   table,
		})
	}

	return plots, diags
}

// Spikes returns one plot per spike percentage file in runDir and
// persists each pivot next to its source unless one is already there.
func (p *Plots) Spikes(runDir string) ([]SpikePlot, []reports.Diagnostic) {
	var (
		plots []SpikePlot
		diags []reports.Diagnostic
	)

	for _, path := range rundir.FilePaths(runDir, p.spikePctsGlob, false) {
		source := filepath.Base(path)

		f, err := os.Open(path)
		if err != nil {
			diags = append(diags, reports.Diagnostic{Source: source, Message: err.Error()})

			continue
		}

		rows, d := SpikeRows(f, source, p.sampleNameLen)
		_ = f.Close()

		diags = append(diags, d...)

		table := SortSpikes(Pivot(rows), p.spikesSort)
		project := ProjectName(source)
		plot := SpikePlot{
			Source:  source,
			Project: project,
			Title:   "Project " + project + " Spike Pcts",
			Table:   table,
		}

		if len(table.Rows) > 0 {
			pivotPath := PivotPath(path)

			err := WritePivotCSV(pivotPath, table, p.owner)
			switch {
			case err == nil, errors.Is(err, fsutil.ErrExists):
				plot.Pivot = filepath.Base(pivotPath)
			default:
				diags = append(diags, reports.Diagnostic{
					Source:  filepath.Base(pivotPath),
					Message: "writing pivot: " + err.Error(),
				})
			}
		}

		plots = append(plots, plot)
	}

	return plots, diags
}

package main

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cometsong/mbiome-dataplots/pkg/charts"
	"github.com/cometsong/mbiome-dataplots/pkg/config"
	"github.com/cometsong/mbiome-dataplots/pkg/fsutil"
	"github.com/cometsong/mbiome-dataplots/pkg/pipeline"
	"github.com/cometsong/mbiome-dataplots/pkg/reports"
	"github.com/go-gota/gota/dataframe"
	"github.com/spf13/cobra"
)

var (
	plotsFormat    string
	plotsChartsDir string
)

var plotsCmd = &cobra.Command{
	Use:   "plots <run-dir>",
	Short: "Print the pipeline read-count and spike tables of a run",
	Long: `Compute the per-stage read loss of every pipe_16S_QC-*.csv file and the
spike pivot of every pipe_16S_spike_pcts-*.tsv file in a run directory.
Tables are printed as CSV (default) or JSON. With --charts-dir the rendered
charts are written there as HTML fragments.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlots,
}

func init() {
	rootCmd.AddCommand(plotsCmd)
	plotsCmd.Flags().StringVar(&plotsFormat, "format", "csv",
		`output format: "csv" or "json"`)
	plotsCmd.Flags().StringVar(&plotsChartsDir, "charts-dir", "",
		"write rendered charts into this directory")
}

type plotsOutput struct {
	ReadCounts  []pipeline.ReadCountPlot `json:"read_counts"`
	Spikes      []pipeline.SpikePlot     `json:"spikes"`
	Diagnostics []reports.Diagnostic     `json:"diagnostics,omitempty"`
}

func runPlots(cmd *cobra.Command, args []string) error {
	if plotsFormat != "csv" && plotsFormat != "json" {
		return fmt.Errorf("unsupported format %q (use \"csv\" or \"json\")", plotsFormat)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	runDir := args[0]

	if info, err := os.Stat(runDir); err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a run directory", runDir)
	}

	plots := pipeline.NewPlots(log, &cfg.Pipeline, cfg.Owner())

	var out plotsOutput

	readCounts, diags := plots.ReadCounts(runDir)
	out.ReadCounts = readCounts
	out.Diagnostics = append(out.Diagnostics, diags...)

	spikes, diags := plots.Spikes(runDir)
	out.Spikes = spikes
	out.Diagnostics = append(out.Diagnostics, diags...)

	reports.LogDiagnostics(log.WithField("run", runDir), out.Diagnostics)

	if plotsChartsDir != "" {
		if err := writeCharts(cfg, plotsChartsDir, &out); err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()

	if plotsFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	for _, p := range out.ReadCounts {
		if err := writeTable(w, p.Title, p.Source, p.Table.Records()); err != nil {
			return err
		}
	}

	for _, p := range out.Spikes {
		if err := writeTable(w, p.Title, p.Source, p.Table.Records()); err != nil {
			return err
		}
	}

	return nil
}

// writeTable prints one titled CSV table. records[0] is the header.
func writeTable(w io.Writer, title, source string, records [][]string) error {
	if _, err := fmt.Fprintf(w, "# %s (%s)\n", title, source); err != nil {
		return err
	}

	if len(records) < 2 {
		_, err := fmt.Fprintln(w, "# no rows")

		return err
	}

	df := dataframe.LoadRecords(records, dataframe.DetectTypes(false))
	if df.Err != nil {
		return fmt.Errorf("building table for %s: %w", source, df.Err)
	}

	if err := df.WriteCSV(w); err != nil {
		return fmt.Errorf("writing table for %s: %w", source, err)
	}

	_, err := fmt.Fprintln(w)

	return err
}

// writeCharts renders every plot into dir as <source stem>.html.
func writeCharts(cfg *config.Config, dir string, out *plotsOutput) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating charts dir: %w", err)
	}

	chartCfg := charts.FromConfig(cfg.Charts)
	owner := cfg.Owner()

	write := func(source string, html template.HTML) error {
		name := strings.TrimSuffix(source, filepath.Ext(source)) + ".html"
		path := filepath.Join(dir, name)

		if err := fsutil.WriteFileAtomic(path, []byte(html), 0o644, owner); err != nil {
			return fmt.Errorf("writing chart %s: %w", name, err)
		}

		log.WithField("path", path).Info("Chart written")

		return nil
	}

	for _, p := range out.ReadCounts {
		html, err := charts.ReadCountsBar(chartCfg, p.Title, p.Table)
		if err != nil {
			return fmt.Errorf("rendering %s: %w", p.Source, err)
		}

		if err := write(p.Source, html); err != nil {
			return err
		}
	}

	for _, p := range out.Spikes {
		html, err := charts.SpikeScatter(chartCfg, p.Title, p.Table)
		if err != nil {
			return fmt.Errorf("rendering %s: %w", p.Source, err)
		}

		if err := write(p.Source, html); err != nil {
			return err
		}
	}

	return nil
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cometsong/mbiome-dataplots/pkg/api/indexstore"
	"github.com/cometsong/mbiome-dataplots/pkg/charts"
	"github.com/cometsong/mbiome-dataplots/pkg/reports"
	"github.com/cometsong/mbiome-dataplots/pkg/rundir"
	"github.com/cometsong/mbiome-dataplots/pkg/runinfo"
	"github.com/cometsong/mbiome-dataplots/pkg/sheets"
	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

const (
	fastqcDir = "fastqc"

	readCountSheetsGlob = "[Ss]amples_[Rr]ead_[Cc]ount*.*"
	fastqcStatsFile     = "fastqc_stats.tsv"

	// sheetPreviewRows limits the inline preview of read-count workbooks.
	sheetPreviewRows = 50
)

// readDistGlobs match the read distribution images of a run, in display
// order.
var readDistGlobs = []string{
	"*_Read_Distributions.png",
	"raw_read_distribution_plot*.png",
}

// assemblers produced control assembly accuracy stats and plots.
var assemblers = []string{"flash", "pear"}

// runURL returns the URL of a run page without the trailing slash.
func (s *server) runURL(dir string) string {
	return s.cfg.Server.ApplicationRoot + "/" + dir
}

// runDir returns the local directory of a run.
func (s *server) runDir(run string) string {
	return filepath.Join(s.cfg.Datasets.Root, run)
}

func isDir(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.IsDir()
}

// scanRuns lists the run directories under the datasets root, newest
// first. Run directory names start with their date, so a descending name
// sort orders them by date.
func (s *server) scanRuns() (rundir.Node, []rundir.RunName) {
	tree := rundir.MakeTree(s.cfg.Datasets.Root, false)

	runs := lo.Map(tree.Dirs(), func(n rundir.Node, _ int) rundir.RunName {
		return rundir.ParseRunName(n.Base(), s.cfg.Datasets.RunSuffix)
	})

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Dir > runs[j].Dir
	})

	return tree, runs
}

// indexedRuns returns the index store rows keyed by run name, or nil when
// indexing is disabled or the store cannot be read.
func (s *server) indexedRuns(ctx context.Context) map[string]indexstore.Run {
	if s.indexStore == nil {
		return nil
	}

	runs, err := s.indexStore.ListRuns(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to list indexed runs")

		return nil
	}

	return lo.KeyBy(runs, func(r indexstore.Run) string {
		return r.RunName
	})
}

// handleRunList renders the list of runs.
func (s *server) handleRunList(w http.ResponseWriter, r *http.Request) {
	tree, runs := s.scanRuns()
	if tree.Err != "" {
		s.log.WithField("root", s.cfg.Datasets.Root).Warn(tree.Err)
	}

	indexed := s.indexedRuns(r.Context())

	page := runListPage{
		Datasets: s.cfg.Datasets.Root,
		Error:    tree.Err,
		Indexed:  indexed != nil,
		Runs:     make([]runListEntry, 0, len(runs)),
	}

	for _, rn := range runs {
		entry := runListEntry{
			Name:     rn.Name,
			Href:     s.runURL(rn.Dir),
			Date:     rn.Date,
			Project:  rn.Project,
			FlowCell: rn.FlowCell,
		}

		if run, ok := indexed[rn.Dir]; ok {
			if run.GTProject != "" {
				entry.Project = run.GTProject
			}

			if run.FlowCell != "" {
				entry.FlowCell = run.FlowCell
			}

			entry.RunDate = run.RunDate
			entry.Machine = run.MachineID
		}

		page.Runs = append(page.Runs, entry)
	}

	w.Header().Set("X-Datasets", s.cfg.Datasets.Root)
	s.renderPage(w, "run_list", page)
}

// handleRunDetails renders the QC page of one run. The page only works
// with a trailing slash, so the bare run URL is redirected.
func (s *server) handleRunDetails(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/") {
		http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)

		return
	}

	run := chi.URLParam(r, "run")
	dir := s.runDir(run)

	if !isDir(dir) {
		http.NotFound(w, r)

		return
	}

	s.log.WithField("run", run).Info("Getting run details")

	s.renderPage(w, "run_details", s.runDetails(run, dir))
}

// runDetails gathers everything the run page shows. Problems with any
// single artefact become diagnostics listed at the bottom of the page.
func (s *server) runDetails(run, dir string) runDetailsPage {
	rn := rundir.ParseRunName(run, s.cfg.Datasets.RunSuffix)
	rec, diags := s.builder.Build(dir)

	page := runDetailsPage{
		Name:       rn.Name,
		Base:       s.runURL(run) + "/",
		Project:    rn.Project,
		FlowCell:   rn.FlowCell,
		RecordKeys: rec.Keys(),
		Record: lo.MapValues(map[string]any(rec), func(_ any, k string) string {
			return rec.Get(k)
		}),
		Tree: rundir.MakeTree(dir, false),
	}

	// The record knows better than the directory name.
	if v := rec.Get(runinfo.KeyProject); v != "" {
		page.Project = v
	}

	if v := rec.Get(runinfo.KeyFlowCell); v != "" {
		page.FlowCell = v
	}

	if names := rundir.FilePaths(dir, s.cfg.Reports.RunMetricsGlob, true); len(names) > 0 {
		page.RunMetricCSV = names[0]
	}

	for _, name := range rundir.FilePaths(dir, readCountSheetsGlob, true) {
		link := sheetLink{Name: name}

		if sheets.Supported(name) {
			preview, err := sheets.ReadSheet(filepath.Join(dir, name), sheetPreviewRows)
			if err != nil {
				diags = append(diags, reports.Diagnostic{Source: name, Message: err.Error()})
			} else {
				link.Preview = preview
			}
		}

		page.ReadCountSheets = append(page.ReadCountSheets, link)
	}

	for _, glob := range readDistGlobs {
		page.ReadDistImages = append(page.ReadDistImages, rundir.FilePaths(dir, glob, true)...)
	}

	page.FastQCStats = readStats(filepath.Join(dir, fastqcStatsFile), &diags)

	for _, name := range assemblers {
		acc := assemblyAccuracy{
			Name:  name,
			Stats: readStats(filepath.Join(dir, name+"_stats.tsv"), &diags),
		}

		if plot, ok := rundir.FirstMatch(dir, name+"_assembly_accuracy_plot.png"); ok {
			acc.Plot = filepath.Base(plot)
		}

		if acc.Stats != nil || acc.Plot != "" {
			page.Assemblies = append(page.Assemblies, acc)
		}
	}

	readCounts, d := s.plots.ReadCounts(dir)
	diags = append(diags, d...)

	for _, p := range readCounts {
		html, err := charts.ReadCountsBar(s.charts, p.Title, p.Table)
		if err != nil {
			diags = append(diags, reports.Diagnostic{
				Source:  p.Source,
				Message: fmt.Sprintf("rendering chart: %v", err),
			})

			continue
		}

		page.ReadCountCharts = append(page.ReadCountCharts, html)
	}

	spikes, d := s.plots.Spikes(dir)
	diags = append(diags, d...)

	for _, p := range spikes {
		html, err := charts.SpikeScatter(s.charts, p.Title, p.Table)
		if err != nil {
			diags = append(diags, reports.Diagnostic{
				Source:  p.Source,
				Message: fmt.Sprintf("rendering chart: %v", err),
			})

			continue
		}

		page.SpikeCharts = append(page.SpikeCharts, html)
	}

	reports.LogDiagnostics(s.log.WithField("run", run), diags)
	page.Diagnostics = diags

	return page
}

// readStats reads an optional stats table. A missing file is not a
// problem; an unreadable one is.
func readStats(path string, diags *[]reports.Diagnostic) *rundir.Table {
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	table, err := rundir.ReadTable(path)
	if err != nil {
		*diags = append(*diags, reports.Diagnostic{
			Source:  filepath.Base(path),
			Message: err.Error(),
		})

		return nil
	}

	return table
}

// handleFastQCList lists the FastQC html reports of a run.
func (s *server) handleFastQCList(w http.ResponseWriter, r *http.Request) {
	run := chi.URLParam(r, "run")
	dir := s.runDir(run)

	if !isDir(dir) {
		http.NotFound(w, r)

		return
	}

	base := s.runURL(run) + "/"
	tree := rundir.MakeTree(filepath.Join(dir, fastqcDir), false)

	if tree.Err != "" {
		s.log.WithField("run", run).Warn(tree.Err)
	}

	names := lo.SliceToMap(tree.Contents, func(n rundir.Node) (string, bool) {
		return n.Base(), !n.IsDir
	})

	page := fastqcPage{
		Name:  rundir.ParseRunName(run, s.cfg.Datasets.RunSuffix).Name,
		Base:  base,
		Error: tree.Err,
	}

	for _, n := range tree.Contents {
		name := n.Base()
		if n.IsDir || !strings.HasSuffix(name, ".html") {
			continue
		}

		stem := strings.TrimSuffix(name, ".html")
		entry := fastqcEntry{
			Name: strings.TrimSuffix(stem, "_fastqc"),
			Href: base + fastqcDir + "/" + name,
		}

		if names[stem+".zip"] {
			entry.Zip = base + fastqcDir + "/" + stem + ".zip"
		}

		page.Files = append(page.Files, entry)
	}

	s.renderPage(w, "fastqc", page)
}

// handleRunFile serves any file inside a run. A path ending in a slash
// lists that folder. Files missing locally are redirected to their S3
// archive when one is configured.
func (s *server) handleRunFile(w http.ResponseWriter, r *http.Request) {
	run := chi.URLParam(r, "run")
	sub := chi.URLParam(r, "*")

	if sub == "" || strings.HasSuffix(sub, "/") {
		s.serveFolder(w, r, run, strings.TrimSuffix(sub, "/"))

		return
	}

	rel := run + "/" + sub

	if _, info, err := s.localServer.resolve(rel); err == nil && info.IsDir() {
		http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)

		return
	}

	err := s.localServer.ServeFile(w, r, rel)

	switch {
	case err == nil:
		return
	case errors.Is(err, errPathNotAllowed):
		http.Error(w, "invalid path", http.StatusBadRequest)
	case errors.Is(err, errFileNotFound) && s.presigner != nil:
		url, perr := s.presigner.RunFileURL(r.Context(), run, sub)
		if perr != nil {
			s.log.WithError(perr).WithField("path", rel).Debug("No archived copy")
			http.NotFound(w, r)

			return
		}

		http.Redirect(w, r, url, http.StatusFound)
	default:
		http.NotFound(w, r)
	}
}

// serveFolder renders the listing of a folder inside a run.
func (s *server) serveFolder(w http.ResponseWriter, r *http.Request, run, sub string) {
	target := s.runDir(run)

	if sub != "" {
		if !s.localServer.isAllowedPath(run + "/" + sub) {
			http.Error(w, "invalid path", http.StatusBadRequest)

			return
		}

		target = filepath.Join(target, filepath.FromSlash(sub))
	}

	if !isDir(target) {
		http.NotFound(w, r)

		return
	}

	s.renderPage(w, "folder", folderPage{
		Name: rundir.ParseRunName(run, s.cfg.Datasets.RunSuffix).Name,
		Base: s.runURL(run) + "/",
		Path: sub,
		Tree: rundir.MakeTree(target, false),
	})
}

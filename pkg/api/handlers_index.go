package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cometsong/mbiome-dataplots/pkg/api/indexstore"
	"github.com/cometsong/mbiome-dataplots/pkg/pipeline"
	"github.com/cometsong/mbiome-dataplots/pkg/reports"
	"github.com/cometsong/mbiome-dataplots/pkg/rundir"
	"github.com/cometsong/mbiome-dataplots/pkg/runinfo"
	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

// apiRun is one entry of the runs list. Summary, Complete and the index
// timestamps are only known for indexed runs.
type apiRun struct {
	rundir.RunName
	Href        string           `json:"href"`
	Summary     *runinfo.Summary `json:"summary,omitempty"`
	Complete    bool             `json:"complete,omitempty"`
	Diagnostics int              `json:"diagnostics,omitempty"`
	IndexedAt   *time.Time       `json:"indexed_at,omitempty"`
}

type runsResponse struct {
	Source string   `json:"source"`
	Runs   []apiRun `json:"runs"`
}

// handleAPIRuns lists runs from the index store when indexing is enabled,
// otherwise straight from the datasets root.
func (s *server) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	if s.indexStore != nil {
		runs, err := s.indexStore.ListRuns(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError,
				errorResponse{"listing runs: " + err.Error()})

			return
		}

		writeJSON(w, http.StatusOK, runsResponse{
			Source: "index",
			Runs:   lo.Map(runs, func(run indexstore.Run, _ int) apiRun { return s.indexedRun(&run) }),
		})

		return
	}

	tree, runs := s.scanRuns()
	if tree.Err != "" {
		writeJSON(w, http.StatusInternalServerError, errorResponse{tree.Err})

		return
	}

	writeJSON(w, http.StatusOK, runsResponse{
		Source: "datasets",
		Runs: lo.Map(runs, func(rn rundir.RunName, _ int) apiRun {
			return apiRun{RunName: rn, Href: s.runURL(rn.Dir) + "/"}
		}),
	})
}

func (s *server) indexedRun(run *indexstore.Run) apiRun {
	indexedAt := run.IndexedAt

	return apiRun{
		RunName: rundir.ParseRunName(run.RunName, s.cfg.Datasets.RunSuffix),
		Href:    s.runURL(run.RunName) + "/",
		Summary: &runinfo.Summary{
			GTProject:   run.GTProject,
			FlowCell:    run.FlowCell,
			RunDate:     run.RunDate,
			MachineID:   run.MachineID,
			SeqProtocol: run.SeqProtocol,
			SampleSize:  run.SampleSize,
		},
		Complete:    run.Complete,
		Diagnostics: run.Diagnostics,
		IndexedAt:   &indexedAt,
	}
}

// summaryResponse is the record of one run. Source is "index" when it was
// read back from the index store and "datasets" when built from the run
// directory.
type summaryResponse struct {
	Source      string               `json:"source"`
	Run         rundir.RunName       `json:"run"`
	Complete    bool                 `json:"complete"`
	Summary     runinfo.Summary      `json:"summary"`
	Record      runinfo.Record       `json:"record"`
	Diagnostics []reports.Diagnostic `json:"diagnostics"`
	IndexedAt   *time.Time           `json:"indexed_at,omitempty"`
}

// apiRunDir resolves the run of the request, writing a 404 when it is not
// a directory under the datasets root.
func (s *server) apiRunDir(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	run := chi.URLParam(r, "run")
	dir := s.runDir(run)

	if !isDir(dir) {
		writeJSON(w, http.StatusNotFound, errorResponse{"run not found"})

		return "", "", false
	}

	return run, dir, true
}

// handleAPIRunSummary returns the record of a run. Indexed runs are served
// from the index store; anything else is built (or read back from its
// sidecar) on the spot.
func (s *server) handleAPIRunSummary(w http.ResponseWriter, r *http.Request) {
	run, dir, ok := s.apiRunDir(w, r)
	if !ok {
		return
	}

	if resp, ok := s.indexedSummary(r.Context(), run); ok {
		writeJSON(w, http.StatusOK, resp)

		return
	}

	rec, diags := s.builder.Build(dir)

	summary, err := runinfo.Decode(rec)
	if err != nil {
		diags = append(diags, reports.Diagnostic{
			Source:  s.builder.SidecarPath(dir),
			Message: err.Error(),
		})
	}

	writeJSON(w, http.StatusOK, summaryResponse{
		Source:      "datasets",
		Run:         rundir.ParseRunName(run, s.cfg.Datasets.RunSuffix),
		Complete:    rec.Complete(),
		Summary:     summary,
		Record:      rec,
		Diagnostics: nonNil(diags),
	})
}

// indexedSummary reads the stored record and diagnostics of run. ok is
// false when indexing is disabled, the run has not been indexed yet or
// its stored row cannot be used.
func (s *server) indexedSummary(ctx context.Context, run string) (summaryResponse, bool) {
	if s.indexStore == nil {
		return summaryResponse{}, false
	}

	log := s.log.WithField("run", run)

	stored, err := s.indexStore.GetRun(ctx, run)
	if err != nil {
		if !errors.Is(err, indexstore.ErrNotFound) {
			log.WithError(err).Warn("Failed to read indexed run")
		}

		return summaryResponse{}, false
	}

	var rec runinfo.Record
	if err := json.Unmarshal([]byte(stored.RecordJSON), &rec); err != nil || rec == nil {
		log.WithError(err).Debug("Indexed run has no usable record")

		return summaryResponse{}, false
	}

	storedDiags, err := s.indexStore.ListDiagnostics(ctx, run)
	if err != nil {
		log.WithError(err).Warn("Failed to list indexed diagnostics")

		return summaryResponse{}, false
	}

	diags := lo.Map(storedDiags, func(d indexstore.Diagnostic, _ int) reports.Diagnostic {
		return reports.Diagnostic{Source: d.Source, Line: d.Line, Message: d.Message}
	})

	summary, err := runinfo.Decode(rec)
	if err != nil {
		diags = append(diags, reports.Diagnostic{Source: "index", Message: err.Error()})
	}

	indexedAt := stored.IndexedAt

	return summaryResponse{
		Source:      "index",
		Run:         rundir.ParseRunName(run, s.cfg.Datasets.RunSuffix),
		Complete:    stored.Complete,
		Summary:     summary,
		Record:      rec,
		Diagnostics: nonNil(diags),
		IndexedAt:   &indexedAt,
	}, true
}

type readCountsResponse struct {
	Plots       []pipeline.ReadCountPlot `json:"plots"`
	Diagnostics []reports.Diagnostic     `json:"diagnostics"`
}

// handleAPIReadCounts returns the read loss tables of a run.
func (s *server) handleAPIReadCounts(w http.ResponseWriter, r *http.Request) {
	_, dir, ok := s.apiRunDir(w, r)
	if !ok {
		return
	}

	plots, diags := s.plots.ReadCounts(dir)

	writeJSON(w, http.StatusOK, readCountsResponse{
		Plots:       nonNil(plots),
		Diagnostics: nonNil(diags),
	})
}

type spikesResponse struct {
	Plots       []pipeline.SpikePlot `json:"plots"`
	Diagnostics []reports.Diagnostic `json:"diagnostics"`
}

// handleAPISpikes returns the spike pivot tables of a run.
func (s *server) handleAPISpikes(w http.ResponseWriter, r *http.Request) {
	_, dir, ok := s.apiRunDir(w, r)
	if !ok {
		return
	}

	plots, diags := s.plots.Spikes(dir)

	writeJSON(w, http.StatusOK, spikesResponse{
		Plots:       nonNil(plots),
		Diagnostics: nonNil(diags),
	})
}

// handleAPIRunTree lists a run directory. ?recursive=true expands
// sub-directories.
func (s *server) handleAPIRunTree(w http.ResponseWriter, r *http.Request) {
	_, dir, ok := s.apiRunDir(w, r)
	if !ok {
		return
	}

	recursive := false

	if v := r.URL.Query().Get("recursive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"invalid recursive parameter"})

			return
		}

		recursive = b
	}

	writeJSON(w, http.StatusOK, rundir.MakeTree(dir, recursive))
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}

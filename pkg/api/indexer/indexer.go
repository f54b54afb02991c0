package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cometsong/mbiome-dataplots/pkg/api/indexstore"
	"github.com/cometsong/mbiome-dataplots/pkg/config"
	"github.com/cometsong/mbiome-dataplots/pkg/reports"
	"github.com/cometsong/mbiome-dataplots/pkg/rundir"
	"github.com/cometsong/mbiome-dataplots/pkg/runinfo"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// defaultConcurrency is the number of runs indexed in parallel when
// no explicit concurrency value is configured.
const defaultConcurrency = 4

// RecordBuilder produces the record of a run directory.
type RecordBuilder interface {
	Build(runDir string) (runinfo.Record, []reports.Diagnostic)
}

// Indexer is a background service that periodically scans the datasets
// root and upserts a summary of every run into the index store.
type Indexer interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Indexer = (*indexer)(nil)

type indexer struct {
	log         logrus.FieldLogger
	store       indexstore.Store
	builder     RecordBuilder
	root        string
	suffix      string
	interval    time.Duration
	concurrency int
	done        chan struct{}
	wg          sync.WaitGroup
	dbMu        sync.Mutex // serializes DB writes to avoid SQLite contention
}

// NewIndexer creates a new background indexer.
func NewIndexer(
	log logrus.FieldLogger,
	store indexstore.Store,
	builder RecordBuilder,
	datasets *config.DatasetsConfig,
	interval time.Duration,
	concurrency int,
) Indexer {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &indexer{
		log:         log.WithField("component", "indexer"),
		store:       store,
		builder:     builder,
		root:        datasets.Root,
		suffix:      datasets.RunSuffix,
		interval:    interval,
		concurrency: concurrency,
		done:        make(chan struct{}),
	}
}

// Start launches a background goroutine that runs an immediate indexing
// pass and then ticks at the configured interval.
func (idx *indexer) Start(ctx context.Context) error {
	idx.log.WithFields(logrus.Fields{
		"root":        idx.root,
		"interval":    idx.interval.String(),
		"concurrency": idx.concurrency,
	}).Info("Starting indexer")

	idx.wg.Add(1)

	go func() {
		defer idx.wg.Done()

		idx.runPass(ctx)

		ticker := time.NewTicker(idx.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				idx.runPass(ctx)
			case <-idx.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop signals the indexer goroutine to stop and waits for it.
func (idx *indexer) Stop() error {
	close(idx.done)
	idx.wg.Wait()

	idx.log.Info("Indexer stopped")

	return nil
}

// runPass indexes new and incomplete runs and forgets runs whose
// directory has gone.
func (idx *indexer) runPass(ctx context.Context) {
	start := time.Now()

	if err := idx.indexRoot(ctx); err != nil {
		idx.log.WithError(err).Warn("Indexing pass failed")

		return
	}

	idx.log.WithField("duration", time.Since(start).Round(time.Millisecond)).
		Info("Indexing pass completed")
}

func (idx *indexer) indexRoot(ctx context.Context) error {
	tree := rundir.MakeTree(idx.root, false)
	if tree.Err != "" {
		return fmt.Errorf("listing datasets root: %s", tree.Err)
	}

	dirNames := lo.Map(tree.Dirs(), func(n rundir.Node, _ int) string {
		return n.Base()
	})

	indexedNames, err := idx.store.ListRunNames(ctx)
	if err != nil {
		return fmt.Errorf("listing indexed runs: %w", err)
	}

	incompleteNames, err := idx.store.ListIncompleteRunNames(ctx)
	if err != nil {
		return fmt.Errorf("listing incomplete runs: %w", err)
	}

	indexedSet := lo.SliceToMap(indexedNames, func(n string) (string, struct{}) {
		return n, struct{}{}
	})
	incompleteSet := lo.SliceToMap(incompleteNames, func(n string) (string, struct{}) {
		return n, struct{}{}
	})

	type runTask struct {
		name           string
		alreadyIndexed bool
	}

	var tasks []runTask

	for _, name := range dirNames {
		_, alreadyIndexed := indexedSet[name]
		_, isIncomplete := incompleteSet[name]

		if alreadyIndexed && !isIncomplete {
			continue
		}

		tasks = append(tasks, runTask{name: name, alreadyIndexed: alreadyIndexed})
	}

	removed := lo.Without(indexedNames, dirNames...)

	idx.log.WithFields(logrus.Fields{
		"run_dirs":        len(dirNames),
		"indexed_runs":    len(indexedNames),
		"incomplete_runs": len(incompleteNames),
		"pending":         len(tasks),
		"removed":         len(removed),
	}).Info("Scanning datasets root")

	for _, name := range removed {
		if err := idx.store.DeleteRun(ctx, name); err != nil {
			idx.log.WithError(err).WithField("run", name).
				Warn("Failed to drop vanished run")
		}
	}

	if len(tasks) == 0 {
		return nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)

	var indexed atomic.Int64

	for _, task := range tasks {
		task := task // go 1.21: per-iteration copy for the goroutine below

		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case <-idx.done:
				return nil
			default:
			}

			if err := idx.indexRun(gCtx, task.name); err != nil {
				idx.log.WithError(err).
					WithField("run", task.name).
					Warn("Failed to index run")

				return nil //nolint:nilerr // log and continue
			}

			action := "indexed"
			if task.alreadyIndexed {
				action = "reindexed"
			}

			idx.log.WithField("run", task.name).
				WithField("action", action).
				Debug("Indexed run")

			indexed.Add(1)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("indexing runs: %w", err)
	}

	if count := indexed.Load(); count > 0 {
		idx.log.WithField("count", count).Info("Runs indexed")
	}

	return nil
}

// indexRun builds the record of one run and stores its summary along
// with any parse diagnostics.
func (idx *indexer) indexRun(ctx context.Context, name string) error {
	path := filepath.Join(idx.root, name)

	rec, diags := idx.builder.Build(path)

	summary, err := runinfo.Decode(rec)
	if err != nil {
		idx.log.WithError(err).WithField("run", name).
			Debug("Run record does not decode, indexing raw record only")
	}

	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	rn := rundir.ParseRunName(name, idx.suffix)

	run := &indexstore.Run{
		RunName:     name,
		Path:        path,
		DirDate:     rn.Date,
		DirProject:  rn.Project,
		GTProject:   summary.GTProject,
		FlowCell:    summary.FlowCell,
		RunDate:     summary.RunDate,
		MachineID:   summary.MachineID,
		SeqProtocol: summary.SeqProtocol,
		SampleSize:  summary.SampleSize,
		Complete:    rec.Complete(),
		Diagnostics: len(diags),
		RecordJSON:  string(recordJSON),
	}

	stored := lo.Map(diags, func(d reports.Diagnostic, _ int) *indexstore.Diagnostic {
		return &indexstore.Diagnostic{Source: d.Source, Line: d.Line, Message: d.Message}
	})

	idx.dbMu.Lock()
	defer idx.dbMu.Unlock()

	if err := idx.store.UpsertRun(ctx, run); err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	if err := idx.store.ReplaceDiagnostics(ctx, name, stored); err != nil {
		return fmt.Errorf("storing diagnostics: %w", err)
	}

	return nil
}

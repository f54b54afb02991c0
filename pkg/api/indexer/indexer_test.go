package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cometsong/mbiome-dataplots/pkg/api/indexstore"
	"github.com/cometsong/mbiome-dataplots/pkg/config"
	"github.com/cometsong/mbiome-dataplots/pkg/reports"
	"github.com/cometsong/mbiome-dataplots/pkg/runinfo"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBuilder returns canned records keyed by run directory base name.
type fakeBuilder struct {
	mu      sync.Mutex
	records map[string]runinfo.Record
	calls   map[string]int
}

func (f *fakeBuilder) Build(runDir string) (runinfo.Record, []reports.Diagnostic) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := filepath.Base(runDir)
	f.calls[name]++

	rec, ok := f.records[name]
	if !ok {
		return runinfo.Record{}, []reports.Diagnostic{
			{Source: name, Message: "no file matches"},
		}
	}

	return rec, nil
}

func (f *fakeBuilder) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[name]
}

func setup(t *testing.T) (*indexer, indexstore.Store, *fakeBuilder, string) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	root := t.TempDir()

	store := indexstore.NewStore(log, &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{
			Path: filepath.Join(t.TempDir(), "index.db"),
		},
	})
	require.NoError(t, store.Start(context.Background()))
	t.Cleanup(func() { _ = store.Stop() })

	builder := &fakeBuilder{
		records: map[string]runinfo.Record{
			"190101_P1_FC1_qc": {
				runinfo.KeyProject:  "P1",
				runinfo.KeyFlowCell: "FC1",
				"Run Date":          "2019-01-01",
			},
		},
		calls: make(map[string]int),
	}

	idx := NewIndexer(log, store, builder, &config.DatasetsConfig{
		Root:      root,
		RunSuffix: "_qc",
	}, time.Hour, 2).(*indexer)

	return idx, store, builder, root
}

func TestIndexer_Pass(t *testing.T) {
	idx, store, builder, root := setup(t)
	ctx := context.Background()

	for _, name := range []string{"190101_P1_FC1_qc", "200202_P2_FC2_qc"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, name), 0o755))
	}

	// Plain files in the root are not runs.
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), nil, 0o644))

	require.NoError(t, idx.indexRoot(ctx))

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	complete, err := store.GetRun(ctx, "190101_P1_FC1_qc")
	require.NoError(t, err)
	assert.True(t, complete.Complete)
	assert.Equal(t, "P1", complete.GTProject)
	assert.Equal(t, "FC1", complete.FlowCell)
	assert.Equal(t, "2019-01-01", complete.RunDate)
	assert.Equal(t, "190101", complete.DirDate)
	assert.Contains(t, complete.RecordJSON, `"GT Project":"P1"`)

	partial, err := store.GetRun(ctx, "200202_P2_FC2_qc")
	require.NoError(t, err)
	assert.False(t, partial.Complete)
	assert.Equal(t, "P2", partial.DirProject)
	assert.Equal(t, 1, partial.Diagnostics)

	diags, err := store.ListDiagnostics(ctx, "200202_P2_FC2_qc")
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "no file matches", diags[0].Message)

	// Second pass only revisits the incomplete run.
	require.NoError(t, idx.indexRoot(ctx))
	assert.Equal(t, 1, builder.callCount("190101_P1_FC1_qc"))
	assert.Equal(t, 2, builder.callCount("200202_P2_FC2_qc"))

	// A vanished directory is dropped from the index.
	require.NoError(t, os.Remove(filepath.Join(root, "200202_P2_FC2_qc")))
	require.NoError(t, idx.indexRoot(ctx))

	names, err := store.ListRunNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"190101_P1_FC1_qc"}, names)
}

func TestIndexer_MissingRoot(t *testing.T) {
	idx, _, _, root := setup(t)
	idx.root = filepath.Join(root, "missing")

	err := idx.indexRoot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "There was an error listing")
}

func TestIndexer_StartStop(t *testing.T) {
	idx, store, _, root := setup(t)
	require.NoError(t, os.Mkdir(filepath.Join(root, "190101_P1_FC1_qc"), 0o755))

	require.NoError(t, idx.Start(context.Background()))

	assert.Eventually(t, func() bool {
		names, err := store.ListRunNames(context.Background())

		return err == nil && len(names) == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, idx.Stop())
}

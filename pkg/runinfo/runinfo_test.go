package runinfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cometsong/mbiome-dataplots/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const qcReport = "Project: 18-microbe-028,,,,,\nSample Size: 96,,,,,\n"

const runMetrics = `RunDate,LIMSProjectID,FlowCellID,MachineID
180316,18-microbe-999,BNYL2,M01234
Level,Yield
Read 1,7.5
Read 4,7.4
Total,14.9
`

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return NewBuilder(log, cfg, nil)
}

func writeRun(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	return dir
}

func TestBuild_MergesReportsAndWritesSidecar(t *testing.T) {
	dir := writeRun(t, map[string]string{
		"18-microbe-028_QCreport.csv":       qcReport,
		"Run_Metric_Summary_18-microbe.csv": runMetrics,
	})
	b := newTestBuilder(t)

	rec, _ := b.Build(dir)

	assert.Equal(t, "96", rec.Get("Sample Size"))
	assert.Equal(t, "BNYL2", rec.Get(KeyFlowCell))
	assert.Equal(t, "18-microbe-999", rec.Get(KeyProject), "run metrics override the QC report")
	assert.Equal(t, "7.4", rec.Get("Yield: Read 2"))

	cached, err := ReadSidecar(b.SidecarPath(dir))
	require.NoError(t, err)
	assert.Equal(t, rec, cached)
}

func TestBuild_UsesCompleteSidecar(t *testing.T) {
	dir := writeRun(t, map[string]string{
		"18-microbe-028_QCreport.csv": qcReport,
		"run_info.json":               `{"FlowCell ID": "CACHED", "GT Project": "cached-project", "Reads (M)": 12.5}`,
	})
	b := newTestBuilder(t)

	rec, diags := b.Build(dir)

	assert.Empty(t, diags)
	assert.Equal(t, "CACHED", rec.Get(KeyFlowCell))
	assert.Equal(t, "12.5", rec.Get("Reads (M)"))
	assert.NotContains(t, rec, "Sample Size")
}

func TestBuild_RegeneratesIncompleteSidecar(t *testing.T) {
	tests := []struct {
		name    string
		sidecar string
	}{
		{name: "missing flowcell", sidecar: `{"GT Project": "p"}`},
		{name: "not json", sidecar: `<html>`},
		{name: "json array", sidecar: `[1, 2]`},
		{name: "json null", sidecar: `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeRun(t, map[string]string{
				"Run_Metric_Summary.csv": runMetrics,
				"run_info.json":          tt.sidecar,
			})
			b := newTestBuilder(t)

			rec, _ := b.Build(dir)

			assert.True(t, rec.Complete())
			assert.Equal(t, "BNYL2", rec.Get(KeyFlowCell))
		})
	}
}

func TestBuild_NoReports(t *testing.T) {
	dir := t.TempDir()
	b := newTestBuilder(t)

	rec, diags := b.Build(dir)

	assert.Empty(t, rec)
	assert.Len(t, diags, 2)
	assert.FileExists(t, b.SidecarPath(dir))
}

func TestSidecarRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run_info.json")
	rec := Record{
		KeyFlowCell: "BNYL2",
		KeyProject:  "18-microbe-028",
		"Q30":       91.25,
		"Run Date":  "180316",
	}

	require.NoError(t, WriteSidecar(path, rec, nil))

	got, err := ReadSidecar(path)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	require.NoError(t, WriteSidecar(path, got, nil))

	again, err := ReadSidecar(path)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestDecode(t *testing.T) {
	s, err := Decode(Record{
		KeyFlowCell:         "BNYL2",
		KeyProject:          "18-microbe-028",
		"Q30":               91.2,
		"Sequence Protocol": "16S",
		"Unmapped":          "x",
	})
	require.NoError(t, err)

	assert.Equal(t, "BNYL2", s.FlowCell)
	assert.Equal(t, "18-microbe-028", s.GTProject)
	assert.Equal(t, "91.2", s.Q30)
	assert.Equal(t, "16S", s.SeqProtocol)
}

func TestRecordKeys(t *testing.T) {
	rec := Record{"b": 1, "a": "x"}

	assert.Equal(t, []string{"a", "b"}, rec.Keys())
	assert.Equal(t, "1", rec.Get("b"))
	assert.Equal(t, "", rec.Get("missing"))
}

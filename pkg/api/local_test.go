package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFileServer_IsAllowedPath(t *testing.T) {
	srv := newLocalFileServer(logrus.New(), "/data/runs")

	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{name: "valid simple path", path: "run_a/run_info.json", expected: true},
		{name: "valid nested path", path: "run_a/fastqc/S1_fastqc.html", expected: true},
		{name: "empty path", path: "", expected: false},
		{name: "path traversal", path: "run_a/../../etc/passwd", expected: false},
		{name: "dot dot only", path: "..", expected: false},
		{name: "absolute path", path: "/etc/passwd", expected: false},
		{name: "trailing slash", path: "run_a/fastqc/", expected: false},
		{name: "double slash", path: "run_a//fastqc", expected: false},
		{name: "dot segment", path: "run_a/./fastqc", expected: false},
		{name: "backslash", path: `run_a\x`, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, srv.isAllowedPath(tt.path))
		})
	}
}

func TestAsAttachment(t *testing.T) {
	for name, want := range map[string]bool{
		"Samples_Read_Count.xlsx": true,
		"old.XLS":                 true,
		"Run_Metric_Summary.csv":  true,
		"fastqc_stats.tsv":        true,
		"S1_fastqc.zip":           true,
		"S1_fastqc.html":          false,
		"plot.png":                false,
		"run_info.json":           false,
	} {
		assert.Equal(t, want, asAttachment(name), name)
	}
}

func TestLocalFileServer_ServeFile(t *testing.T) {
	root := t.TempDir()
	runDir := filepath.Join(root, "run_a")
	require.NoError(t, os.MkdirAll(filepath.Join(runDir, "fastqc"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(runDir, "fastqc", "S1_fastqc.html"),
		[]byte("<html>report</html>"), 0o644,
	))
	require.NoError(t, os.WriteFile(
		filepath.Join(runDir, "stats.csv"),
		[]byte("a,b\n1,2\n"), 0o644,
	))

	srv := newLocalFileServer(logrus.New(), root)

	t.Run("serves html inline", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/run_a/fastqc/S1_fastqc.html", nil)
		rec := httptest.NewRecorder()

		require.NoError(t, srv.ServeFile(rec, req, "run_a/fastqc/S1_fastqc.html"))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "report")
		assert.Empty(t, rec.Header().Get("Content-Disposition"))
	})

	t.Run("serves csv as attachment", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/run_a/stats.csv", nil)
		rec := httptest.NewRecorder()

		require.NoError(t, srv.ServeFile(rec, req, "run_a/stats.csv"))
		assert.Equal(t, `attachment; filename=stats.csv`, rec.Header().Get("Content-Disposition"))
		assert.Equal(t, "a,b\n1,2\n", rec.Body.String())
	})

	t.Run("missing file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/run_a/nope.json", nil)
		rec := httptest.NewRecorder()

		err := srv.ServeFile(rec, req, "run_a/nope.json")
		assert.True(t, errors.Is(err, errFileNotFound))
	})

	t.Run("directory is not a file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/run_a/fastqc", nil)
		rec := httptest.NewRecorder()

		err := srv.ServeFile(rec, req, "run_a/fastqc")
		assert.True(t, errors.Is(err, errFileNotFound))
	})

	t.Run("rejects path traversal", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		err := srv.ServeFile(rec, req, "../../etc/passwd")
		assert.True(t, errors.Is(err, errPathNotAllowed))
	})
}

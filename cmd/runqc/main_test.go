package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cometsong/mbiome-dataplots/pkg/rundir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "fastqc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fastqc", "a.html"), []byte("abc"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run_info.json"), []byte("{}"), 0o644))

	var buf bytes.Buffer
	printTree(&buf, rundir.MakeTree(dir, true), 0)

	assert.Equal(t,
		filepath.Base(dir)+"/\n"+
			"  fastqc/\n"+
			"    a.html  3B\n"+
			"  run_info.json  2B\n",
		buf.String())
}

func TestPrintTree_Error(t *testing.T) {
	var buf bytes.Buffer
	printTree(&buf, rundir.MakeTree(filepath.Join(t.TempDir(), "gone"), false), 0)

	assert.Contains(t, buf.String(), "! There was an error listing")
}

func TestWriteTable(t *testing.T) {
	tests := []struct {
		name    string
		records [][]string
		want    string
	}{
		{
			name:    "rows",
			records: [][]string{{"SampleName", "final"}, {"S1", "70"}},
			want:    "# Project p Read Counts (pipe_16S_QC-p-f.csv)\nSampleName,final\nS1,70\n\n",
		},
		{
			name:    "header only",
			records: [][]string{{"SampleName", "final"}},
			want:    "# Project p Read Counts (pipe_16S_QC-p-f.csv)\n# no rows\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			require.NoError(t, writeTable(&buf, "Project p Read Counts", "pipe_16S_QC-p-f.csv", tt.records))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

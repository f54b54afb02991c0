package upload

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cometsong/mbiome-dataplots/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunKey(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		runName string
		rel     string
		want    string
	}{
		{
			name:    "default prefix",
			prefix:  "",
			runName: "190101_P1_FC1_qc",
			rel:     "run_info.json",
			want:    "runs/190101_P1_FC1_qc/run_info.json",
		},
		{
			name:    "custom prefix",
			prefix:  "lab/archive",
			runName: "190101_P1_FC1_qc",
			rel:     "fastqc/S1_fastqc.html",
			want:    "lab/archive/190101_P1_FC1_qc/fastqc/S1_fastqc.html",
		},
		{
			name:    "slashes trimmed",
			prefix:  "/lab/",
			runName: "run123",
			rel:     "a.csv",
			want:    "lab/run123/a.csv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RunKey(tt.prefix, tt.runName, tt.rel))
		})
	}

	assert.Equal(t, "runs/", RunPrefix("", ""))
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantPrefix string
	}{
		{
			name:       "fastqc report",
			path:       "fastqc/S1_fastqc.html",
			wantPrefix: "text/html",
		},
		{
			name:       "no extension",
			path:       "run/README",
			wantPrefix: "application/octet-stream",
		},
		{
			name:       "spike table",
			path:       "pipe_16S_spike_pcts-P-FC.tsv",
			wantPrefix: "text/tab-separated-values",
		},
		{
			name:       "read counts",
			path:       "pipe_16S_QC-P-FC.CSV",
			wantPrefix: "text/csv",
		},
		{
			name:       "run info",
			path:       "run_info.json",
			wantPrefix: "application/json",
		},
		{
			name:       "image",
			path:       "flash_assembly_accuracy_plot.png",
			wantPrefix: "image/png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectContentType(tt.path)
			assert.Contains(t, got, tt.wantPrefix)
		})
	}
}

func TestNewS3Uploader(t *testing.T) {
	_, err := NewS3Uploader(logrus.New(), &config.S3Config{})
	require.Error(t, err)

	u, err := NewS3Uploader(logrus.New(), &config.S3Config{Bucket: "b"})
	require.NoError(t, err)

	// Uploading something that is not a directory fails before any request.
	err = u.Upload(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestIsS3NotFound(t *testing.T) {
	assert.True(t, isS3NotFound(&s3types.NoSuchKey{}))
	assert.True(t, isS3NotFound(errors.New("api error NoSuchKey: gone")))
	assert.False(t, isS3NotFound(errors.New("access denied")))
}

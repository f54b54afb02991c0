package api

import (
	"context"
	"testing"

	"github.com/cometsong/mbiome-dataplots/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Presigner_IsAllowedPath(t *testing.T) {
	presigner, err := newS3Presigner(logrus.New(), &config.S3Config{
		Enabled: true,
		Bucket:  "test-bucket",
		Region:  "us-east-1",
		Prefix:  "archive/runs/",
		PresignedURLs: config.S3PresignedURLConfig{
			Expiry: "1h",
		},
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		key     string
		allowed bool
	}{
		{
			name:    "file in run",
			key:     "archive/runs/run_a/run_info.json",
			allowed: true,
		},
		{
			name:    "nested file in run",
			key:     "archive/runs/run_a/fastqc/S1_fastqc.html",
			allowed: true,
		},
		{
			name:    "bare run prefix",
			key:     "archive/runs/run_a",
			allowed: false,
		},
		{
			name:    "prefix itself",
			key:     "archive/runs",
			allowed: false,
		},
		{
			name:    "different prefix",
			key:     "other/run_a/file.json",
			allowed: false,
		},
		{
			name:    "partial prefix match",
			key:     "archive/runsx/run_a/file.json",
			allowed: false,
		},
		{
			name:    "path traversal",
			key:     "archive/runs/run_a/../../secrets",
			allowed: false,
		},
		{
			name:    "double slash",
			key:     "archive/runs//run_a/file",
			allowed: false,
		},
		{
			name:    "empty",
			key:     "",
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, presigner.isAllowedPath(tt.key))
		})
	}
}

func TestS3Presigner_DefaultPrefix(t *testing.T) {
	presigner, err := newS3Presigner(logrus.New(), &config.S3Config{
		Bucket: "test-bucket",
	})
	require.NoError(t, err)

	assert.Equal(t, config.DefaultS3Prefix, presigner.prefix)
	assert.True(t, presigner.isAllowedPath("runs/run_a/run_info.json"))
}

func TestS3Presigner_BadExpiry(t *testing.T) {
	_, err := newS3Presigner(logrus.New(), &config.S3Config{
		Bucket:        "test-bucket",
		PresignedURLs: config.S3PresignedURLConfig{Expiry: "soon"},
	})
	assert.Error(t, err)
}

func TestS3Presigner_CachesURLs(t *testing.T) {
	// Use a MinIO-style endpoint so presigning works without real AWS creds.
	presigner, err := newS3Presigner(logrus.New(), &config.S3Config{
		Enabled:         true,
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		EndpointURL:     "http://localhost:9000",
		ForcePathStyle:  true,
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		PresignedURLs: config.S3PresignedURLConfig{
			Expiry: "1h",
		},
	})
	require.NoError(t, err)

	ctx := context.Background()

	url1, err := presigner.RunFileURL(ctx, "run_a", "run_info.json")
	require.NoError(t, err)
	assert.Contains(t, url1, "test-bucket/runs/run_a/run_info.json")

	url2, err := presigner.RunFileURL(ctx, "run_a", "run_info.json")
	require.NoError(t, err)
	assert.Equal(t, url1, url2, "expected cached URL to be identical")

	url3, err := presigner.RunFileURL(ctx, "run_a", "fastqc/S1_fastqc.zip")
	require.NoError(t, err)
	assert.NotEqual(t, url1, url3)

	_, err = presigner.RunFileURL(ctx, "run_a", "../../etc/passwd")
	assert.Error(t, err)
}

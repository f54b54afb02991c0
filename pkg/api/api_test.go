package api

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/cometsong/mbiome-dataplots/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLifecycleServer(t *testing.T, listen string) *server {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err)

	cfg.Datasets.Root = t.TempDir()
	cfg.Server.Listen = listen

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	srv, ok := NewServer(log, cfg, "test").(*server)
	require.True(t, ok)

	return srv
}

func TestServer_StopTwice(t *testing.T) {
	s := newLifecycleServer(t, "127.0.0.1:0")

	require.NoError(t, s.Start(context.Background()))

	assert.NotPanics(t, func() {
		assert.NoError(t, s.Stop())
		assert.NoError(t, s.Stop())
	})
}

func TestServer_StartFailureClosesIndexStore(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer func() { _ = busy.Close() }()

	s := newLifecycleServer(t, busy.Addr().String())
	s.cfg.Indexing.Enabled = true
	s.cfg.Indexing.Database = config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: filepath.Join(t.TempDir(), "index.db")},
	}

	err = s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listening on")

	require.NotNil(t, s.indexStore)

	_, err = s.indexStore.ListRuns(context.Background())
	assert.Error(t, err, "index store must be closed after a failed start")

	// The caller may still stop the server it never got running.
	assert.NotPanics(t, func() {
		assert.NoError(t, s.Stop())
	})
}

package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cometsong/mbiome-dataplots/pkg/api/indexer"
	"github.com/cometsong/mbiome-dataplots/pkg/api/indexstore"
	"github.com/cometsong/mbiome-dataplots/pkg/charts"
	"github.com/cometsong/mbiome-dataplots/pkg/config"
	"github.com/cometsong/mbiome-dataplots/pkg/pipeline"
	"github.com/cometsong/mbiome-dataplots/pkg/runinfo"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the dashboard HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log         logrus.FieldLogger
	cfg         *config.Config
	version     string
	builder     *runinfo.Builder
	plots       *pipeline.Plots
	charts      charts.Config
	localServer *localFileServer
	presigner   *s3Presigner
	indexStore  indexstore.Store
	indexer     indexer.Indexer
	httpServer  *http.Server
	wg          sync.WaitGroup
	done        chan struct{}
	stopOnce    sync.Once
	stopErr     error
}

// NewServer creates a new dashboard server. version is reported by the
// environ endpoints.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
	version string,
) Server {
	return &server{
		log:     log.WithField("component", "api"),
		cfg:     cfg,
		version: version,
		done:    make(chan struct{}),
	}
}

// Start prepares the run readers and optional storage backends, then
// starts the HTTP server and the background indexer. When it fails part
// way, whatever was already opened is released again.
func (s *server) Start(ctx context.Context) (err error) {
	defer func() {
		if err == nil {
			return
		}

		if stopErr := s.Stop(); stopErr != nil {
			s.log.WithError(stopErr).Warn("Cleanup after failed start")
		}
	}()

	if err := s.prepare(ctx); err != nil {
		return err
	}

	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithFields(logrus.Fields{
			"listen":   s.cfg.Server.Listen,
			"root":     s.cfg.Server.ApplicationRoot,
			"datasets": s.cfg.Datasets.Root,
		}).Info("Run QC server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	// Start the background indexer AFTER the server is listening so that
	// pages are reachable while the first pass runs.
	if s.indexer != nil {
		if err := s.indexer.Start(ctx); err != nil {
			return fmt.Errorf("starting indexer: %w", err)
		}
	}

	return nil
}

// Stop gracefully shuts down the HTTP server and the indexer. Only the
// first call does any work; later calls return its result.
func (s *server) Stop() error {
	s.stopOnce.Do(func() {
		s.stopErr = s.stop()
	})

	return s.stopErr
}

func (s *server) stop() error {
	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.indexer != nil {
		if err := s.indexer.Stop(); err != nil {
			s.log.WithError(err).Warn("Indexer stop error")
		}
	}

	if s.indexStore != nil {
		if err := s.indexStore.Stop(); err != nil {
			return fmt.Errorf("stopping index store: %w", err)
		}
	}

	s.log.Info("Run QC server stopped")

	return nil
}

// prepare builds everything the router needs without listening.
func (s *server) prepare(ctx context.Context) error {
	owner := s.cfg.Owner()

	s.builder = runinfo.NewBuilder(s.log, s.cfg, owner)
	s.plots = pipeline.NewPlots(s.log, &s.cfg.Pipeline, owner)
	s.charts = charts.FromConfig(s.cfg.Charts)
	s.localServer = newLocalFileServer(s.log, s.cfg.Datasets.Root)

	if s.cfg.Storage.S3.Enabled {
		presigner, err := newS3Presigner(s.log, &s.cfg.Storage.S3)
		if err != nil {
			return fmt.Errorf("initializing s3 presigner: %w", err)
		}

		s.presigner = presigner

		s.log.Info("S3 fallback for missing run files enabled")
	}

	if s.cfg.Indexing.Enabled {
		if err := s.prepareIndexing(ctx); err != nil {
			return fmt.Errorf("preparing indexing: %w", err)
		}
	}

	return nil
}

// prepareIndexing opens the index store and creates the indexer without
// starting its goroutine.
func (s *server) prepareIndexing(ctx context.Context) error {
	interval, err := s.cfg.Indexing.IntervalDuration()
	if err != nil {
		return fmt.Errorf("parsing indexing interval: %w", err)
	}

	s.indexStore = indexstore.NewStore(s.log, &s.cfg.Indexing.Database)

	if err := s.indexStore.Start(ctx); err != nil {
		return fmt.Errorf("starting index store: %w", err)
	}

	s.indexer = indexer.NewIndexer(
		s.log, s.indexStore, s.builder, &s.cfg.Datasets,
		interval, s.cfg.Indexing.Concurrency,
	)

	s.log.Info("Indexing service enabled")

	return nil
}

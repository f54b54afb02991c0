package indexstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cometsong/mbiome-dataplots/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a run is not in the index.
var ErrNotFound = errors.New("run not indexed")

// Store provides persistence for the indexed run summaries.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	UpsertRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, runName string) (*Run, error)
	ListRuns(ctx context.Context) ([]Run, error)
	ListRunNames(ctx context.Context) ([]string, error)
	ListIncompleteRunNames(ctx context.Context) ([]string, error)
	DeleteRun(ctx context.Context, runName string) error

	ReplaceDiagnostics(
		ctx context.Context, runName string, diags []*Diagnostic,
	) error
	ListDiagnostics(ctx context.Context, runName string) ([]Diagnostic, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new index Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "indexstore"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening index database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Run{},
		&Diagnostic{},
	); err != nil {
		return fmt.Errorf("running index migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).
		Info("Index database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// UpsertRun inserts a run or overwrites every column of the existing row
// with the same name. IndexedAt keeps its first value; ReindexedAt is set
// on each overwrite.
func (s *store) UpsertRun(ctx context.Context, run *Run) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Run

		err := tx.Where("run_name = ?", run.RunName).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if run.IndexedAt.IsZero() {
				run.IndexedAt = time.Now().UTC()
			}

			return tx.Create(run).Error
		}

		if err != nil {
			return err
		}

		now := time.Now().UTC()
		run.ID = existing.ID
		run.IndexedAt = existing.IndexedAt
		run.ReindexedAt = &now

		return tx.Save(run).Error
	})
	if err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	return nil
}

// GetRun returns the run with the given name or ErrNotFound.
func (s *store) GetRun(ctx context.Context, runName string) (*Run, error) {
	var run Run

	err := s.db.WithContext(ctx).
		Where("run_name = ?", runName).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("getting run: %w", err)
	}

	return &run, nil
}

// ListRuns returns every indexed run, newest directory name first.
func (s *store) ListRuns(ctx context.Context) ([]Run, error) {
	var runs []Run
	if err := s.db.WithContext(ctx).
		Order("run_name DESC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

// ListRunNames returns just the run names.
func (s *store) ListRunNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).
		Model(&Run{}).
		Pluck("run_name", &names).Error; err != nil {
		return nil, fmt.Errorf("listing run names: %w", err)
	}

	return names, nil
}

// ListIncompleteRunNames returns runs whose record still lacks an
// identifying key, so their reports may have arrived since.
func (s *store) ListIncompleteRunNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).
		Model(&Run{}).
		Where("complete = ?", false).
		Pluck("run_name", &names).Error; err != nil {
		return nil, fmt.Errorf("listing incomplete run names: %w", err)
	}

	return names, nil
}

// DeleteRun removes a run and its diagnostics.
func (s *store) DeleteRun(ctx context.Context, runName string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_name = ?", runName).
			Delete(&Diagnostic{}).Error; err != nil {
			return fmt.Errorf("deleting diagnostics: %w", err)
		}

		if err := tx.Where("run_name = ?", runName).
			Delete(&Run{}).Error; err != nil {
			return fmt.Errorf("deleting run: %w", err)
		}

		return nil
	})
}

// ReplaceDiagnostics swaps the stored diagnostics of a run for diags in a
// single transaction.
func (s *store) ReplaceDiagnostics(
	ctx context.Context, runName string, diags []*Diagnostic,
) error {
	const batchSize = 100

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_name = ?", runName).
			Delete(&Diagnostic{}).Error; err != nil {
			return fmt.Errorf("clearing diagnostics: %w", err)
		}

		if len(diags) == 0 {
			return nil
		}

		for _, d := range diags {
			d.ID = 0
			d.RunName = runName
		}

		if err := tx.CreateInBatches(diags, batchSize).Error; err != nil {
			return fmt.Errorf("inserting diagnostics: %w", err)
		}

		return nil
	})
}

// ListDiagnostics returns the diagnostics recorded for a run.
func (s *store) ListDiagnostics(
	ctx context.Context, runName string,
) ([]Diagnostic, error) {
	var diags []Diagnostic
	if err := s.db.WithContext(ctx).
		Where("run_name = ?", runName).
		Order("id").
		Find(&diags).Error; err != nil {
		return nil, fmt.Errorf("listing diagnostics: %w", err)
	}

	return diags, nil
}

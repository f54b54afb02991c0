package config

import (
	"fmt"
	"time"
)

const (
	// DefaultListen is the default HTTP listen address.
	DefaultListen = ":8080"

	// DefaultFilesRequestsPerMinute limits run file downloads per client IP.
	DefaultFilesRequestsPerMinute = 120

	// DefaultAPIRequestsPerMinute limits JSON API calls per client IP.
	DefaultAPIRequestsPerMinute = 600

	// DefaultChartWidth is the minimum chart width in pixels.
	DefaultChartWidth = 1024

	// DefaultChartHeight is the chart height in pixels.
	DefaultChartHeight = 600

	// DefaultChartBarWidth is the width of one sample bar in pixels.
	DefaultChartBarWidth = 25

	// DefaultChartLabelMaxLen truncates sample labels on charts.
	DefaultChartLabelMaxLen = 40

	// DefaultS3Prefix is the key prefix runs are uploaded under.
	DefaultS3Prefix = "runs"

	// DefaultPresignExpiry is the validity of presigned download URLs.
	DefaultPresignExpiry = "1h"

	// DefaultIndexingInterval is the pause between indexing passes.
	DefaultIndexingInterval = "5m"

	// DefaultIndexingConcurrency bounds the runs summarized in parallel.
	DefaultIndexingConcurrency = 4

	// DefaultIndexSQLitePath is the default index database file.
	DefaultIndexSQLitePath = "runqc-index.db"
)

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen string `yaml:"listen" mapstructure:"listen"`
	// ApplicationRoot mounts every route under a URL prefix, e.g. "/run_qc".
	ApplicationRoot string          `yaml:"application_root,omitempty" mapstructure:"application_root"`
	CORSOrigins     []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit       RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Files   RateLimitTier `yaml:"files,omitempty" mapstructure:"files"`
	API     RateLimitTier `yaml:"api,omitempty" mapstructure:"api"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// StorageConfig contains remote storage settings.
type StorageConfig struct {
	S3 S3Config `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3Config is shared by the run uploader and the download presigner.
type S3Config struct {
	Enabled         bool                 `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string               `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string               `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string               `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string               `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string               `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool                 `yaml:"force_path_style" mapstructure:"force_path_style"`
	Prefix          string               `yaml:"prefix,omitempty" mapstructure:"prefix"`
	StorageClass    string               `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string               `yaml:"acl,omitempty" mapstructure:"acl"`
	PresignedURLs   S3PresignedURLConfig `yaml:"presigned_urls,omitempty" mapstructure:"presigned_urls"`
}

// S3PresignedURLConfig contains presigned URL generation settings.
type S3PresignedURLConfig struct {
	Expiry string `yaml:"expiry,omitempty" mapstructure:"expiry"`
}

// Validate checks the S3 section.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}

	if _, err := c.PresignExpiry(); err != nil {
		return fmt.Errorf("presigned_urls.expiry: %w", err)
	}

	return nil
}

// PresignExpiry parses the presigned URL expiry.
func (c *S3Config) PresignExpiry() (time.Duration, error) {
	return parseDuration(c.PresignedURLs.Expiry, time.Hour)
}

// IndexingConfig configures the background indexer that records a summary
// of every run in a database.
type IndexingConfig struct {
	Enabled     bool           `yaml:"enabled" mapstructure:"enabled"`
	Interval    string         `yaml:"interval,omitempty" mapstructure:"interval"`
	Concurrency int            `yaml:"concurrency,omitempty" mapstructure:"concurrency"`
	Database    DatabaseConfig `yaml:"database" mapstructure:"database"`
}

// Validate checks the indexing section.
func (c *IndexingConfig) Validate() error {
	if _, err := c.IntervalDuration(); err != nil {
		return fmt.Errorf("interval: %w", err)
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" || c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres host and database are required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	return nil
}

// IntervalDuration parses the indexing interval.
func (c *IndexingConfig) IntervalDuration() (time.Duration, error) {
	d, err := parseDuration(c.Interval, 5*time.Minute)
	if err != nil {
		return 0, err
	}

	if d <= 0 {
		return 0, fmt.Errorf("must be positive")
	}

	return d, nil
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

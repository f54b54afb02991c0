package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cometsong/mbiome-dataplots/pkg/fsutil"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is prepended to every environment override, e.g.
	// RUNQC_DATASETS_ROOT overrides datasets.root.
	EnvPrefix = "RUNQC"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultDatasetsRoot is the directory holding one sub-directory per run.
	DefaultDatasetsRoot = "runs"

	// DefaultRunInfoFilename is the cached run summary written into each run.
	DefaultRunInfoFilename = "run_info.json"

	// DefaultRunSuffix is stripped from run directory names for display.
	DefaultRunSuffix = "_qc"

	// DefaultQCReportGlob matches the per-run QC report.
	DefaultQCReportGlob = "*_QCreport*.csv"

	// DefaultRunMetricsGlob matches the instrument run metrics summary.
	DefaultRunMetricsGlob = "Run_Metric_*.csv"

	// DefaultReadCountsGlob matches pipeline read-count tables.
	DefaultReadCountsGlob = "pipe_16S_QC-*.csv"

	// DefaultSpikePctsGlob matches pipeline spike percentage tables.
	DefaultSpikePctsGlob = "pipe_16S_spike_pcts-*.tsv"

	// DefaultSampleNameLength truncates spike sample names.
	DefaultSampleNameLength = 16

	// DefaultReadCountsSort is the read-count column bar charts sort on.
	DefaultReadCountsSort = "nonhost"

	// DefaultSpikesSort is the spike pivot column scatter charts sort on.
	DefaultSpikesSort = "TotalPct"
)

// Config is the root configuration for runqc.
type Config struct {
	Global   GlobalConfig   `yaml:"global" mapstructure:"global"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Datasets DatasetsConfig `yaml:"datasets" mapstructure:"datasets"`
	Reports  ReportsConfig  `yaml:"reports" mapstructure:"reports"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Charts   ChartsConfig   `yaml:"charts" mapstructure:"charts"`
	Storage  StorageConfig  `yaml:"storage" mapstructure:"storage"`
	Indexing IndexingConfig `yaml:"indexing" mapstructure:"indexing"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// FileOwner is an optional "UID:GID" applied to files runqc writes
	// into run directories (sidecars and pivot CSVs).
	FileOwner string `yaml:"file_owner,omitempty" mapstructure:"file_owner"`
}

// DatasetsConfig locates the run directories.
type DatasetsConfig struct {
	Root            string `yaml:"root" mapstructure:"root"`
	RunInfoFilename string `yaml:"run_info_filename" mapstructure:"run_info_filename"`
	RunSuffix       string `yaml:"run_suffix" mapstructure:"run_suffix"`
}

// ReportsConfig holds the file patterns for the lab reports of a run.
type ReportsConfig struct {
	QCReportGlob   string `yaml:"qc_report_glob" mapstructure:"qc_report_glob"`
	RunMetricsGlob string `yaml:"run_metrics_glob" mapstructure:"run_metrics_glob"`
}

// PipelineConfig holds the file patterns and options for pipeline tables.
type PipelineConfig struct {
	ReadCountsGlob   string `yaml:"read_counts_glob" mapstructure:"read_counts_glob"`
	SpikePctsGlob    string `yaml:"spike_pcts_glob" mapstructure:"spike_pcts_glob"`
	SampleNameLength int    `yaml:"sample_name_length" mapstructure:"sample_name_length"`
	ReadCountsSort   string `yaml:"read_counts_sort" mapstructure:"read_counts_sort"`
	SpikesSort       string `yaml:"spikes_sort" mapstructure:"spikes_sort"`
}

// ChartsConfig sizes the rendered charts.
type ChartsConfig struct {
	Width       int `yaml:"width" mapstructure:"width"`
	Height      int `yaml:"height" mapstructure:"height"`
	BarWidth    int `yaml:"bar_width" mapstructure:"bar_width"`
	LabelMaxLen int `yaml:"label_max_len" mapstructure:"label_max_len"`
}

// setDefaults registers a default for every key so that env overrides
// resolve even when a key is absent from all config files.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)
	v.SetDefault("global.file_owner", "")

	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.application_root", "")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.files.requests_per_minute", DefaultFilesRequestsPerMinute)
	v.SetDefault("server.rate_limit.api.requests_per_minute", DefaultAPIRequestsPerMinute)

	v.SetDefault("datasets.root", DefaultDatasetsRoot)
	v.SetDefault("datasets.run_info_filename", DefaultRunInfoFilename)
	v.SetDefault("datasets.run_suffix", DefaultRunSuffix)

	v.SetDefault("reports.qc_report_glob", DefaultQCReportGlob)
	v.SetDefault("reports.run_metrics_glob", DefaultRunMetricsGlob)

	v.SetDefault("pipeline.read_counts_glob", DefaultReadCountsGlob)
	v.SetDefault("pipeline.spike_pcts_glob", DefaultSpikePctsGlob)
	v.SetDefault("pipeline.sample_name_length", DefaultSampleNameLength)
	v.SetDefault("pipeline.read_counts_sort", DefaultReadCountsSort)
	v.SetDefault("pipeline.spikes_sort", DefaultSpikesSort)

	v.SetDefault("charts.width", DefaultChartWidth)
	v.SetDefault("charts.height", DefaultChartHeight)
	v.SetDefault("charts.bar_width", DefaultChartBarWidth)
	v.SetDefault("charts.label_max_len", DefaultChartLabelMaxLen)

	v.SetDefault("storage.s3.enabled", false)
	v.SetDefault("storage.s3.endpoint_url", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.force_path_style", false)
	v.SetDefault("storage.s3.prefix", DefaultS3Prefix)
	v.SetDefault("storage.s3.storage_class", "")
	v.SetDefault("storage.s3.acl", "")
	v.SetDefault("storage.s3.presigned_urls.expiry", DefaultPresignExpiry)

	v.SetDefault("indexing.enabled", false)
	v.SetDefault("indexing.interval", DefaultIndexingInterval)
	v.SetDefault("indexing.concurrency", DefaultIndexingConcurrency)
	v.SetDefault("indexing.database.driver", "sqlite")
	v.SetDefault("indexing.database.sqlite.path", DefaultIndexSQLitePath)
	v.SetDefault("indexing.database.postgres.host", "localhost")
	v.SetDefault("indexing.database.postgres.port", 5432)
	v.SetDefault("indexing.database.postgres.user", "")
	v.SetDefault("indexing.database.postgres.password", "")
	v.SetDefault("indexing.database.postgres.database", "runqc")
	v.SetDefault("indexing.database.postgres.ssl_mode", "disable")
}

// Load reads the given YAML files in order, later files overriding earlier
// ones, then applies RUNQC_* environment overrides. With no paths the
// defaults and environment alone make up the configuration.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.Server.ApplicationRoot = normalizeRoot(cfg.Server.ApplicationRoot)

	return &cfg, nil
}

// normalizeRoot turns "", "/" and "/run_qc/" into "", "" and "/run_qc".
func normalizeRoot(root string) string {
	root = strings.Trim(strings.TrimSpace(root), "/")
	if root == "" {
		return ""
	}

	return "/" + root
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Datasets.Root == "" {
		return fmt.Errorf("datasets.root is required")
	}

	info, err := os.Stat(c.Datasets.Root)
	if err != nil {
		return fmt.Errorf("datasets.root %q: %w", c.Datasets.Root, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("datasets.root %q is not a directory", c.Datasets.Root)
	}

	if c.Datasets.RunInfoFilename == "" {
		return fmt.Errorf("datasets.run_info_filename is required")
	}

	if _, err := fsutil.ParseOwner(c.Global.FileOwner); err != nil {
		return fmt.Errorf("global.file_owner: %w", err)
	}

	if c.Pipeline.SampleNameLength < 0 {
		return fmt.Errorf("pipeline.sample_name_length must not be negative")
	}

	if c.Charts.Width <= 0 || c.Charts.Height <= 0 || c.Charts.BarWidth <= 0 {
		return fmt.Errorf("charts.width, charts.height and charts.bar_width must be positive")
	}

	if err := c.ValidateServer(); err != nil {
		return err
	}

	if c.Storage.S3.Enabled {
		if err := c.Storage.S3.Validate(); err != nil {
			return fmt.Errorf("storage.s3: %w", err)
		}
	}

	if c.Indexing.Enabled {
		if err := c.Indexing.Validate(); err != nil {
			return fmt.Errorf("indexing: %w", err)
		}
	}

	return nil
}

// ValidateServer checks the HTTP server section.
func (c *Config) ValidateServer() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}

	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.Files.RequestsPerMinute <= 0 ||
			c.Server.RateLimit.API.RequestsPerMinute <= 0 {
			return fmt.Errorf("server.rate_limit requests_per_minute must be positive")
		}
	}

	return nil
}

// Owner returns the parsed file owner, nil when unset or invalid.
func (c *Config) Owner() *fsutil.OwnerConfig {
	owner, err := fsutil.ParseOwner(c.Global.FileOwner)
	if err != nil {
		return nil
	}

	return owner
}

// Redacted returns a copy with secrets blanked for display.
func (c *Config) Redacted() Config {
	out := *c

	if out.Storage.S3.SecretAccessKey != "" {
		out.Storage.S3.SecretAccessKey = redacted
	}

	if out.Indexing.Database.Postgres.Password != "" {
		out.Indexing.Database.Postgres.Password = redacted
	}

	return out
}

const redacted = "********"

// parseDuration parses d, falling back to def when d is empty.
func parseDuration(d string, def time.Duration) (time.Duration, error) {
	if d == "" {
		return def, nil
	}

	return time.ParseDuration(d)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/visionbatch/internal/batch"
	"github.com/MeKo-Tech/visionbatch/internal/vision"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// MaxOutputBatchSize is the largest number of responses the service writes per
// output file.
const MaxOutputBatchSize = 100

// Config represents the complete configuration for visionbatch. It is loaded
// from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format" json:"log_format"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Archive ArchiveConfig `mapstructure:"archive" yaml:"archive" json:"archive"`
	Remote  RemoteConfig  `mapstructure:"remote" yaml:"remote" json:"remote"`
	Submit  SubmitConfig  `mapstructure:"submit" yaml:"submit" json:"submit"`
	Report  ReportConfig  `mapstructure:"report" yaml:"report" json:"report"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

// ArchiveConfig locates the local archive.
type ArchiveConfig struct {
	Root string `mapstructure:"root" yaml:"root" json:"root"`
}

// RemoteConfig describes the bucket mirror and the OCR requests.
type RemoteConfig struct {
	Bucket          string   `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
	Feature         string   `mapstructure:"feature" yaml:"feature" json:"feature"`
	LanguageHints   []string `mapstructure:"language_hints" yaml:"language_hints" json:"language_hints"`
	OutputBatchSize int      `mapstructure:"output_batch_size" yaml:"output_batch_size" json:"output_batch_size"`
	NormalizeNames  bool     `mapstructure:"normalize_names" yaml:"normalize_names" json:"normalize_names"`
	Endpoint        string   `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
}

// SubmitConfig controls the submit and wait phases.
type SubmitConfig struct {
	Workers     int           `mapstructure:"workers" yaml:"workers" json:"workers"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout" json:"wait_timeout"`
	DryRun      bool          `mapstructure:"dry_run" yaml:"dry_run" json:"dry_run"`
}

// ReportConfig controls where run results are persisted.
type ReportConfig struct {
	File        string `mapstructure:"file" yaml:"file" json:"file"`
	Format      string `mapstructure:"format" yaml:"format" json:"format"`
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url" json:"database_url"`
}

// MetricsConfig controls the Prometheus textfile output.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile" json:"textfile"`
}

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validLogFormats    = []string{"json", "text"}
	validReportFormats = []string{"text", "json", "csv"}
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "json",
		Remote: RemoteConfig{
			Feature:         string(vision.FeatureDocumentText),
			OutputBatchSize: 1,
		},
		Submit: SubmitConfig{
			Workers: 4,
		},
		Report: ReportConfig{
			Format: "text",
		},
	}
}

// Validate validates the configuration and returns any errors. A missing
// bucket is accepted here; RequireBucket checks it for commands that submit.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		return invalid("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		return invalid("invalid log format: %s (must be one of: %s)", c.LogFormat, strings.Join(validLogFormats, ", "))
	}

	if c.Remote.Bucket != "" && !strings.HasPrefix(c.Remote.Bucket, "gs://") {
		return invalid("invalid bucket: %s (must start with gs://)", c.Remote.Bucket)
	}
	if c.Remote.Bucket == "gs://" {
		return invalid("invalid bucket: %s (bucket name is empty)", c.Remote.Bucket)
	}
	if _, err := vision.ParseFeature(c.Remote.Feature); err != nil {
		return invalid("%v", err)
	}
	if c.Remote.OutputBatchSize < 1 || c.Remote.OutputBatchSize > MaxOutputBatchSize {
		return invalid("invalid output batch size: %d (must be between 1 and %d)",
			c.Remote.OutputBatchSize, MaxOutputBatchSize)
	}
	for _, h := range c.Remote.LanguageHints {
		if strings.TrimSpace(h) == "" {
			return invalid("invalid language hint: empty value")
		}
	}

	if c.Submit.Workers < 1 {
		return invalid("invalid submit workers: %d (must be positive)", c.Submit.Workers)
	}
	if c.Submit.WaitTimeout < 0 {
		return invalid("invalid wait timeout: %v (must not be negative)", c.Submit.WaitTimeout)
	}

	if !slices.Contains(validReportFormats, c.Report.Format) {
		return invalid("invalid report format: %s (must be one of: %s)", c.Report.Format, strings.Join(validReportFormats, ", "))
	}

	return nil
}

// RequireBucket reports an error when no bucket is configured.
func (c *Config) RequireBucket() error {
	if c.Remote.Bucket == "" {
		return invalid("bucket is required (set remote.bucket, VISIONBATCH_REMOTE_BUCKET or --bucket)")
	}
	return nil
}

// ValidateRoot checks that root exists and is a directory.
func ValidateRoot(root string) error {
	if root == "" {
		return invalid("archive root is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: archive root %s: %w", ErrInvalidConfig, root, err)
	}
	if !info.IsDir() {
		return invalid("archive root %s is not a directory", root)
	}
	return nil
}

// ToBatchConfig converts the configuration to the runner's settings.
func (c *Config) ToBatchConfig() *batch.Config {
	// Validate has already rejected unknown features.
	feature, _ := vision.ParseFeature(c.Remote.Feature)

	return &batch.Config{
		Root:            c.Archive.Root,
		Bucket:          c.Remote.Bucket,
		NormalizeNames:  c.Remote.NormalizeNames,
		Feature:         feature,
		LanguageHints:   c.Remote.LanguageHints,
		OutputBatchSize: c.Remote.OutputBatchSize,
		Workers:         c.Submit.Workers,
		WaitTimeout:     c.Submit.WaitTimeout,
		DryRun:          c.Submit.DryRun,
	}
}

// ToVisionConfig returns the client settings for the cloud annotator.
func (c *Config) ToVisionConfig() vision.CloudConfig {
	return vision.CloudConfig{Endpoint: c.Remote.Endpoint}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

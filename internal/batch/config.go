package batch

import (
	"errors"
	"time"

	"github.com/MeKo-Tech/visionbatch/internal/vision"
)

// Config holds all configuration for one submission run.
type Config struct {
	// Archive and remote naming
	Root           string
	Bucket         string
	NormalizeNames bool

	// Request settings
	Feature         vision.Feature
	LanguageHints   []string
	OutputBatchSize int

	// Execution settings
	Workers     int
	WaitTimeout time.Duration
	DryRun      bool

	// Quiet suppresses the per-group lines on the output writer.
	Quiet bool
}

// validate checks the fields the runner depends on. Full validation of user
// input happens in the config package.
func (c *Config) validate() error {
	if c.Root == "" {
		return errors.New("archive root is required")
	}
	if c.Bucket == "" {
		return errors.New("bucket is required")
	}
	if c.OutputBatchSize <= 0 {
		return errors.New("output batch size must be positive")
	}
	if c.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/visionbatch/internal/config"
	"github.com/MeKo-Tech/visionbatch/internal/version"
	"github.com/MeKo-Tech/visionbatch/internal/vision"
)

// configKeyAnnotation marks a flag as an override for a configuration key.
const configKeyAnnotation = "visionbatch_config_key"

// AnnotatorFactory connects to the OCR service.
type AnnotatorFactory func(ctx context.Context, cfg vision.CloudConfig) (vision.Annotator, error)

func newCloudAnnotator(ctx context.Context, cfg vision.CloudConfig) (vision.Annotator, error) {
	return vision.NewCloudAnnotator(ctx, cfg)
}

// Option customizes the command tree, mainly for tests.
type Option func(*app)

// WithAnnotatorFactory replaces the cloud client.
func WithAnnotatorFactory(f AnnotatorFactory) Option {
	return func(a *app) { a.newAnnotator = f }
}

// app is the state shared by one command tree.
type app struct {
	loader       *config.Loader
	cfgFile      string
	config       *config.Config
	logger       *slog.Logger
	newAnnotator AnnotatorFactory
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCommand builds a fresh command tree with its own configuration
// state, so it can be executed repeatedly in one process.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{
		loader:       config.NewLoaderWithViper(viper.New()),
		logger:       slog.Default(),
		newAnnotator: newCloudAnnotator,
	}
	for _, opt := range opts {
		opt(a)
	}

	rootCmd := &cobra.Command{
		Use:   "visionbatch",
		Short: "Submit archive folders to cloud OCR as asynchronous batches",
		Long: `visionbatch walks an archive whose first-level folders are batch groups,
submits one asynchronous OCR batch per group that contains JPEG images, and
waits for every batch to finish.

Images are referenced by their path in a bucket that mirrors the archive, so
the files themselves are never uploaded. Results are written by the service
to <bucket>/<group>/.

Examples:
  visionbatch submit /data/archive --bucket gs://archive-bucket
  visionbatch submit --dry-run
  visionbatch check /data/archive --decode
  visionbatch config show`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, _ := cmd.Flags().GetBool("version")
			if v {
				ver, commit, date := version.Info()
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "visionbatch version %s\n", ver)
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", commit)
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Date: %s\n", date)
				return nil
			}
			return cmd.Help()
		},
		PersistentPreRunE: a.preRun,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "",
		"config file (default is search in ., $HOME, $XDG_CONFIG_HOME/visionbatch, /etc/visionbatch)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "json", "log format (json, text)")
	pf.Bool("version", false, "print version information and exit")
	bindFlag(pf, "verbose", "verbose")
	bindFlag(pf, "log-level", "log_level")
	bindFlag(pf, "log-format", "log_format")

	rootCmd.AddCommand(
		newSubmitCommand(a),
		newCheckCommand(a),
		newConfigCommand(a),
	)

	return rootCmd
}

// bindFlag records which configuration key a flag overrides. The binding is
// applied to viper only for the command that actually runs.
func bindFlag(fs *pflag.FlagSet, flagName, key string) {
	_ = fs.SetAnnotation(flagName, configKeyAnnotation, []string{key})
}

// preRun loads configuration and sets up logging before every subcommand.
// Validation is left to the subcommands so that "config show" works on a
// broken configuration.
func (a *app) preRun(cmd *cobra.Command, _ []string) error {
	v := a.loader.GetViper()
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if keys, ok := f.Annotations[configKeyAnnotation]; ok && len(keys) > 0 {
			if err := v.BindPFlag(keys[0], f); err != nil && bindErr == nil {
				bindErr = err
			}
		}
	})
	if bindErr != nil {
		return fmt.Errorf("failed to bind flags: %w", bindErr)
	}

	cfg, err := a.loader.LoadWithoutValidation(a.cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	a.config = cfg

	a.logger = newLogger(cmd.ErrOrStderr(), cfg)
	slog.SetDefault(a.logger)
	if used := a.loader.GetConfigFileUsed(); used != "" {
		a.logger.Debug("loaded configuration", "file", used)
	}
	return nil
}

// newLogger builds the structured logger. Logs go to stderr so stdout only
// carries the run output.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	var level slog.Level

	// Check verbose flag first for backward compatibility
	if cfg.Verbose {
		level = slog.LevelDebug
	} else {
		switch strings.ToLower(cfg.LogLevel) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// validatedConfig validates the loaded configuration and applies the
// positional root argument.
func (a *app) validatedConfig(args []string) (*config.Config, error) {
	cfg := *a.config
	if len(args) > 0 {
		cfg.Archive.Root = args[0]
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := config.ValidateRoot(cfg.Archive.Root); err != nil {
		return nil, err
	}
	return &cfg, nil
}

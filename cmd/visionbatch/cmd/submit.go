package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/visionbatch/internal/batch"
	"github.com/MeKo-Tech/visionbatch/internal/config"
	"github.com/MeKo-Tech/visionbatch/internal/metrics"
	"github.com/MeKo-Tech/visionbatch/internal/report"
	"github.com/MeKo-Tech/visionbatch/internal/vision"
)

// resultsStreamSuffix is appended to the report path for the incremental
// per-group results stream.
const resultsStreamSuffix = ".jsonl"

func newSubmitCommand(a *app) *cobra.Command {
	submitCmd := &cobra.Command{
		Use:   "submit [root]",
		Short: "Submit one OCR batch per archive group and wait for all of them",
		Long: `Submit enumerates the immediate children of the archive root. Every child
that contains .jpg files (in any letter case, at any depth) becomes one
asynchronous batch request; children without images are skipped.

All batches are submitted first, then the command waits for every one of
them. Each group's outcome is printed as it resolves. The command exits
non-zero if any group failed.

Examples:
  visionbatch submit /data/archive --bucket gs://archive-bucket
  visionbatch submit --workers 8 --wait-timeout 2h --report run.json --report-format json
  visionbatch submit --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: a.runSubmit,
	}

	defaults := config.DefaultConfig()
	f := submitCmd.Flags()

	f.String("bucket", "", "bucket that mirrors the archive root (gs://...)")
	f.String("feature", defaults.Remote.Feature, "OCR feature (document_text_detection, text_detection)")
	f.StringSlice("language-hints", nil, "language hints passed with every image (e.g. lt,en)")
	f.Int("output-batch-size", defaults.Remote.OutputBatchSize, "responses per output file (1-100)")
	f.Bool("normalize-names", defaults.Remote.NormalizeNames, "NFC-normalize paths before building object names (only for buckets that store NFC names)")
	f.String("endpoint", "", "override the OCR service endpoint (host:port)")
	f.Int("workers", defaults.Submit.Workers, "number of operations awaited concurrently")
	f.Duration("wait-timeout", 0, "give up waiting after this long (0 waits indefinitely)")
	f.Bool("dry-run", false, "print the planned submissions without calling the service")
	f.String("report", "", "write the final report to this file; results are also streamed to <file>.jsonl")
	f.String("report-format", defaults.Report.Format, "report format (text, json, csv)")
	f.String("report-db", "", "PostgreSQL URL to record per-group results")
	f.String("metrics-file", "", "write Prometheus metrics to this textfile when done")
	f.Bool("progress", false, "show a progress bar while waiting")
	f.BoolP("quiet", "q", false, "suppress per-group output")

	bindFlag(f, "bucket", "remote.bucket")
	bindFlag(f, "feature", "remote.feature")
	bindFlag(f, "language-hints", "remote.language_hints")
	bindFlag(f, "output-batch-size", "remote.output_batch_size")
	bindFlag(f, "normalize-names", "remote.normalize_names")
	bindFlag(f, "endpoint", "remote.endpoint")
	bindFlag(f, "workers", "submit.workers")
	bindFlag(f, "wait-timeout", "submit.wait_timeout")
	bindFlag(f, "dry-run", "submit.dry_run")
	bindFlag(f, "report", "report.file")
	bindFlag(f, "report-format", "report.format")
	bindFlag(f, "report-db", "report.database_url")
	bindFlag(f, "metrics-file", "metrics.textfile")

	return submitCmd
}

func (a *app) runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := a.validatedConfig(args)
	if err != nil {
		return err
	}
	if err := cfg.RequireBucket(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	quiet, _ := cmd.Flags().GetBool("quiet")
	showProgress, _ := cmd.Flags().GetBool("progress")

	bc := cfg.ToBatchConfig()
	bc.Quiet = quiet

	sink, err := openSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			a.logger.Warn("failed to close result sinks", "error", err)
		}
	}()

	var annotator vision.Annotator
	if !bc.DryRun {
		annotator, err = a.newAnnotator(ctx, cfg.ToVisionConfig())
		if err != nil {
			return fmt.Errorf("failed to create OCR client: %w", err)
		}
		defer func() {
			if err := annotator.Close(); err != nil {
				a.logger.Warn("failed to close OCR client", "error", err)
			}
		}()
	}

	var recorder *metrics.Recorder
	if cfg.Metrics.Textfile != "" {
		recorder = metrics.NewRecorder()
	}

	opts := []batch.Option{
		batch.WithSink(sink),
		batch.WithMetrics(recorder),
		batch.WithOutput(cmd.OutOrStdout()),
		batch.WithLogger(a.logger),
	}
	if showProgress {
		opts = append(opts, batch.WithProgress(batch.NewMultiProgressCallback(
			batch.NewConsoleProgressCallback(cmd.ErrOrStderr(), "waiting: "),
			batch.NewLogProgressCallback(a.logger),
		)))
	}

	a.logger.Info("starting run",
		"root", bc.Root,
		"bucket", bc.Bucket,
		"feature", bc.Feature,
		"workers", bc.Workers,
		"dry_run", bc.DryRun,
	)

	rep, runErr := batch.NewRunner(bc, annotator, opts...).Run(ctx)
	if rep != nil {
		if !quiet {
			rep.PrintStats(cmd.OutOrStdout())
		}
		if cfg.Report.File != "" {
			if err := batch.SaveReport(rep, cfg.Report.Format, cfg.Report.File); err != nil {
				return err
			}
			a.logger.Info("report saved", "file", cfg.Report.File, "format", cfg.Report.Format)
		}
	}
	if recorder != nil {
		if err := recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			a.logger.Warn("failed to write metrics", "file", cfg.Metrics.Textfile, "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if err := rep.Err(); err != nil {
		return fmt.Errorf("%d of %d groups failed: %w", rep.Failed, rep.Submitted(), err)
	}
	return nil
}

// openSinks opens every configured durable sink. An empty MultiSink is
// returned when none is configured.
func openSinks(ctx context.Context, cfg *config.Config) (*report.MultiSink, error) {
	var sinks []batch.ResultSink

	if cfg.Report.File != "" {
		fs, err := report.OpenFileSink(cfg.Report.File + resultsStreamSuffix)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
	}

	if cfg.Report.DatabaseURL != "" {
		ps, err := report.OpenPostgresSink(ctx, cfg.Report.DatabaseURL)
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil, err
		}
		sinks = append(sinks, ps)
	}

	return report.NewMultiSink(sinks...), nil
}

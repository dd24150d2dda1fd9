package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/visionbatch/internal/metrics"
	"github.com/MeKo-Tech/visionbatch/internal/vision"
)

// Runner submits one batch per group and waits for all of them.
type Runner struct {
	config    *Config
	annotator vision.Annotator
	sink      ResultSink
	metrics   *metrics.Recorder
	progress  ProgressCallback
	out       io.Writer
	logger    *slog.Logger
	now       func() time.Time
	newRunID  func() string
}

// Option customizes a Runner.
type Option func(*Runner)

// WithSink persists each group result as it resolves.
func WithSink(s ResultSink) Option {
	return func(r *Runner) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithMetrics records run metrics.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithProgress reports completion progress.
func WithProgress(p ProgressCallback) Option {
	return func(r *Runner) {
		if p != nil {
			r.progress = p
		}
	}
}

// WithOutput sets where human-readable lines are printed.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		if w != nil {
			r.out = w
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRunID fixes the run identifier.
func WithRunID(id string) Option {
	return func(r *Runner) { r.newRunID = func() string { return id } }
}

// NewRunner creates a runner. annotator may be nil for dry runs.
func NewRunner(config *Config, annotator vision.Annotator, opts ...Option) *Runner {
	r := &Runner{
		config:    config,
		annotator: annotator,
		sink:      nopSink{},
		progress:  NoOpProgressCallback{},
		out:       io.Discard,
		logger:    slog.Default(),
		now:       time.Now,
		newRunID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	if config.Quiet {
		r.out = io.Discard
	}
	return r
}

// pending is one submitted, not yet resolved operation.
type pending struct {
	group       string
	requests    int
	op          vision.Operation
	submittedAt time.Time
}

// Run enumerates groups, submits one batch per non-empty group, then waits
// for every operation. Per-group failures are recorded in the report and do
// not stop the run. The returned error is non-nil only for filesystem or
// configuration failures; in that case the report still covers every group
// submitted before the failure.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if err := r.config.validate(); err != nil {
		return nil, fmt.Errorf("invalid batch configuration: %w", err)
	}
	if r.annotator == nil && !r.config.DryRun {
		return nil, errors.New("annotator is required unless dry run is enabled")
	}

	report := &Report{
		RunID:     r.newRunID(),
		Root:      r.config.Root,
		DryRun:    r.config.DryRun,
		StartedAt: r.now(),
	}
	log := r.logger.With("run_id", report.RunID)

	groups, err := ListGroups(r.config.Root)
	if err != nil {
		return r.finish(report), err
	}
	if len(groups) == 0 {
		log.Warn("no groups found", "root", r.config.Root)
	}

	inflight, walkErr := r.submitAll(ctx, log, groups, report)

	_, _ = fmt.Fprintf(r.out, "Waiting for %d operations to complete\n", len(inflight))
	r.waitAll(ctx, log, inflight, report)
	_, _ = fmt.Fprintf(r.out, "Completed waiting for %d operations, done: %d\n", report.Waited, report.Completed)

	return r.finish(report), walkErr
}

// submitAll walks groups sequentially and starts one submission per non-empty
// group. A walk error stops further submissions but what was already submitted
// is still returned for waiting.
func (r *Runner) submitAll(ctx context.Context, log *slog.Logger, groups []Group, report *Report) ([]pending, error) {
	var inflight []pending

	for _, g := range groups {
		images, err := CollectImages(r.config.Root, g, r.config.Bucket, r.config.NormalizeNames)
		if err != nil {
			return inflight, err
		}

		if len(images) == 0 {
			log.Debug("skipping group without images", "group", g.Name)
			r.metrics.ObserveSkipped()
			r.record(ctx, log, report, GroupResult{Group: g.Name, Status: StatusSkipped})
			continue
		}

		sub := BuildSubmission(g, images, r.config)
		_, _ = fmt.Fprintf(r.out, "%s: %d requests\n", g.Name, len(sub.Requests))

		if r.config.DryRun {
			r.metrics.ObserveSubmission("planned", len(sub.Requests))
			r.record(ctx, log, report, GroupResult{
				Group:     g.Name,
				Status:    StatusPlanned,
				Requests:  len(sub.Requests),
				OutputURI: sub.Output.DestinationURI,
			})
			continue
		}

		submittedAt := r.now()
		op, err := r.annotator.Submit(ctx, sub)
		if err != nil {
			r.metrics.ObserveSubmission("failed", len(sub.Requests))
			_, _ = fmt.Fprintf(r.out, "%s: submit failed: %v\n", g.Name, err)
			res := errResult(g.Name, len(sub.Requests), "", err)
			res.SubmittedAt = submittedAt
			r.record(ctx, log, report, res)
			continue
		}

		r.metrics.ObserveSubmission("submitted", len(sub.Requests))
		log.Info("submitted batch",
			"group", g.Name,
			"requests", len(sub.Requests),
			"operation", op.Name(),
			"output_uri", sub.Output.DestinationURI,
		)
		inflight = append(inflight, pending{
			group:       g.Name,
			requests:    len(sub.Requests),
			op:          op,
			submittedAt: submittedAt,
		})
	}

	return inflight, nil
}

// waitAll resolves every operation on a bounded pool. Each goroutine writes
// only its own slot in results.
func (r *Runner) waitAll(ctx context.Context, log *slog.Logger, inflight []pending, report *Report) {
	report.Waited = len(inflight)
	if len(inflight) == 0 {
		return
	}

	waitCtx := ctx
	if r.config.WaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.config.WaitTimeout)
		defer cancel()
	}

	r.progress.OnStart(len(inflight))
	defer r.progress.OnComplete()

	results := make([]GroupResult, len(inflight))
	done := make(chan int, len(inflight))

	var g errgroup.Group
	g.SetLimit(r.config.Workers)

	go func() {
		for i, p := range inflight {
			g.Go(func() error {
				results[i] = r.resolve(waitCtx, p)
				done <- i
				return nil
			})
		}
		_ = g.Wait()
		close(done)
	}()

	// Completion lines, sinks and progress are driven from this goroutine only.
	resolved := 0
	for i := range done {
		resolved++
		res := results[i]
		if res.OK() {
			_, _ = fmt.Fprintf(r.out, "%s: succeeded (%s) output_uri=%s\n", res.Group, res.Operation, res.OutputURI)
		} else {
			_, _ = fmt.Fprintf(r.out, "%s: failed (%s): %s\n", res.Group, res.Operation, res.Error)
			r.progress.OnError(res.Group, res.Err())
		}
		r.record(ctx, log, report, res)
		r.progress.OnProgress(resolved, len(inflight))
	}
}

func (r *Runner) resolve(ctx context.Context, p pending) GroupResult {
	resp, err := p.op.Wait(ctx)
	completedAt := r.now()

	var res GroupResult
	if err != nil {
		res = errResult(p.group, p.requests, p.op.Name(), err)
	} else {
		res = okResult(p.group, p.requests, p.op.Name(), resp.OutputURI)
	}
	res.SubmittedAt = p.submittedAt
	res.CompletedAt = completedAt
	res.Duration = completedAt.Sub(p.submittedAt)

	r.metrics.ObserveOperation(string(res.Status), res.Duration)
	return res
}

func (r *Runner) record(ctx context.Context, log *slog.Logger, report *Report, res GroupResult) {
	report.add(res)
	// A cancelled run context must not prevent the record from being persisted.
	if err := r.sink.Record(context.WithoutCancel(ctx), report.RunID, res); err != nil {
		log.Warn("failed to persist group result", "group", res.Group, "error", err)
	}
}

func (r *Runner) finish(report *Report) *Report {
	report.FinishedAt = r.now()
	report.sortGroups()
	r.metrics.MarkRunFinished(report.FinishedAt)
	return report
}

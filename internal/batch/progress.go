package batch

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressCallback receives completion progress while operations are awaited.
type ProgressCallback interface {
	// OnStart is called once with the number of operations being awaited.
	OnStart(total int)

	// OnProgress is called after each operation resolves.
	OnProgress(current, total int)

	// OnComplete is called when every operation has resolved.
	OnComplete()

	// OnError is called when an operation resolves to a failure.
	OnError(group string, err error)
}

// NoOpProgressCallback implements ProgressCallback but does nothing.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(total int)               {}
func (NoOpProgressCallback) OnProgress(current, total int)   {}
func (NoOpProgressCallback) OnComplete()                     {}
func (NoOpProgressCallback) OnError(group string, err error) {}

// ConsoleProgressCallback draws a one-line status of the operations being
// awaited: a bar, resolved and failed counts, the completion rate and an ETA.
// Remote batches take minutes, so the rate is per minute.
type ConsoleProgressCallback struct {
	mu      sync.Mutex
	w       io.Writer
	prefix  string
	width   int
	every   time.Duration
	now     func() time.Time
	started time.Time
	drawn   time.Time
	failed  int
}

// NewConsoleProgressCallback creates a console progress reporter.
func NewConsoleProgressCallback(w io.Writer, prefix string) *ConsoleProgressCallback {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleProgressCallback{
		w:      w,
		prefix: prefix,
		width:  30,
		every:  100 * time.Millisecond,
		now:    time.Now,
	}
}

// WithUpdateInterval sets the minimum time between redraws. The final
// operation is always drawn.
func (c *ConsoleProgressCallback) WithUpdateInterval(interval time.Duration) *ConsoleProgressCallback {
	c.every = interval
	return c
}

// WithClock replaces the time source.
func (c *ConsoleProgressCallback) WithClock(now func() time.Time) *ConsoleProgressCallback {
	c.now = now
	return c
}

func (c *ConsoleProgressCallback) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.started = c.now()
	c.drawn = time.Time{}
	c.failed = 0
	_, _ = fmt.Fprintf(c.w, "%sawaiting %d operations\n", c.prefix, total)
}

func (c *ConsoleProgressCallback) OnProgress(current, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if total <= 0 || (now.Sub(c.drawn) < c.every && current < total) {
		return
	}
	c.drawn = now

	filled := c.width * current / total
	line := fmt.Sprintf("\r%s[%s%s] %d/%d resolved, %d failed",
		c.prefix, strings.Repeat("#", filled), strings.Repeat("-", c.width-filled),
		current, total, c.failed)

	elapsed := now.Sub(c.started)
	if elapsed > 0 && current > 0 {
		line += fmt.Sprintf(", %.1f/min", float64(current)/elapsed.Minutes())
		if current < total {
			line += ", ETA " + estimateRemaining(elapsed, current, total).String()
		}
	}
	_, _ = io.WriteString(c.w, line)
}

func (c *ConsoleProgressCallback) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = fmt.Fprintf(c.w, "\n%sall operations resolved, %d failed, in %v\n",
		c.prefix, c.failed, c.now().Sub(c.started).Round(time.Millisecond))
}

func (c *ConsoleProgressCallback) OnError(group string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failed++
	_, _ = fmt.Fprintf(c.w, "\n%s%s failed: %v\n", c.prefix, group, err)
}

// estimateRemaining extrapolates the time left from the average time per
// resolved operation, rounded to the second.
func estimateRemaining(elapsed time.Duration, current, total int) time.Duration {
	perOp := elapsed / time.Duration(current)
	return (perOp * time.Duration(total-current)).Round(time.Second)
}

// LogProgressCallback reports the wait through slog: start and end at info,
// each resolved operation at debug, failures at error.
type LogProgressCallback struct {
	mu      sync.Mutex
	logger  *slog.Logger
	now     func() time.Time
	started time.Time
	failed  int
}

// NewLogProgressCallback creates a log-based progress reporter.
func NewLogProgressCallback(logger *slog.Logger) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{logger: logger, now: time.Now}
}

func (l *LogProgressCallback) OnStart(total int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.started = l.now()
	l.failed = 0
	l.logger.Info("awaiting operations", "total", total)
}

func (l *LogProgressCallback) OnProgress(current, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := l.now().Sub(l.started)
	attrs := []any{
		"resolved", current,
		"total", total,
		"failed", l.failed,
		"elapsed", elapsed.Round(time.Millisecond),
	}
	if current > 0 && current < total {
		attrs = append(attrs, "eta", estimateRemaining(elapsed, current, total))
	}
	l.logger.Debug("operation resolved", attrs...)
}

func (l *LogProgressCallback) OnComplete() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Info("all operations resolved",
		"failed", l.failed,
		"elapsed", l.now().Sub(l.started).Round(time.Millisecond),
	)
}

func (l *LogProgressCallback) OnError(group string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failed++
	l.logger.Error("operation failed", "group", group, "error", err)
}

// MultiProgressCallback fans out to several callbacks.
type MultiProgressCallback struct {
	callbacks []ProgressCallback
}

// NewMultiProgressCallback combines callbacks.
func NewMultiProgressCallback(callbacks ...ProgressCallback) *MultiProgressCallback {
	return &MultiProgressCallback{callbacks: callbacks}
}

func (m *MultiProgressCallback) OnStart(total int) {
	for _, cb := range m.callbacks {
		cb.OnStart(total)
	}
}

func (m *MultiProgressCallback) OnProgress(current, total int) {
	for _, cb := range m.callbacks {
		cb.OnProgress(current, total)
	}
}

func (m *MultiProgressCallback) OnComplete() {
	for _, cb := range m.callbacks {
		cb.OnComplete()
	}
}

func (m *MultiProgressCallback) OnError(group string, err error) {
	for _, cb := range m.callbacks {
		cb.OnError(group, err)
	}
}

package batch

import "context"

// ResultSink persists group results as they resolve, so completed groups are
// recorded even if the run is interrupted later.
type ResultSink interface {
	Record(ctx context.Context, runID string, res GroupResult) error
	Close() error
}

type nopSink struct{}

func (nopSink) Record(context.Context, string, GroupResult) error { return nil }
func (nopSink) Close() error                                     { return nil }

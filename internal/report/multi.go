package report

import (
	"context"
	"errors"

	"github.com/MeKo-Tech/visionbatch/internal/batch"
)

// MultiSink fans results out to several sinks. A failing sink does not stop
// the others from recording.
type MultiSink struct {
	sinks []batch.ResultSink
}

// NewMultiSink combines sinks, skipping nil entries.
func NewMultiSink(sinks ...batch.ResultSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of combined sinks.
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

func (m *MultiSink) Record(ctx context.Context, runID string, res batch.GroupResult) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, runID, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

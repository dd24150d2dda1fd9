// Package mock provides an in-memory vision.Annotator for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MeKo-Tech/visionbatch/internal/vision"
)

// Annotator records every submission and resolves operations from per-group
// scripts. Groups without a script succeed with an output URI equal to the
// submission's destination.
type Annotator struct {
	mu          sync.Mutex
	submissions []*vision.Submission
	submitErr   map[string]error
	waitErr     map[string]error
	block       map[string]chan struct{}
	closed      bool
	seq         int
}

// NewAnnotator creates an empty mock.
func NewAnnotator() *Annotator {
	return &Annotator{
		submitErr: make(map[string]error),
		waitErr:   make(map[string]error),
		block:     make(map[string]chan struct{}),
	}
}

// FailSubmit makes Submit return err for the group.
func (a *Annotator) FailSubmit(group string, err error) *Annotator {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitErr[group] = err
	return a
}

// FailWait makes the group's operation resolve to err.
func (a *Annotator) FailWait(group string, err error) *Annotator {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.waitErr[group] = err
	return a
}

// Hold keeps the group's operation in flight until the returned func is called
// or the wait context ends.
func (a *Annotator) Hold(group string) (release func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := make(chan struct{})
	a.block[group] = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Submit records s and returns an operation for it.
func (a *Annotator) Submit(_ context.Context, s *vision.Submission) (vision.Operation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.submissions = append(a.submissions, s)
	if err := a.submitErr[s.Group]; err != nil {
		return nil, err
	}
	a.seq++
	return &operation{
		name:   fmt.Sprintf("operations/mock-%d", a.seq),
		output: s.Output.DestinationURI,
		err:    a.waitErr[s.Group],
		block:  a.block[s.Group],
	}, nil
}

// Close marks the annotator closed.
func (a *Annotator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// Submissions returns a copy of everything submitted so far.
func (a *Annotator) Submissions() []*vision.Submission {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*vision.Submission(nil), a.submissions...)
}

// Closed reports whether Close was called.
func (a *Annotator) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

type operation struct {
	name   string
	output string
	err    error
	block  chan struct{}
}

func (o *operation) Name() string { return o.name }

func (o *operation) Wait(ctx context.Context) (*vision.Response, error) {
	if o.block != nil {
		select {
		case <-o.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if o.err != nil {
		return nil, o.err
	}
	return &vision.Response{OutputURI: o.output}, nil
}

package batch

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"
)

// Status is the terminal state of one group in a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped" // no matching images, nothing submitted
	StatusPlanned   Status = "planned" // dry run
)

// GroupResult is the outcome of one group: Ok with an output URI, or Err with
// the cause.
type GroupResult struct {
	Group       string        `json:"group"`
	Status      Status        `json:"status"`
	Requests    int           `json:"requests"`
	Operation   string        `json:"operation,omitempty"`
	OutputURI   string        `json:"output_uri,omitempty"`
	Error       string        `json:"error,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at,omitzero"`
	CompletedAt time.Time     `json:"completed_at,omitzero"`
	Duration    time.Duration `json:"duration_ns,omitempty"`

	err error
}

// OK reports whether the group did not fail.
func (r GroupResult) OK() bool {
	return r.Status != StatusFailed
}

// Err returns the failure cause, or nil.
func (r GroupResult) Err() error {
	if r.Status != StatusFailed {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	return errors.New(r.Error)
}

func okResult(group string, requests int, operation, outputURI string) GroupResult {
	return GroupResult{
		Group:     group,
		Status:    StatusSucceeded,
		Requests:  requests,
		Operation: operation,
		OutputURI: outputURI,
	}
}

func errResult(group string, requests int, operation string, err error) GroupResult {
	return GroupResult{
		Group:     group,
		Status:    StatusFailed,
		Requests:  requests,
		Operation: operation,
		Error:     err.Error(),
		err:       err,
	}
}

// GroupError ties a failure to the group it came from.
type GroupError struct {
	Group string
	Err   error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("group %s: %v", e.Group, e.Err)
}

func (e *GroupError) Unwrap() error {
	return e.Err
}

// Report is the structured outcome of a run.
type Report struct {
	RunID      string        `json:"run_id"`
	Root       string        `json:"root"`
	DryRun     bool          `json:"dry_run"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Groups     []GroupResult `json:"groups"`

	// Waited counts operations handed to the waiter. Completed counts those that
	// resolved successfully.
	Waited    int `json:"waited"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Requests  int `json:"requests"`
}

// Submitted returns the number of groups that produced a submission.
func (r *Report) Submitted() int {
	n := 0
	for _, g := range r.Groups {
		if g.Status != StatusSkipped {
			n++
		}
	}
	return n
}

// Err joins every group failure, or returns nil when none failed.
func (r *Report) Err() error {
	var errs []error
	for _, g := range r.Groups {
		if err := g.Err(); err != nil {
			errs = append(errs, &GroupError{Group: g.Group, Err: err})
		}
	}
	return errors.Join(errs...)
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) add(res GroupResult) {
	r.Groups = append(r.Groups, res)
	switch res.Status {
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
	case StatusSucceeded:
		r.Completed++
	}
	r.Requests += res.Requests
}

func (r *Report) sortGroups() {
	sort.SliceStable(r.Groups, func(i, j int) bool {
		return r.Groups[i].Group < r.Groups[j].Group
	})
}

// PrintStats prints run statistics.
func (r *Report) PrintStats(w io.Writer) {
	_, _ = fmt.Fprintf(w, "\nRun Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Run ID: %s\n", r.RunID)
	_, _ = fmt.Fprintf(w, "  Groups submitted: %d\n", r.Submitted())
	_, _ = fmt.Fprintf(w, "  Groups skipped: %d\n", r.Skipped)
	_, _ = fmt.Fprintf(w, "  Requests: %d\n", r.Requests)
	_, _ = fmt.Fprintf(w, "  Succeeded: %d\n", r.Completed)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", r.Failed)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", r.Duration().Round(time.Millisecond))
}

package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Submissions(t *testing.T) {
	r := NewRecorder()

	r.ObserveSubmission("submitted", 3)
	r.ObserveSubmission("submitted", 2)
	r.ObserveSubmission("failed", 4)

	assert.InDelta(t, 2, promtestutil.ToFloat64(r.submissionsTotal.WithLabelValues("submitted")), 0)
	assert.InDelta(t, 1, promtestutil.ToFloat64(r.submissionsTotal.WithLabelValues("failed")), 0)
	assert.InDelta(t, 5, promtestutil.ToFloat64(r.imagesTotal), 0)
	assert.InDelta(t, 2, promtestutil.ToFloat64(r.operationsPending), 0)
}

func TestRecorder_Operations(t *testing.T) {
	r := NewRecorder()

	r.ObserveSubmission("submitted", 1)
	r.ObserveSubmission("submitted", 1)
	r.ObserveOperation("succeeded", 2*time.Second)
	r.ObserveOperation("failed", time.Second)
	r.ObserveSkipped()

	assert.InDelta(t, 1, promtestutil.ToFloat64(r.operationsTotal.WithLabelValues("succeeded")), 0)
	assert.InDelta(t, 1, promtestutil.ToFloat64(r.operationsTotal.WithLabelValues("failed")), 0)
	assert.InDelta(t, 0, promtestutil.ToFloat64(r.operationsPending), 0)
	assert.InDelta(t, 1, promtestutil.ToFloat64(r.groupsSkipped), 0)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveSubmission("submitted", 1)
		r.ObserveSkipped()
		r.ObserveOperation("succeeded", time.Second)
		r.MarkRunFinished(time.Now())
	})
	assert.NotNil(t, r.Gatherer())
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.ObserveSubmission("submitted", 7)
	r.MarkRunFinished(time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "visionbatch.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "visionbatch_images_total 7")
	assert.Contains(t, out, `visionbatch_submissions_total{status="submitted"} 1`)
	assert.Contains(t, out, "visionbatch_last_run_timestamp_seconds 1.7e+09")
}

func TestRecorder_WriteTextfileBadPath(t *testing.T) {
	r := NewRecorder()
	err := r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write metrics textfile")
}

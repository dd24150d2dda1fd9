package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/visionbatch/internal/config"
	"github.com/MeKo-Tech/visionbatch/internal/report"
	"github.com/MeKo-Tech/visionbatch/internal/testutil"
	"github.com/MeKo-Tech/visionbatch/internal/vision/mock"
)

func sampleArchive(t *testing.T) string {
	t.Helper()
	return testutil.BuildArchive(t, map[string]string{
		"g1/x.jpg":     "x",
		"g1/y.JPG":     "y",
		"g1/notes.txt": "n",
		"g2/":          "",
	})
}

func TestSubmitCommand(t *testing.T) {
	isolate(t)
	root := sampleArchive(t)
	annotator := mock.NewAnnotator()

	stdout, _, err := run(t, annotator, "submit", root, "--bucket", "gs://archive")
	require.NoError(t, err)

	subs := annotator.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "g1", subs[0].Group)
	assert.Len(t, subs[0].Requests, 2)
	assert.Equal(t, "gs://archive/g1/", subs[0].Output.DestinationURI)
	assert.True(t, annotator.Closed())

	assert.Contains(t, stdout, "g1: 2 requests\n")
	assert.Contains(t, stdout, "Waiting for 1 operations to complete\n")
	assert.Contains(t, stdout, "Completed waiting for 1 operations, done: 1\n")
	assert.Contains(t, stdout, "Run Statistics:")
}

func TestSubmitCommand_GroupFailureExitsNonZero(t *testing.T) {
	isolate(t)
	root := sampleArchive(t)
	annotator := mock.NewAnnotator().FailWait("g1", errors.New("bucket not readable"))

	stdout, _, err := run(t, annotator, "submit", root, "--bucket", "gs://archive")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 groups failed")
	assert.Contains(t, stdout, "g1: failed")
}

func TestSubmitCommand_RequiresBucket(t *testing.T) {
	isolate(t)
	root := sampleArchive(t)

	_, _, err := run(t, nil, "submit", root)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "bucket is required")
}

func TestSubmitCommand_RootMustBeDirectory(t *testing.T) {
	isolate(t)

	_, _, err := run(t, nil, "submit", filepath.Join(t.TempDir(), "missing"), "--bucket", "gs://archive")
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestSubmitCommand_InvalidFlagValue(t *testing.T) {
	isolate(t)
	root := sampleArchive(t)

	_, _, err := run(t, nil, "submit", root, "--bucket", "gs://archive", "--output-batch-size", "0")
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestSubmitCommand_DryRun(t *testing.T) {
	isolate(t)
	root := sampleArchive(t)
	annotator := mock.NewAnnotator()

	stdout, _, err := run(t, annotator, "submit", root, "--bucket", "gs://archive", "--dry-run")
	require.NoError(t, err)
	assert.Empty(t, annotator.Submissions())
	assert.False(t, annotator.Closed(), "no client is created for a dry run")
	assert.Contains(t, stdout, "g1: 2 requests")
	assert.Contains(t, stdout, "Waiting for 0 operations to complete")
}

func TestSubmitCommand_ReportsAndMetrics(t *testing.T) {
	isolate(t)
	root := sampleArchive(t)
	out := t.TempDir()
	reportPath := filepath.Join(out, "run.csv")
	metricsPath := filepath.Join(out, "visionbatch.prom")

	_, _, err := run(t, nil, "submit", root,
		"--bucket", "gs://archive",
		"--report", reportPath,
		"--report-format", "csv",
		"--metrics-file", metricsPath,
		"--language-hints", "lt,en",
		"--quiet",
	)
	require.NoError(t, err)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "run_id,group,status"))
	assert.Contains(t, string(data), ",g1,succeeded,2,")

	entries, malformed, err := report.ReadFile(reportPath + resultsStreamSuffix)
	require.NoError(t, err)
	assert.Empty(t, malformed)
	require.Len(t, entries, 2)

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "visionbatch_images_total 2")
}

func TestSubmitCommand_LanguageHintsAndConfigFile(t *testing.T) {
	isolate(t)
	root := sampleArchive(t)
	cfgPath := filepath.Join(t.TempDir(), "vb.yaml")
	content := "remote:\n  bucket: gs://from-file\n  language_hints: [lt]\n  feature: text_detection\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))
	annotator := mock.NewAnnotator()

	_, _, err := run(t, annotator, "--config", cfgPath, "submit", root, "--bucket", "gs://from-flag")
	require.NoError(t, err)

	subs := annotator.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "gs://from-flag/g1/", subs[0].Output.DestinationURI)
	assert.Equal(t, []string{"lt"}, subs[0].Requests[0].LanguageHints)
	assert.Equal(t, "text_detection", string(subs[0].Requests[0].Feature))
}

func TestSubmitCommand_EnvironmentBucket(t *testing.T) {
	isolate(t)
	root := sampleArchive(t)
	t.Setenv("VISIONBATCH_REMOTE_BUCKET", "gs://from-env")
	t.Setenv("VISIONBATCH_ARCHIVE_ROOT", root)
	annotator := mock.NewAnnotator()

	_, _, err := run(t, annotator, "submit")
	require.NoError(t, err)
	require.Len(t, annotator.Submissions(), 1)
	assert.Equal(t, "gs://from-env/g1/x.jpg", annotator.Submissions()[0].Requests[0].ImageURI)
}

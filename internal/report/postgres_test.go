package report

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/visionbatch/internal/batch"
)

const testDatabaseEnv = "VISIONBATCH_TEST_DATABASE_URL"

func openTestPostgres(t *testing.T) *PostgresSink {
	t.Helper()

	url := os.Getenv(testDatabaseEnv)
	if url == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sink, err := OpenPostgresSink(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	return sink
}

func TestOpenPostgresSink_RequiresURL(t *testing.T) {
	_, err := OpenPostgresSink(context.Background(), "")
	require.Error(t, err)
}

func TestPostgresSink_RecordAndResults(t *testing.T) {
	sink := openTestPostgres(t)
	ctx := context.Background()
	runID := uuid.NewString()

	submitted := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, sink.Record(ctx, runID, batch.GroupResult{
		Group:       "b",
		Status:      batch.StatusFailed,
		Requests:    3,
		Operation:   "operations/2",
		Error:       errors.New("denied").Error(),
		SubmittedAt: submitted,
		CompletedAt: submitted.Add(2 * time.Second),
		Duration:    2 * time.Second,
	}))
	require.NoError(t, sink.Record(ctx, runID, batch.GroupResult{Group: "a", Status: batch.StatusSkipped}))

	results, err := sink.Results(ctx, runID)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "a", results[0].Group)
	assert.Equal(t, batch.StatusSkipped, results[0].Status)
	assert.True(t, results[0].SubmittedAt.IsZero())

	assert.Equal(t, "b", results[1].Group)
	assert.Equal(t, batch.StatusFailed, results[1].Status)
	assert.Equal(t, "denied", results[1].Error)
	assert.Equal(t, 3, results[1].Requests)
	assert.True(t, submitted.Equal(results[1].SubmittedAt))
	assert.Equal(t, 2*time.Second, results[1].Duration)
}

func TestPostgresSink_UpsertsPerGroup(t *testing.T) {
	sink := openTestPostgres(t)
	ctx := context.Background()
	runID := uuid.NewString()

	require.NoError(t, sink.Record(ctx, runID, batch.GroupResult{Group: "g", Status: batch.StatusFailed, Error: "timeout"}))
	require.NoError(t, sink.Record(ctx, runID, batch.GroupResult{Group: "g", Status: batch.StatusSucceeded, OutputURI: "gs://b/g/"}))

	results, err := sink.Results(ctx, runID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, batch.StatusSucceeded, results[0].Status)
	assert.Empty(t, results[0].Error)
}

package support

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/visionbatch/cmd/visionbatch/cmd"
	"github.com/MeKo-Tech/visionbatch/internal/vision"
	"github.com/MeKo-Tech/visionbatch/internal/vision/mock"
)

// TestContext holds the state for one scenario.
type TestContext struct {
	// Command execution state
	LastCommand  string
	LastOutput   string
	LastStderr   string
	LastError    error
	LastDuration time.Duration

	// Test environment
	TempDir     string
	ArchiveDir  string
	Annotator   *mock.Annotator
	releaseHold []func()
	envBackup   map[string]*string
}

// NewTestContext creates a context with an empty archive and a fresh mock
// service.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "visionbatch-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	archive := filepath.Join(tempDir, "archive")
	if err := os.MkdirAll(archive, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &TestContext{
		TempDir:    tempDir,
		ArchiveDir: archive,
		Annotator:  mock.NewAnnotator(),
		envBackup:  make(map[string]*string),
	}, nil
}

// Cleanup releases held operations, restores the environment and removes
// every file created by the scenario.
func (testCtx *TestContext) Cleanup() error {
	for _, release := range testCtx.releaseHold {
		release()
	}
	for name, value := range testCtx.envBackup {
		if value == nil {
			_ = os.Unsetenv(name)
		} else {
			_ = os.Setenv(name, *value)
		}
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err)
	}
	return nil
}

// SetEnv sets an environment variable for the rest of the scenario.
func (testCtx *TestContext) SetEnv(name, value string) {
	if _, saved := testCtx.envBackup[name]; !saved {
		if old, ok := os.LookupEnv(name); ok {
			testCtx.envBackup[name] = &old
		} else {
			testCtx.envBackup[name] = nil
		}
	}
	_ = os.Setenv(name, value)
}

// expand replaces {archive} and {tmp} placeholders in step arguments.
func (testCtx *TestContext) expand(s string) string {
	return strings.NewReplacer(
		"{archive}", testCtx.ArchiveDir,
		"{tmp}", testCtx.TempDir,
	).Replace(s)
}

// runCommand executes the command line in-process against the mock service.
func (testCtx *TestContext) runCommand(command string) error {
	command = testCtx.expand(command)
	args := strings.Fields(command)
	if len(args) > 0 && args[0] == "visionbatch" {
		args = args[1:]
	}

	root := cmd.NewRootCommand(cmd.WithAnnotatorFactory(
		func(context.Context, vision.CloudConfig) (vision.Annotator, error) {
			return testCtx.Annotator, nil
		},
	))

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	start := time.Now()
	testCtx.LastError = root.Execute()
	testCtx.LastDuration = time.Since(start)
	testCtx.LastCommand = command
	testCtx.LastOutput = stdout.String()
	testCtx.LastStderr = stderr.String()
	return nil
}

package cli_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/visionbatch/test/integration/cli/support"
)

// testContext holds the global test context.
var testContext *support.TestContext

// featuresDir is resolved before TestMain leaves the package directory.
var featuresDir string

// InitializeScenario sets up the test context for each scenario.
func InitializeScenario(sc *godog.ScenarioContext) {
	var err error
	testContext, err = support.NewTestContext()
	if err != nil {
		panic(fmt.Sprintf("Failed to create test context: %v", err))
	}

	testContext.RegisterCommonSteps(sc)
	testContext.RegisterArchiveSteps(sc)

	sc.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if cleanupErr := testContext.Cleanup(); cleanupErr != nil {
			fmt.Printf("Warning: Failed to cleanup test context: %v\n", cleanupErr)
		}
		return ctx, nil
	})
}

// TestFeatures runs the Godog test suite.
func TestFeatures(t *testing.T) {
	entries, err := os.ReadDir(featuresDir)
	if err != nil {
		t.Fatalf("failed to read features directory: %v", err)
	}

	format := os.Getenv("GODOG_FORMAT")
	if format == "" {
		format = "pretty"
	}
	tags := os.Getenv("GODOG_TAGS")

	found := false
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".feature") {
			continue
		}
		found = true
		featurePath := filepath.Join(featuresDir, e.Name())

		t.Run(e.Name(), func(t *testing.T) {
			suite := godog.TestSuite{
				ScenarioInitializer: InitializeScenario,
				Options: &godog.Options{
					Format:   format,
					Tags:     tags,
					Paths:    []string{featurePath},
					TestingT: t,
				},
			}

			if suite.Run() != 0 {
				t.Fatalf("non-zero status returned for %s", featurePath)
			}
		})
	}

	if !found {
		t.Fatalf("no .feature files found in features/")
	}
}

// TestMain runs the suite from an empty working directory with a private
// HOME so that no user configuration or .env file leaks into scenarios.
func TestMain(m *testing.M) {
	abs, err := filepath.Abs("features")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to resolve features directory: %v\n", err)
		os.Exit(1)
	}
	featuresDir = abs

	home, err := os.MkdirTemp("", "visionbatch-home-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create home directory: %v\n", err)
		os.Exit(1)
	}
	_ = os.Setenv("HOME", home)
	_ = os.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	if err := os.Chdir(home); err != nil {
		fmt.Fprintf(os.Stderr, "failed to change directory: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	_ = os.RemoveAll(home)
	os.Exit(code)
}

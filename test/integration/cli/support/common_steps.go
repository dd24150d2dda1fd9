package support

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/visionbatch/internal/report"
)

// iRunTheCommand executes a visionbatch command line.
func (testCtx *TestContext) iRunTheCommand(command string) error {
	return testCtx.runCommand(command)
}

// theEnvironmentVariableIsSet sets an environment variable for the scenario.
func (testCtx *TestContext) theEnvironmentVariableIsSet(name, value string) error {
	testCtx.SetEnv(name, testCtx.expand(value))
	return nil
}

// theCommandShouldSucceed verifies the command returned no error.
func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastError != nil {
		return fmt.Errorf("command %q failed: %v\nstdout:\n%s\nstderr:\n%s",
			testCtx.LastCommand, testCtx.LastError, testCtx.LastOutput, testCtx.LastStderr)
	}
	return nil
}

// theCommandShouldFail verifies the command returned an error.
func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastError == nil {
		return fmt.Errorf("command %q succeeded unexpectedly\nstdout:\n%s", testCtx.LastCommand, testCtx.LastOutput)
	}
	return nil
}

// theErrorShouldMention verifies the error text.
func (testCtx *TestContext) theErrorShouldMention(text string) error {
	if testCtx.LastError == nil {
		return fmt.Errorf("expected an error mentioning %q, got none", text)
	}
	if !strings.Contains(strings.ToLower(testCtx.LastError.Error()), strings.ToLower(text)) {
		return fmt.Errorf("error %q does not mention %q", testCtx.LastError, text)
	}
	return nil
}

// theOutputShouldContain verifies stdout contains text.
func (testCtx *TestContext) theOutputShouldContain(text string) error {
	text = testCtx.expand(text)
	if !strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output does not contain %q\noutput:\n%s", text, testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldNotContain verifies stdout does not contain text.
func (testCtx *TestContext) theOutputShouldNotContain(text string) error {
	text = testCtx.expand(text)
	if strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output unexpectedly contains %q\noutput:\n%s", text, testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldBeEmpty verifies nothing was printed to stdout.
func (testCtx *TestContext) theOutputShouldBeEmpty() error {
	if strings.TrimSpace(testCtx.LastOutput) != "" {
		return fmt.Errorf("expected empty output, got:\n%s", testCtx.LastOutput)
	}
	return nil
}

// theServiceShouldHaveReceivedSubmissions verifies the submission count.
func (testCtx *TestContext) theServiceShouldHaveReceivedSubmissions(n int) error {
	if got := len(testCtx.Annotator.Submissions()); got != n {
		return fmt.Errorf("expected %d submissions, got %d", n, got)
	}
	return nil
}

// theSubmissionForShouldReference verifies the image URIs sent for a group.
func (testCtx *TestContext) theSubmissionForShouldReference(group string, table *godog.Table) error {
	for _, sub := range testCtx.Annotator.Submissions() {
		if sub.Group != group {
			continue
		}
		var got []string
		for _, r := range sub.Requests {
			got = append(got, r.ImageURI)
		}
		var want []string
		for _, row := range table.Rows {
			want = append(want, row.Cells[0].Value)
		}
		slices.Sort(got)
		slices.Sort(want)
		if !slices.Equal(got, want) {
			return fmt.Errorf("submission for %s references %v, want %v", group, got, want)
		}
		return nil
	}
	return fmt.Errorf("no submission for group %s", group)
}

// theSubmissionForShouldWriteTo verifies the output destination of a group.
func (testCtx *TestContext) theSubmissionForShouldWriteTo(group, uri string) error {
	for _, sub := range testCtx.Annotator.Submissions() {
		if sub.Group == group {
			if sub.Output.DestinationURI != uri {
				return fmt.Errorf("submission for %s writes to %s, want %s", group, sub.Output.DestinationURI, uri)
			}
			return nil
		}
	}
	return fmt.Errorf("no submission for group %s", group)
}

// theFileShouldContain verifies a file was written with the given text.
func (testCtx *TestContext) theFileShouldContain(path, text string) error {
	path = testCtx.expand(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !strings.Contains(string(data), text) {
		return fmt.Errorf("%s does not contain %q:\n%s", path, text, data)
	}
	return nil
}

// theResultsStreamShouldRecordGroups verifies the incremental results file.
func (testCtx *TestContext) theResultsStreamShouldRecordGroups(path string, n int) error {
	entries, malformed, err := report.ReadFile(testCtx.expand(path))
	if err != nil {
		return err
	}
	if len(malformed) > 0 {
		return fmt.Errorf("malformed results lines: %v", malformed)
	}
	if len(entries) != n {
		return fmt.Errorf("expected %d recorded groups, got %d", n, len(entries))
	}
	return nil
}

// RegisterCommonSteps registers command execution and verification steps.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunTheCommand)
	sc.Step(`^the environment variable "([^"]*)" is "([^"]*)"$`, testCtx.theEnvironmentVariableIsSet)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the output should be empty$`, testCtx.theOutputShouldBeEmpty)
	sc.Step(`^the service should have received (\d+) submissions?$`, testCtx.theServiceShouldHaveReceivedSubmissions)
	sc.Step(`^the submission for "([^"]*)" should reference:$`, testCtx.theSubmissionForShouldReference)
	sc.Step(`^the submission for "([^"]*)" should write to "([^"]*)"$`, testCtx.theSubmissionForShouldWriteTo)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
	sc.Step(`^the results stream "([^"]*)" should record (\d+) groups?$`, testCtx.theResultsStreamShouldRecordGroups)
}

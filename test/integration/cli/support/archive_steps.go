package support

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
)

// writeArchiveFile creates rel under the archive. .jpg files get a real
// encoded image so decoding checks pass.
func (testCtx *TestContext) writeArchiveFile(rel string) error {
	path := filepath.Join(testCtx.ArchiveDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(rel), ".jpg") {
		img := imaging.New(16, 16, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		return imaging.Save(img, path)
	}
	return os.WriteFile(path, []byte(rel), 0o600)
}

// anArchiveGroupContaining creates a group folder with the listed files.
func (testCtx *TestContext) anArchiveGroupContaining(group, files string) error {
	for _, f := range strings.Split(files, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if err := testCtx.writeArchiveFile(group + "/" + f); err != nil {
			return fmt.Errorf("failed to create %s/%s: %w", group, f, err)
		}
	}
	return nil
}

// anEmptyArchiveGroup creates a group folder with no files.
func (testCtx *TestContext) anEmptyArchiveGroup(group string) error {
	return os.MkdirAll(filepath.Join(testCtx.ArchiveDir, group), 0o750)
}

// theArchiveContains creates every path listed in the table's first column.
func (testCtx *TestContext) theArchiveContains(table *godog.Table) error {
	for i, row := range table.Rows {
		if i == 0 && row.Cells[0].Value == "path" {
			continue
		}
		rel := row.Cells[0].Value
		if strings.HasSuffix(rel, "/") {
			if err := os.MkdirAll(filepath.Join(testCtx.ArchiveDir, rel), 0o750); err != nil {
				return err
			}
			continue
		}
		if err := testCtx.writeArchiveFile(rel); err != nil {
			return err
		}
	}
	return nil
}

// aCorruptImage writes a .jpg file that cannot be decoded.
func (testCtx *TestContext) aCorruptImage(rel string) error {
	path := filepath.Join(testCtx.ArchiveDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("not an image"), 0o600)
}

// theServiceFailsSubmissionsFor makes Submit fail for a group.
func (testCtx *TestContext) theServiceFailsSubmissionsFor(group, message string) error {
	testCtx.Annotator.FailSubmit(group, errors.New(message))
	return nil
}

// theServiceFailsOperationsFor makes a group's operation resolve to an error.
func (testCtx *TestContext) theServiceFailsOperationsFor(group, message string) error {
	testCtx.Annotator.FailWait(group, errors.New(message))
	return nil
}

// theServiceNeverFinishes keeps a group's operation pending.
func (testCtx *TestContext) theServiceNeverFinishes(group string) error {
	testCtx.releaseHold = append(testCtx.releaseHold, testCtx.Annotator.Hold(group))
	return nil
}

// RegisterArchiveSteps registers archive and service setup steps.
func (testCtx *TestContext) RegisterArchiveSteps(sc *godog.ScenarioContext) {
	sc.Step(`^an archive group "([^"]*)" containing "([^"]*)"$`, testCtx.anArchiveGroupContaining)
	sc.Step(`^an empty archive group "([^"]*)"$`, testCtx.anEmptyArchiveGroup)
	sc.Step(`^the archive contains:$`, testCtx.theArchiveContains)
	sc.Step(`^a corrupt image "([^"]*)"$`, testCtx.aCorruptImage)
	sc.Step(`^the service rejects the submission for "([^"]*)" with "([^"]*)"$`, testCtx.theServiceFailsSubmissionsFor)
	sc.Step(`^the service fails the operation for "([^"]*)" with "([^"]*)"$`, testCtx.theServiceFailsOperationsFor)
	sc.Step(`^the service never finishes the operation for "([^"]*)"$`, testCtx.theServiceNeverFinishes)
}

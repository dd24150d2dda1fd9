// Package testutil builds archive fixtures for tests.
package testutil

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// GetProjectRoot returns the project root directory by finding go.mod.
func GetProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("failed to get caller information")
	}
	dir := filepath.Dir(filename)

	// Walk up the directory tree to find go.mod
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("could not find go.mod file starting from %s", filepath.Dir(filename))
}

// CreateTempDir creates a temporary directory for testing.
func CreateTempDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

// WriteFile writes data to root/rel, creating parent directories.
func WriteFile(t *testing.T, root, rel string, data []byte) string {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// WriteJPEG encodes a real w x h JPEG at root/rel. The encoder is picked from
// the extension, so rel must end in .jpg or .jpeg.
func WriteJPEG(t *testing.T, root, rel string, w, h int) string {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	img := imaging.New(w, h, color.NRGBA{R: 240, G: 240, B: 235, A: 255})
	require.NoError(t, imaging.Save(img, path))
	return path
}

// MakeDir creates root/rel and returns its path.
func MakeDir(t *testing.T, root, rel string) string {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(path, 0o750))
	return path
}

// BuildArchive lays out files under a fresh temp root. Keys ending in "/"
// become empty directories; other keys become files holding their value.
func BuildArchive(t *testing.T, layout map[string]string) string {
	t.Helper()

	root := CreateTempDir(t)
	for rel, content := range layout {
		if strings.HasSuffix(rel, "/") {
			MakeDir(t, root, rel)
			continue
		}
		WriteFile(t, root, rel, []byte(content))
	}
	return root
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// DirExists checks if a directory exists.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

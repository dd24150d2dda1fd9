package preflight

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/visionbatch/internal/batch"
	"github.com/MeKo-Tech/visionbatch/internal/testutil"
)

func TestDecodeImage(t *testing.T) {
	root := testutil.CreateTempDir(t)
	path := testutil.WriteJPEG(t, root, "p.jpg", 64, 32)

	img, meta, err := DecodeImage(path)
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, 64, meta.Width)
	assert.Equal(t, 32, meta.Height)
	assert.InDelta(t, 2.0, meta.AspectRatio, 1e-9)
	assert.Positive(t, meta.SizeBytes)
	assert.NoError(t, ValidateImageConstraints(meta))
}

func TestDecodeImage_Errors(t *testing.T) {
	_, _, err := DecodeImage("")
	var ie *ImageError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "stat", ie.Operation)

	root := testutil.CreateTempDir(t)
	bad := testutil.WriteFile(t, root, "bad.jpg", []byte("not a jpeg"))
	_, meta, err := DecodeImage(bad)
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "decode", ie.Operation)
	assert.Equal(t, int64(10), meta.SizeBytes)

	_, _, err = DecodeImage(filepath.Join(root, "missing.jpg"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateImageConstraints(t *testing.T) {
	tests := []struct {
		name    string
		meta    ImageMetadata
		wantErr string
	}{
		{"ok", ImageMetadata{SizeBytes: 1024, Width: 100, Height: 100}, ""},
		{"dimensions unknown", ImageMetadata{SizeBytes: 1024}, ""},
		{"empty", ImageMetadata{}, "file is empty"},
		{"too many bytes", ImageMetadata{SizeBytes: MaxFileBytes + 1}, "file too large"},
		{"at byte limit", ImageMetadata{SizeBytes: MaxFileBytes}, ""},
		{"too many pixels", ImageMetadata{SizeBytes: 1, Width: 10000, Height: 8000}, "image too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImageConstraints(tt.meta)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCheck(t *testing.T) {
	root := testutil.BuildArchive(t, map[string]string{
		"g2/":          "",
		"g3/empty.jpg": "",
		"g1/notes.txt": "n",
	})
	testutil.WriteJPEG(t, root, "g1/x.jpg", 16, 16)
	testutil.WriteJPEG(t, root, "g1/sub/y.jpg", 16, 16)
	testutil.WriteFile(t, root, "g1/broken.JPG", []byte("garbage"))

	opts := Options{Bucket: "gs://b", Workers: 2}

	summary, err := Check(context.Background(), root, opts, nil)
	require.NoError(t, err)
	require.Len(t, summary.Groups, 3)

	g1 := summary.Groups[0]
	assert.Equal(t, "g1", g1.Name)
	assert.Equal(t, 3, g1.Images)
	assert.Empty(t, g1.Issues, "size-only check does not decode")
	assert.Equal(t, 0, summary.Groups[1].Images)
	require.Len(t, summary.Groups[2].Issues, 1)
	assert.Equal(t, "g3/empty.jpg", summary.Groups[2].Issues[0].Path)

	assert.Equal(t, 4, summary.Images())
	assert.Equal(t, 2, summary.NonEmpty())
	assert.Equal(t, 1, summary.Issues())

	opts.Decode = true
	summary, err = Check(context.Background(), root, opts, nil)
	require.NoError(t, err)
	require.Len(t, summary.Groups[0].Issues, 1)
	assert.Equal(t, "g1/broken.JPG", summary.Groups[0].Issues[0].Path)
	assert.Equal(t, "gs://b/g1/broken.JPG", summary.Groups[0].Issues[0].URI)
	assert.Equal(t, 2, summary.Issues())

	var buf bytes.Buffer
	summary.Print(&buf)
	assert.Contains(t, buf.String(), "g1: 3 images")
	assert.Contains(t, buf.String(), "groups=3 submittable=2 images=4 issues=2")
}

func TestCheck_MissingRoot(t *testing.T) {
	_, err := Check(context.Background(), filepath.Join(t.TempDir(), "nope"), Options{}, nil)
	require.Error(t, err)
}

func TestCheck_Cancelled(t *testing.T) {
	root := testutil.BuildArchive(t, map[string]string{"g/a.jpg": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Check(ctx, root, Options{}, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCheckGroup_CancelledIsNotClean(t *testing.T) {
	root := testutil.CreateTempDir(t)
	images := []batch.ImageRef{
		{Path: testutil.WriteJPEG(t, root, "g/a.jpg", 8, 8), RelPath: "g/a.jpg"},
		{Path: testutil.WriteJPEG(t, root, "g/b.jpg", 8, 8), RelPath: "g/b.jpg"},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gs, err := checkGroup(ctx, "g", images, true, 1)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, gs.Issues)
	assert.Zero(t, gs.Bytes)

	gs, err = checkGroup(context.Background(), "g", images, true, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, gs.Images)
	assert.Positive(t, gs.Bytes)
}

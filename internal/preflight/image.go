// Package preflight inspects an archive before submission.
package preflight

import (
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
)

const (
	// MaxFileBytes is the largest image file the service accepts.
	MaxFileBytes = 20 << 20

	// MaxPixels is the largest decoded image the service accepts.
	MaxPixels = 75_000_000
)

// ImageError ties a failure to the step that produced it.
type ImageError struct {
	Operation string
	Err       error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image error in %s: %v", e.Operation, e.Err)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

// ImageMetadata captures lightweight file and pixel information.
type ImageMetadata struct {
	Path        string
	SizeBytes   int64
	Width       int
	Height      int
	AspectRatio float64
}

// Pixels returns the decoded pixel count.
func (m ImageMetadata) Pixels() int {
	return m.Width * m.Height
}

// StatImage reads only file metadata.
func StatImage(path string) (ImageMetadata, error) {
	if path == "" {
		return ImageMetadata{}, &ImageError{Operation: "stat", Err: errors.New("empty path")}
	}
	fi, err := os.Stat(path)
	if err != nil {
		return ImageMetadata{}, &ImageError{Operation: "stat", Err: err}
	}
	return ImageMetadata{Path: path, SizeBytes: fi.Size()}, nil
}

// DecodeImage fully decodes the image and fills in its dimensions.
func DecodeImage(path string) (image.Image, ImageMetadata, error) {
	meta, err := StatImage(path)
	if err != nil {
		return nil, meta, err
	}

	img, err := imaging.Open(path)
	if err != nil {
		return nil, meta, &ImageError{Operation: "decode", Err: err}
	}

	b := img.Bounds()
	meta.Width = b.Dx()
	meta.Height = b.Dy()
	if meta.Height > 0 {
		meta.AspectRatio = float64(meta.Width) / float64(meta.Height)
	}
	return img, meta, nil
}

// ValidateImageConstraints checks metadata against the service limits.
// Dimensions are only checked when known.
func ValidateImageConstraints(meta ImageMetadata) error {
	if meta.SizeBytes == 0 {
		return &ImageError{Operation: "validate", Err: errors.New("file is empty")}
	}
	if meta.SizeBytes > MaxFileBytes {
		return &ImageError{
			Operation: "validate",
			Err:       fmt.Errorf("file too large: %d bytes > %d", meta.SizeBytes, MaxFileBytes),
		}
	}
	if meta.Pixels() > MaxPixels {
		return &ImageError{
			Operation: "validate",
			Err:       fmt.Errorf("image too large: %dx%d exceeds %d pixels", meta.Width, meta.Height, MaxPixels),
		}
	}
	return nil
}

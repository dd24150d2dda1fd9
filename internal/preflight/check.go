package preflight

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/visionbatch/internal/batch"
)

// Options controls an archive check.
type Options struct {
	Bucket         string
	NormalizeNames bool
	// Decode fully decodes every image instead of only checking file sizes.
	Decode  bool
	Workers int
}

// Issue is a single problem found with one image.
type Issue struct {
	Path string
	URI  string
	Err  error
}

// GroupSummary describes what would be submitted for one group.
type GroupSummary struct {
	Name   string
	Images int
	Bytes  int64
	Issues []Issue
}

// Summary is the outcome of checking a whole archive.
type Summary struct {
	Groups []GroupSummary
}

// Images returns the number of images across all groups.
func (s *Summary) Images() int {
	n := 0
	for _, g := range s.Groups {
		n += g.Images
	}
	return n
}

// Issues returns the number of problems across all groups.
func (s *Summary) Issues() int {
	n := 0
	for _, g := range s.Groups {
		n += len(g.Issues)
	}
	return n
}

// NonEmpty returns the number of groups that would be submitted.
func (s *Summary) NonEmpty() int {
	n := 0
	for _, g := range s.Groups {
		if g.Images > 0 {
			n++
		}
	}
	return n
}

// Print writes a per-group listing followed by a totals line.
func (s *Summary) Print(w io.Writer) {
	for _, g := range s.Groups {
		_, _ = fmt.Fprintf(w, "%s: %d images, %d bytes\n", g.Name, g.Images, g.Bytes)
		for _, is := range g.Issues {
			_, _ = fmt.Fprintf(w, "  %s: %v\n", is.Path, is.Err)
		}
	}
	_, _ = fmt.Fprintf(w, "groups=%d submittable=%d images=%d issues=%d\n",
		len(s.Groups), s.NonEmpty(), s.Images(), s.Issues())
}

// Check enumerates groups the same way a submission would and inspects every
// image. Image problems are collected, not returned; the error is only for
// failures to read the archive itself.
func Check(ctx context.Context, root string, opts Options, logger *slog.Logger) (*Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	groups, err := batch.ListGroups(root)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Groups: make([]GroupSummary, 0, len(groups))}
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		images, err := batch.CollectImages(root, g, opts.Bucket, opts.NormalizeNames)
		if err != nil {
			return summary, err
		}

		gs, err := checkGroup(ctx, g.Name, images, opts.Decode, workers)
		if err != nil {
			return summary, fmt.Errorf("check of group %s interrupted: %w", g.Name, err)
		}
		logger.Debug("checked group", "group", g.Name, "images", gs.Images, "issues", len(gs.Issues))
		summary.Groups = append(summary.Groups, gs)
	}
	return summary, nil
}

// checkGroup inspects every image of one group. It fails if ctx ends before
// all images were inspected, so a partial group never reads as clean.
func checkGroup(ctx context.Context, name string, images []batch.ImageRef, decode bool, workers int) (GroupSummary, error) {
	gs := GroupSummary{Name: name, Images: len(images)}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for _, ref := range images {
		eg.Go(func() error {
			if egCtx.Err() != nil {
				return egCtx.Err()
			}
			meta, err := inspect(ref.Path, decode)

			mu.Lock()
			defer mu.Unlock()
			gs.Bytes += meta.SizeBytes
			if err != nil {
				gs.Issues = append(gs.Issues, Issue{Path: ref.RelPath, URI: ref.URI, Err: err})
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return gs, err
	}

	sort.Slice(gs.Issues, func(i, j int) bool { return gs.Issues[i].Path < gs.Issues[j].Path })
	return gs, nil
}

func inspect(path string, decode bool) (ImageMetadata, error) {
	var (
		meta ImageMetadata
		err  error
	)
	if decode {
		_, meta, err = DecodeImage(path)
	} else {
		meta, err = StatImage(path)
	}
	if err != nil {
		return meta, err
	}
	return meta, ValidateImageConstraints(meta)
}

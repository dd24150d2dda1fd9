package batch

import (
	"golang.org/x/text/unicode/norm"

	"github.com/MeKo-Tech/visionbatch/internal/vision"
)

// BuildSubmission packages all requests for one group. images must be
// non-empty; callers skip empty groups before getting here.
func BuildSubmission(g Group, images []ImageRef, cfg *Config) *vision.Submission {
	name := g.Name
	if cfg.NormalizeNames {
		name = norm.NFC.String(name)
	}

	feature := cfg.Feature
	if feature == "" {
		feature = vision.FeatureDocumentText
	}

	var hints []string
	if len(cfg.LanguageHints) > 0 {
		hints = append([]string(nil), cfg.LanguageHints...)
	}

	requests := make([]vision.Request, 0, len(images))
	for _, img := range images {
		requests = append(requests, vision.Request{
			ImageURI:      img.URI,
			Feature:       feature,
			LanguageHints: hints,
		})
	}

	return &vision.Submission{
		Group:    g.Name,
		Requests: requests,
		Output: vision.OutputConfig{
			DestinationURI: OutputURI(cfg.Bucket, name),
			BatchSize:      cfg.OutputBatchSize,
		},
	}
}

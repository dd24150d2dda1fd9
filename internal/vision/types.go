// Package vision describes asynchronous batch annotation against a remote OCR
// service and provides the Google Cloud Vision implementation.
package vision

import (
	"context"
	"fmt"
	"strings"
)

// Feature selects the kind of text detection the service runs per image.
type Feature string

const (
	// FeatureDocumentText is dense document OCR (the default).
	FeatureDocumentText Feature = "document_text_detection"
	// FeatureText is sparse text detection.
	FeatureText Feature = "text_detection"
)

// ParseFeature maps a configuration string onto a Feature.
func ParseFeature(s string) (Feature, error) {
	switch Feature(strings.ToLower(strings.TrimSpace(s))) {
	case FeatureDocumentText, "":
		return FeatureDocumentText, nil
	case FeatureText:
		return FeatureText, nil
	default:
		return "", fmt.Errorf("unknown feature: %s", s)
	}
}

// Request is a single image reference plus the requested feature.
type Request struct {
	ImageURI      string   `json:"image_uri"`
	Feature       Feature  `json:"feature"`
	LanguageHints []string `json:"language_hints,omitempty"`
}

// OutputConfig tells the service where and how to write results.
type OutputConfig struct {
	DestinationURI string `json:"destination_uri"`
	BatchSize      int    `json:"batch_size"`
}

// Submission is one asynchronous batch request for one group.
type Submission struct {
	Group    string       `json:"group"`
	Requests []Request    `json:"requests"`
	Output   OutputConfig `json:"output"`
}

// Response is the resolved payload of a finished operation.
type Response struct {
	OutputURI string `json:"output_uri"`
}

func (r *Response) String() string {
	if r == nil {
		return "<nil>"
	}
	return "output_uri=" + r.OutputURI
}

// Operation is a handle on an in-flight submission. Wait resolves exactly once
// and blocks until the remote operation finishes or ctx is done.
type Operation interface {
	Name() string
	Wait(ctx context.Context) (*Response, error)
}

// Annotator starts asynchronous batch submissions.
type Annotator interface {
	Submit(ctx context.Context, s *Submission) (Operation, error)
	Close() error
}

package vision

import (
	"context"
	"errors"
	"fmt"

	visionapi "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"github.com/MeKo-Tech/visionbatch/internal/version"
)

// CloudConfig configures the Google Cloud Vision client.
type CloudConfig struct {
	// Endpoint overrides the default API endpoint when set.
	Endpoint string
}

// CloudAnnotator submits batches to Google Cloud Vision. Credentials are
// resolved by the client library (Application Default Credentials).
type CloudAnnotator struct {
	client *visionapi.ImageAnnotatorClient
}

// NewCloudAnnotator dials the Vision API.
func NewCloudAnnotator(ctx context.Context, cfg CloudConfig) (*CloudAnnotator, error) {
	opts := []option.ClientOption{option.WithUserAgent(version.UserAgent())}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := visionapi.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create image annotator client: %w", err)
	}
	return &CloudAnnotator{client: client}, nil
}

// Submit starts an AsyncBatchAnnotateImages long-running operation.
func (a *CloudAnnotator) Submit(ctx context.Context, s *Submission) (Operation, error) {
	if s == nil || len(s.Requests) == 0 {
		return nil, errors.New("empty submission")
	}
	op, err := a.client.AsyncBatchAnnotateImages(ctx, toProto(s))
	if err != nil {
		return nil, fmt.Errorf("async batch annotate %s: %w", s.Group, err)
	}
	return &cloudOperation{op: op}, nil
}

// Close releases the underlying gRPC connection.
func (a *CloudAnnotator) Close() error {
	return a.client.Close()
}

type cloudOperation struct {
	op *visionapi.AsyncBatchAnnotateImagesOperation
}

func (o *cloudOperation) Name() string {
	return o.op.Name()
}

func (o *cloudOperation) Wait(ctx context.Context) (*Response, error) {
	resp, err := o.op.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return &Response{OutputURI: resp.GetOutputConfig().GetGcsDestination().GetUri()}, nil
}

func toProto(s *Submission) *visionpb.AsyncBatchAnnotateImagesRequest {
	reqs := make([]*visionpb.AnnotateImageRequest, 0, len(s.Requests))
	for _, r := range s.Requests {
		req := &visionpb.AnnotateImageRequest{
			Image: &visionpb.Image{
				Source: &visionpb.ImageSource{ImageUri: r.ImageURI},
			},
			Features: []*visionpb.Feature{{Type: featureType(r.Feature)}},
		}
		if len(r.LanguageHints) > 0 {
			req.ImageContext = &visionpb.ImageContext{LanguageHints: r.LanguageHints}
		}
		reqs = append(reqs, req)
	}

	return &visionpb.AsyncBatchAnnotateImagesRequest{
		Requests: reqs,
		OutputConfig: &visionpb.OutputConfig{
			GcsDestination: &visionpb.GcsDestination{Uri: s.Output.DestinationURI},
			BatchSize:      int32(s.Output.BatchSize), //nolint:gosec // validated to 1..100
		},
	}
}

func featureType(f Feature) visionpb.Feature_Type {
	if f == FeatureText {
		return visionpb.Feature_TEXT_DETECTION
	}
	return visionpb.Feature_DOCUMENT_TEXT_DETECTION
}

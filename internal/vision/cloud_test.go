package vision

import (
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToProto(t *testing.T) {
	s := &Submission{
		Group: "g1",
		Requests: []Request{
			{ImageURI: "gs://bucket/g1/x.jpg", Feature: FeatureDocumentText},
			{ImageURI: "gs://bucket/g1/y.JPG", Feature: FeatureText, LanguageHints: []string{"lt"}},
		},
		Output: OutputConfig{DestinationURI: "gs://bucket/g1/", BatchSize: 1},
	}

	req := toProto(s)
	require.Len(t, req.GetRequests(), 2)

	first := req.GetRequests()[0]
	assert.Equal(t, "gs://bucket/g1/x.jpg", first.GetImage().GetSource().GetImageUri())
	require.Len(t, first.GetFeatures(), 1)
	assert.Equal(t, visionpb.Feature_DOCUMENT_TEXT_DETECTION, first.GetFeatures()[0].GetType())
	assert.Nil(t, first.GetImageContext())

	second := req.GetRequests()[1]
	assert.Equal(t, visionpb.Feature_TEXT_DETECTION, second.GetFeatures()[0].GetType())
	assert.Equal(t, []string{"lt"}, second.GetImageContext().GetLanguageHints())

	assert.Equal(t, "gs://bucket/g1/", req.GetOutputConfig().GetGcsDestination().GetUri())
	assert.Equal(t, int32(1), req.GetOutputConfig().GetBatchSize())
}

func TestParseFeature(t *testing.T) {
	tests := []struct {
		in      string
		want    Feature
		wantErr bool
	}{
		{"", FeatureDocumentText, false},
		{"document_text_detection", FeatureDocumentText, false},
		{" TEXT_DETECTION ", FeatureText, false},
		{"label_detection", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFeature(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResponseString(t *testing.T) {
	var nilResp *Response
	assert.Equal(t, "<nil>", nilResp.String())
	assert.Equal(t, "output_uri=gs://b/g/", (&Response{OutputURI: "gs://b/g/"}).String())
}

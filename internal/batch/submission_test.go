package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/visionbatch/internal/vision"
)

func TestBuildSubmission(t *testing.T) {
	cfg := &Config{Bucket: "gs://b", OutputBatchSize: 1}
	images := []ImageRef{
		{RelPath: "g1/x.jpg", URI: "gs://b/g1/x.jpg"},
		{RelPath: "g1/y.JPG", URI: "gs://b/g1/y.JPG"},
	}

	sub := BuildSubmission(Group{Name: "g1"}, images, cfg)

	assert.Equal(t, "g1", sub.Group)
	require.Len(t, sub.Requests, 2)
	assert.Equal(t, "gs://b/g1/x.jpg", sub.Requests[0].ImageURI)
	assert.Equal(t, "gs://b/g1/y.JPG", sub.Requests[1].ImageURI)
	for _, r := range sub.Requests {
		assert.Equal(t, vision.FeatureDocumentText, r.Feature)
		assert.Nil(t, r.LanguageHints)
	}
	assert.Equal(t, "gs://b/g1/", sub.Output.DestinationURI)
	assert.Equal(t, 1, sub.Output.BatchSize)
}

func TestBuildSubmission_Options(t *testing.T) {
	hints := []string{"lt", "en"}
	cfg := &Config{
		Bucket:          "gs://b/",
		OutputBatchSize: 20,
		Feature:         vision.FeatureText,
		LanguageHints:   hints,
	}

	sub := BuildSubmission(Group{Name: "g"}, []ImageRef{{URI: "gs://b/g/a.jpg"}}, cfg)

	require.Len(t, sub.Requests, 1)
	assert.Equal(t, vision.FeatureText, sub.Requests[0].Feature)
	assert.Equal(t, []string{"lt", "en"}, sub.Requests[0].LanguageHints)
	assert.Equal(t, 20, sub.Output.BatchSize)
	assert.Equal(t, "gs://b/g/", sub.Output.DestinationURI)

	hints[0] = "de"
	assert.Equal(t, "lt", sub.Requests[0].LanguageHints[0], "hints must be copied")
}

func TestBuildSubmission_NormalizesOutputName(t *testing.T) {
	decomposed := "Ka\u0304rlis"
	images := []ImageRef{{URI: "gs://b/x.jpg"}}

	sub := BuildSubmission(Group{Name: decomposed}, images, &Config{Bucket: "gs://b", OutputBatchSize: 1, NormalizeNames: true})
	assert.Equal(t, "gs://b/K\u0101rlis/", sub.Output.DestinationURI)
	assert.Equal(t, decomposed, sub.Group)

	sub = BuildSubmission(Group{Name: decomposed}, images, &Config{Bucket: "gs://b", OutputBatchSize: 1})
	assert.Equal(t, "gs://b/"+decomposed+"/", sub.Output.DestinationURI)
}

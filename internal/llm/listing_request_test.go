package llm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/raine/kalamitra/internal/listing"
	"github.com/raine/kalamitra/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validListingJSON = `{
  "title": "Hand-Painted Pattachitra Terracotta Pot",
  "attributes": {
    "material": "Terracotta",
    "dimensions": "6-inch diameter",
    "timeToMakeHrs": 5,
    "style": "Pattachitra Folk Art"
  },
  "care": ["Wipe with a dry cloth", "Keep away from direct sunlight"],
  "description": "A beautiful pot.",
  "seoBullets": ["one", "two", "three", "four", "five"],
  "story": "Made in Raghurajpur."
}`

func TestListingPrompt(t *testing.T) {
	got := ListingPrompt("", "", "")
	assert.Contains(t, got, "TRANSCRIPTION:\nNot provided.")
	assert.Contains(t, got, "NOTES:\nNone.")
	assert.Contains(t, got, "90-word product description in English.")
	assert.False(t, strings.HasPrefix(got, " "))

	got = ListingPrompt("My grandmother taught me.", "Handle gently", "Hindi")
	assert.Contains(t, got, "TRANSCRIPTION:\nMy grandmother taught me.")
	assert.Contains(t, got, "NOTES:\nHandle gently")
	assert.Contains(t, got, "5 concise SEO-friendly bullet points in Hindi.")
	assert.Contains(t, got, "70–100 word provenance story in Hindi.")
	assert.Contains(t, got, "Be creative but plausible")
}

func TestBuildListingRequest(t *testing.T) {
	img := listing.Image{Data: []byte("jpeg"), MIMEType: "image/jpeg"}

	req, err := BuildListingRequest(img, "", "", "Tamil")
	require.NoError(t, err)

	assert.Equal(t, DefaultTextModel, req.Model)
	require.Len(t, req.Contents, 1)
	require.Len(t, req.Contents[0].Parts, 2)
	assert.NotNil(t, req.Contents[0].Parts[0].InlineData)
	assert.Contains(t, req.Contents[0].Parts[1].Text, "in Tamil")

	assert.Equal(t, "application/json", req.Config.ResponseMIMEType)
	require.NotNil(t, req.Config.ResponseSchema)
	assert.ElementsMatch(t,
		[]string{"title", "attributes", "care", "description", "seoBullets", "story"},
		req.Config.ResponseSchema.Required)
	assert.ElementsMatch(t,
		[]string{"material", "dimensions", "timeToMakeHrs", "style"},
		req.Config.ResponseSchema.Properties["attributes"].Required)

	_, err = BuildListingRequest(listing.Image{}, "", "", "")
	assert.Error(t, err)
}

func TestParseListingResponse(t *testing.T) {
	got, err := ParseListingResponse(validListingJSON)
	require.NoError(t, err)

	assert.Equal(t, "Hand-Painted Pattachitra Terracotta Pot", got.Title)
	assert.Equal(t, 5.0, got.Attributes.TimeToMakeHrs)
	assert.Len(t, got.SEOBullets, 5)
	require.NotNil(t, got.Pricing)
	// 5*120 + 50 + 6*10 = 710
	assert.Equal(t, 781, got.Pricing.AISuggested)
	assert.Equal(t, 639, got.Pricing.MinAcceptable)
}

func TestParseListingResponse_MarkdownFence(t *testing.T) {
	got, err := ParseListingResponse("```json\n" + validListingJSON + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "Terracotta", got.Attributes.Material)
}

func TestParseListingResponse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"not json", "Sorry, I can't help with that."},
		{"truncated", `{"title": "Pot", "attributes": {`},
		{"prose before object", "Here is your listing: " + validListingJSON},
		{"prose after object", validListingJSON + "\nHope this helps!"},
		{"prose around fence", "Sure!\n```json\n" + validListingJSON + "\n```"},
		{"unterminated fence", "```json\n" + validListingJSON},
		{"missing story", `{"title":"t","attributes":{"material":"m","dimensions":"d","timeToMakeHrs":1,"style":"s"},"care":[],"description":"d","seoBullets":[]}`},
		{"missing attributes", `{"title":"t","care":[],"description":"d","seoBullets":[],"story":"s"}`},
		{"missing hours", `{"title":"t","attributes":{"material":"m","dimensions":"d","style":"s"},"care":[],"description":"d","seoBullets":[],"story":"s"}`},
		{"hours as text", `{"title":"t","attributes":{"material":"m","dimensions":"d","timeToMakeHrs":"five","style":"s"},"care":[],"description":"d","seoBullets":[],"story":"s"}`},
		{"missing care", `{"title":"t","attributes":{"material":"m","dimensions":"d","timeToMakeHrs":1,"style":"s"},"description":"d","seoBullets":[],"story":"s"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseListingResponse(tt.text)
			assert.ErrorIs(t, err, ErrInvalidResponseFormat)
		})
	}
}

func TestParseListingResponse_PricingMatchesEstimate(t *testing.T) {
	attrs := []listing.ProductAttributes{
		{Material: "Brass", Dimensions: "10cm height", TimeToMakeHrs: 4},
		{Material: "Unknown", Dimensions: "no numbers here", TimeToMakeHrs: 0},
		{Material: "silk", Dimensions: "2 m", TimeToMakeHrs: 40},
	}

	for _, a := range attrs {
		l := listing.ProductListing{
			Title:       "t",
			Attributes:  a,
			Care:        []string{"c"},
			Description: "d",
			SEOBullets:  []string{"1", "2", "3", "4", "5"},
			Story:       "s",
		}
		raw, err := json.Marshal(l)
		require.NoError(t, err)

		got, err := ParseListingResponse(string(raw))
		require.NoError(t, err)

		want := pricing.Estimate(a)
		assert.Equal(t, &want, got.Pricing)
		got.Pricing = nil
		assert.Equal(t, l, *got)
	}
}

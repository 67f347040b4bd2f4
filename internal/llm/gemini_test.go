package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/raine/kalamitra/internal/listing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	resp *genai.GenerateContentResponse
	err  error

	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{candidate(genai.NewPartFromText(text))},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     1000,
			CandidatesTokenCount: 200,
			TotalTokenCount:      1200,
		},
	}
}

var testImage = listing.Image{Data: []byte("img"), MIMEType: "image/png"}

func TestGemini_EditImage(t *testing.T) {
	models := &fakeModels{resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		candidate(imagePart("image/png", []byte("out"))),
	}}}
	g := newGemini(models, GeminiConfig{ImageModel: "custom-image"})

	got, err := g.EditImage(context.Background(), testImage, "", ModeCleanup, QualityFast)
	require.NoError(t, err)
	assert.Equal(t, []string{listing.DataURI("image/png", []byte("out"))}, got.ImageURLs)
	assert.Equal(t, "custom-image", models.model)
}

func TestGemini_EditImageTransportError(t *testing.T) {
	g := newGemini(&fakeModels{err: errors.New("503 unavailable")}, GeminiConfig{})

	_, err := g.EditImage(context.Background(), testImage, "sunset", ModeSceneLighting, QualityHigh)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "failed to generate image: 503 unavailable", err.Error())
}

func TestGemini_EditImageBlocked(t *testing.T) {
	models := &fakeModels{resp: textResponse("I can't edit photos of people.")}
	g := newGemini(models, GeminiConfig{})

	_, err := g.EditImage(context.Background(), testImage, "add a model", ModeLifestyle, QualityFast)
	var blocked *PolicyBlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, "I can't edit photos of people.", blocked.Explanation)
	assert.Equal(t, DefaultImageModel, models.model)
}

func TestGemini_GenerateListing(t *testing.T) {
	models := &fakeModels{resp: textResponse(validListingJSON)}
	g := newGemini(models, GeminiConfig{})

	got, err := g.GenerateListing(context.Background(), testImage, ListingInput{Language: "Bengali"})
	require.NoError(t, err)
	assert.Equal(t, "Terracotta", got.Attributes.Material)
	assert.NotNil(t, got.Pricing)
	assert.Equal(t, DefaultTextModel, models.model)
	assert.Equal(t, "application/json", models.config.ResponseMIMEType)
}

func TestGemini_GenerateListingInvalid(t *testing.T) {
	g := newGemini(&fakeModels{resp: textResponse("not json")}, GeminiConfig{})

	_, err := g.GenerateListing(context.Background(), testImage, ListingInput{})
	assert.ErrorIs(t, err, ErrInvalidResponseFormat)
}

func TestGemini_Reply(t *testing.T) {
	models := &fakeModels{resp: textResponse("  Namaste!  ")}
	g := newGemini(models, GeminiConfig{TextModel: "custom-text"})

	got, err := g.Reply(context.Background(), "be kind", []listing.ChatTurn{
		{Role: listing.RoleUser, Text: "hi"},
		{Role: listing.RoleModel, Text: "hello"},
		{Role: listing.RoleUser, Text: "price?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Namaste!", got)

	assert.Equal(t, "custom-text", models.model)
	require.Len(t, models.contents, 3)
	assert.Equal(t, "user", string(models.contents[0].Role))
	assert.Equal(t, "model", string(models.contents[1].Role))
	assert.Equal(t, "be kind", models.config.SystemInstruction.Parts[0].Text)
}

func TestGemini_ReplyError(t *testing.T) {
	g := newGemini(&fakeModels{err: errors.New("timeout")}, GeminiConfig{})

	_, err := g.Reply(context.Background(), "x", []listing.ChatTurn{{Role: listing.RoleUser, Text: "hi"}})
	var te *TransportError
	require.ErrorAs(t, err, &te)

	_, err = g.Reply(context.Background(), "x", nil)
	assert.Error(t, err)
}

func TestCalculateGeminiCost(t *testing.T) {
	assert.InDelta(t, 0.0008, calculateGeminiCost(1000, 200, geminiInputPricePerMillion, geminiOutputPricePerMillion), 1e-9)
	assert.Equal(t, 0.0, calculateGeminiCost(0, 0, 1, 1))
}

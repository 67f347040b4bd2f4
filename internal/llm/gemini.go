package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/raine/kalamitra/internal/listing"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const (
	DefaultImageModel = "gemini-2.5-flash-image-preview"
	DefaultTextModel  = "gemini-2.5-flash"
)

// Gemini pricing (per million tokens)
const (
	geminiInputPricePerMillion       = 0.30
	geminiOutputPricePerMillion      = 2.50
	geminiImageInputPricePerMillion  = 0.30
	geminiImageOutputPricePerMillion = 30.00 // Image output tokens
)

// contentGenerator is the part of the genai client used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig configures the Gemini client. Empty model names use the defaults.
type GeminiConfig struct {
	APIKey     string
	ImageModel string
	TextModel  string
}

// Gemini implements ImageEditor, ListingGenerator and ChatModel on top of the
// Gemini API.
type Gemini struct {
	models     contentGenerator
	imageModel string
	textModel  string
}

// NewGemini creates a new Gemini client.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newGemini(client.Models, cfg), nil
}

func newGemini(models contentGenerator, cfg GeminiConfig) *Gemini {
	g := &Gemini{
		models:     models,
		imageModel: cfg.ImageModel,
		textModel:  cfg.TextModel,
	}
	if g.imageModel == "" {
		g.imageModel = DefaultImageModel
	}
	if g.textModel == "" {
		g.textModel = DefaultTextModel
	}
	return g
}

// EditImage runs a photoshoot edit on the product image.
func (g *Gemini) EditImage(ctx context.Context, image listing.Image, prompt string, mode Mode, quality Quality) (*listing.GeneratedImage, error) {
	req, err := BuildImageEditRequest(image, prompt, mode, quality)
	if err != nil {
		return nil, err
	}
	req.Model = g.imageModel

	resp, err := g.models.GenerateContent(ctx, req.Model, req.Contents, req.Config)
	if err != nil {
		return nil, &TransportError{Op: "generate image", Err: err}
	}

	usage := usageOf(resp, geminiImageInputPricePerMillion, geminiImageOutputPricePerMillion)
	result, err := ParseImageEditResponse(resp)

	log.Info().
		Str("model", req.Model).
		Str("mode", string(mode)).
		Str("quality", string(quality)).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Bool("ok", err == nil).
		Msg("image edit llm call")

	if err != nil {
		return nil, err
	}
	return result, nil
}

// GenerateListing drafts a listing for the product image and prices it.
func (g *Gemini) GenerateListing(ctx context.Context, image listing.Image, input ListingInput) (*listing.ProductListing, error) {
	req, err := BuildListingRequest(image, input.Transcription, input.Notes, input.Language)
	if err != nil {
		return nil, err
	}
	req.Model = g.textModel

	resp, err := g.models.GenerateContent(ctx, req.Model, req.Contents, req.Config)
	if err != nil {
		return nil, &TransportError{Op: "generate listing", Err: err}
	}
	if resp == nil {
		return nil, ErrInvalidResponseFormat
	}

	usage := usageOf(resp, geminiInputPricePerMillion, geminiOutputPricePerMillion)
	log.Info().
		Str("model", req.Model).
		Str("language", input.Language).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("listing llm call")

	l, err := ParseListingResponse(resp.Text())
	if err != nil {
		log.Warn().Err(err).Str("response", resp.Text()).Msg("failed to parse listing response")
		return nil, err
	}
	return l, nil
}

// Reply answers the last turn of a buyer assistant conversation.
func (g *Gemini) Reply(ctx context.Context, systemInstruction string, turns []listing.ChatTurn) (string, error) {
	if len(turns) == 0 {
		return "", fmt.Errorf("no turns provided")
	}

	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Role == listing.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
	}

	resp, err := g.models.GenerateContent(ctx, g.textModel, contents, config)
	if err != nil {
		return "", &TransportError{Op: "send message", Err: err}
	}
	if resp == nil {
		return "", &TransportError{Op: "send message", Err: fmt.Errorf("empty response from gemini")}
	}

	usage := usageOf(resp, geminiInputPricePerMillion, geminiOutputPricePerMillion)
	log.Info().
		Str("model", g.textModel).
		Int("turns", len(turns)).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("copilot llm call")

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &TransportError{Op: "send message", Err: fmt.Errorf("empty response from gemini")}
	}
	return text, nil
}

func usageOf(resp *genai.GenerateContentResponse, inputPrice, outputPrice float64) Usage {
	usage := Usage{}
	if resp == nil || resp.UsageMetadata == nil {
		return usage
	}
	usage.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
	usage.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	usage.TotalTokens = int64(resp.UsageMetadata.TotalTokenCount)
	usage.CostUSD = calculateGeminiCost(usage.InputTokens, usage.OutputTokens, inputPrice, outputPrice)
	return usage
}

func calculateGeminiCost(inputTokens, outputTokens int64, inputPrice, outputPrice float64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * inputPrice
	outputCost := float64(outputTokens) / 1_000_000 * outputPrice
	return inputCost + outputCost
}

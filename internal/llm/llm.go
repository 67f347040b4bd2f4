// Package llm builds requests for and parses responses from the Gemini models
// behind the photoshoot, listing and buyer assistant features.
package llm

import (
	"context"

	"github.com/raine/kalamitra/internal/listing"
	"google.golang.org/genai"
)

// Request is a fully built model call.
type Request struct {
	Model    string
	Contents []*genai.Content
	Config   *genai.GenerateContentConfig
}

// ImageEditor turns a product photo into styled product shots.
type ImageEditor interface {
	EditImage(ctx context.Context, image listing.Image, prompt string, mode Mode, quality Quality) (*listing.GeneratedImage, error)
}

// ListingInput is the artisan-provided context for listing generation.
type ListingInput struct {
	Transcription string
	Notes         string
	Language      string

	// Regenerate asks for a fresh draft even when the same inputs were seen
	// before. It is not part of the cache key.
	Regenerate bool
}

// ListingGenerator drafts a marketplace listing from a product photo.
type ListingGenerator interface {
	GenerateListing(ctx context.Context, image listing.Image, input ListingInput) (*listing.ProductListing, error)
}

// ChatModel answers the latest user turn of a conversation.
type ChatModel interface {
	Reply(ctx context.Context, systemInstruction string, turns []listing.ChatTurn) (string, error)
}

// Usage contains token usage and cost information.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

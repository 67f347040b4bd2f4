package api

import (
	"time"

	"github.com/raine/kalamitra/internal/listing"
)

// HeaderClientID carries a browser's stable workspace ID.
const HeaderClientID = "X-Client-ID"

// SettingsRequest updates photoshoot settings. Omitted fields are unchanged.
type SettingsRequest struct {
	Mode    *string `json:"mode,omitempty"`
	Quality *string `json:"quality,omitempty"`
	Consent *bool   `json:"consent,omitempty"`
}

// PhotoshootRequest starts a photoshoot generation.
type PhotoshootRequest struct {
	Prompt string `json:"prompt"`
}

// ListingRequest starts listing generation.
type ListingRequest struct {
	Transcription string `json:"transcription"`
	Notes         string `json:"notes"`
	Language      string `json:"language"`
}

// ViewRequest switches the workspace view.
type ViewRequest struct {
	View string `json:"view"`
}

// ChatRequest is a buyer message to the assistant.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the assistant's reply.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// ChatHistoryResponse is the whole buyer conversation.
type ChatHistoryResponse struct {
	History []listing.ChatTurn `json:"history"`
}

// PreviewResponse is the rendered storefront page.
type PreviewResponse struct {
	Preview string `json:"preview"`
}

// PublicationResponse is one past publish attempt.
type PublicationResponse struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Title     string    `json:"title"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// OnboardingResponse tells the front-end whether to show the onboarding.
type OnboardingResponse struct {
	NeedsOnboarding bool `json:"needs_onboarding"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

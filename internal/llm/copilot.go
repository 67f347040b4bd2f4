package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/lithammer/dedent"
	"github.com/raine/kalamitra/internal/listing"
)

// ShippingPolicy is the store-wide policy the buyer assistant quotes.
const ShippingPolicy = "We ship all over India within 5-7 business days. Shipping is free on orders over ₹1000."

const copilotGreeting = `Hello! I'm your assistant for the "%s". How can I help you?`

var copilotInstruction = strings.TrimSpace(dedent.Dedent(`
	You are an artisan’s assistant for the product described below. Be concise, kind, and factual. Respect cultural motifs.

	CONTEXT:
	Product Data: %s
	Shipping Policy: %s
	Care Guide: %s

	RULES:
	- Base all your answers on the provided CONTEXT. Do not invent information.
	- If you are uncertain about delivery dates, give a range and offer to connect the user with the artisan for specifics.
	- Avoid stereotypes.
	- Detect the user's language and respond in that language.
`))

// BuildCopilotInstruction builds the system instruction for a buyer assistant
// grounded on one listing. Image data is left out of the embedded product JSON.
func BuildCopilotInstruction(l listing.ProductListing) (string, error) {
	productJSON, err := json.MarshalIndent(l.WithoutImages(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode listing: %w", err)
	}
	return fmt.Sprintf(copilotInstruction, productJSON, ShippingPolicy, strings.Join(l.Care, ", ")), nil
}

// CopilotSession is one buyer assistant conversation about a listing. The system
// instruction is fixed at creation and travels with every turn.
type CopilotSession struct {
	model       ChatModel
	instruction string
	greeting    listing.ChatTurn

	sendMu sync.Mutex // serializes SendTurn
	mu     sync.Mutex
	turns  []listing.ChatTurn
}

// NewCopilotSession starts a conversation about l.
func NewCopilotSession(model ChatModel, l listing.ProductListing) (*CopilotSession, error) {
	instruction, err := BuildCopilotInstruction(l)
	if err != nil {
		return nil, err
	}
	return &CopilotSession{
		model:       model,
		instruction: instruction,
		greeting:    listing.ChatTurn{Role: listing.RoleModel, Text: fmt.Sprintf(copilotGreeting, l.Title)},
	}, nil
}

// Instruction returns the session's system instruction.
func (s *CopilotSession) Instruction() string {
	return s.instruction
}

// History returns the greeting followed by every completed turn. While a turn
// is in flight its user message is included.
func (s *CopilotSession) History() []listing.ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]listing.ChatTurn, 0, len(s.turns)+1)
	history = append(history, s.greeting)
	return append(history, s.turns...)
}

// SendTurn sends a user message and returns the model's reply. On failure the
// user message is removed again, so the history is exactly as before the call.
func (s *CopilotSession) SendTurn(ctx context.Context, text string) (string, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	s.turns = append(s.turns, listing.ChatTurn{Role: listing.RoleUser, Text: text})
	conversation := make([]listing.ChatTurn, len(s.turns))
	copy(conversation, s.turns)
	s.mu.Unlock()

	reply, err := s.model.Reply(ctx, s.instruction, conversation)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.turns = s.turns[:len(s.turns)-1]
		return "", err
	}
	s.turns = append(s.turns, listing.ChatTurn{Role: listing.RoleModel, Text: reply})
	return reply, nil
}

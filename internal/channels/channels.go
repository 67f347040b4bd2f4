// Package channels publishes listings to external sales channels. The current
// publishers are stand-ins that simulate latency and random failure.
package channels

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/raine/kalamitra/internal/listing"
	"github.com/rs/zerolog/log"
)

// Channel identifies an external sales channel.
type Channel string

const (
	Instagram Channel = "instagram"
	ONDC      Channel = "ondc"
)

// Name is the channel's display name.
func (c Channel) Name() string {
	switch c {
	case Instagram:
		return "Instagram"
	case ONDC:
		return "ONDC"
	}
	return string(c)
}

// ParseChannel returns the channel with the given identifier, case-insensitively.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case Instagram, ONDC:
		return c, nil
	}
	return "", fmt.Errorf("unknown channel: %q", s)
}

// Result is the outcome of one publish attempt. A failed publish is a normal
// result, not an error.
type Result struct {
	Channel Channel `json:"channel"`
	Success bool    `json:"success"`
	Message string  `json:"message"`
}

// Publisher publishes a listing to one channel. Publishing is not idempotent
// and callers must not retry automatically.
type Publisher interface {
	Channel() Channel
	Publish(ctx context.Context, l *listing.ProductListing) (Result, error)
}

// StubPublisher simulates a channel integration.
type StubPublisher struct {
	ChannelID          Channel
	Delay              time.Duration
	FailureProbability float64 // 0..1
	SuccessMessage     string
	FailureMessage     string

	// Rand returns a number in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

// NewInstagram returns the Instagram Shop stand-in.
func NewInstagram() *StubPublisher {
	return &StubPublisher{
		ChannelID:          Instagram,
		Delay:              1500 * time.Millisecond,
		FailureProbability: 0.10,
		SuccessMessage:     "Product was successfully published to your Instagram Shop!",
		FailureMessage:     "A mock API error occurred. Please try again.",
	}
}

// NewONDC returns the ONDC network stand-in.
func NewONDC() *StubPublisher {
	return &StubPublisher{
		ChannelID:          ONDC,
		Delay:              2500 * time.Millisecond,
		FailureProbability: 0.15,
		SuccessMessage:     "Product was successfully listed on the ONDC network!",
		FailureMessage:     "ONDC publish failed: Invalid category mapping.",
	}
}

func (p *StubPublisher) Channel() Channel {
	return p.ChannelID
}

// Publish waits for the simulated latency and then fails with
// FailureProbability. It only returns an error if ctx is done first.
func (p *StubPublisher) Publish(ctx context.Context, l *listing.ProductListing) (Result, error) {
	title := ""
	if l != nil {
		title = l.Title
	}
	log.Info().Str("channel", string(p.ChannelID)).Str("title", title).Msg("simulating publish")

	if p.Delay > 0 {
		timer := time.NewTimer(p.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	roll := rand.Float64
	if p.Rand != nil {
		roll = p.Rand
	}

	if roll() < p.FailureProbability {
		log.Warn().Str("channel", string(p.ChannelID)).Str("message", p.FailureMessage).Msg("simulated publish failure")
		return Result{Channel: p.ChannelID, Success: false, Message: p.FailureMessage}, nil
	}

	log.Info().Str("channel", string(p.ChannelID)).Msg("simulated publish succeeded")
	return Result{Channel: p.ChannelID, Success: true, Message: p.SuccessMessage}, nil
}

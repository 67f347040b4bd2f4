// Package analytics records product events.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/raine/kalamitra/internal/storage"
	"github.com/rs/zerolog/log"
)

// EventName is a known analytics event.
type EventName string

const (
	ListingCreated    EventName = "listing_created"
	PhotoshootCreated EventName = "photoshoot_created"
	CheckoutInitiated EventName = "checkout_initiated"
	PaymentCaptured   EventName = "payment_captured"
	ONDCPublished     EventName = "ondc_published"
	InstaPublished    EventName = "insta_published"
)

// EventNames lists every known event.
var EventNames = []EventName{
	ListingCreated,
	PhotoshootCreated,
	CheckoutInitiated,
	PaymentCaptured,
	ONDCPublished,
	InstaPublished,
}

// ParseEventName converts s to a known event name.
func ParseEventName(s string) (EventName, error) {
	for _, n := range EventNames {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown event %q", s)
}

// EventStore persists events.
type EventStore interface {
	SaveEvent(e *storage.Event) error
}

// Recorder logs events and, when it has a store, persists them.
type Recorder struct {
	store EventStore
	now   func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewRecorder creates a recorder. store may be nil.
func NewRecorder(store EventStore) *Recorder {
	return &Recorder{
		store:   store,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (r *Recorder) newID(t time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), r.entropy).String()
}

// LogEvent records an event and returns its ID. It never fails: problems
// encoding or saving the event are logged.
func (r *Recorder) LogEvent(ctx context.Context, name EventName, payload map[string]any) string {
	now := r.now().UTC()
	id := r.newID(now)

	raw, err := json.Marshal(payload)
	if err != nil || payload == nil {
		if err != nil {
			log.Warn().Err(err).Str("event", string(name)).Msg("failed to encode event payload")
		}
		raw = []byte("{}")
	}

	log.Info().
		Str("event", string(name)).
		Str("eventId", id).
		RawJSON("payload", raw).
		Msg("analytics event")

	if r.store == nil {
		return id
	}
	if err := ctx.Err(); err != nil {
		log.Warn().Err(err).Str("event", string(name)).Msg("analytics event not saved")
		return id
	}
	if err := r.store.SaveEvent(&storage.Event{ID: id, Name: string(name), Payload: raw, CreatedAt: now}); err != nil {
		log.Warn().Err(err).Str("event", string(name)).Msg("failed to save analytics event")
	}
	return id
}

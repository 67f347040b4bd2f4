// Package studio holds each artisan's working state and runs the photoshoot,
// listing, buyer assistant and publishing flows on it. The Telegram bot and the
// HTTP API are thin front-ends over this package.
package studio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raine/kalamitra/internal/analytics"
	"github.com/raine/kalamitra/internal/channels"
	"github.com/raine/kalamitra/internal/llm"
	"github.com/raine/kalamitra/internal/storage"
	"github.com/rs/zerolog/log"
)

// EventLogger records analytics events.
type EventLogger interface {
	LogEvent(ctx context.Context, name analytics.EventName, payload map[string]any) string
}

// Store is the persistence the studio needs.
type Store interface {
	GetFlag(owner, name string) (string, bool, error)
	SetFlag(owner, name, value string) error
	SavePublication(p *storage.Publication) error
	GetPublications(owner string) ([]storage.Publication, error)
}

// Config wires a Studio to its collaborators. Store and Events may be nil.
type Config struct {
	Images     llm.ImageEditor
	Listings   llm.ListingGenerator
	Chat       llm.ChatModel
	Publishers []channels.Publisher
	Store      Store
	Events     EventLogger
}

type nopEvents struct{}

func (nopEvents) LogEvent(context.Context, analytics.EventName, map[string]any) string { return "" }

// Studio owns every workspace.
type Studio struct {
	images     llm.ImageEditor
	listings   llm.ListingGenerator
	chat       llm.ChatModel
	publishers map[channels.Channel]channels.Publisher
	store      Store
	events     EventLogger

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// New creates a studio.
func New(cfg Config) *Studio {
	s := &Studio{
		images:     cfg.Images,
		listings:   cfg.Listings,
		chat:       cfg.Chat,
		publishers: make(map[channels.Channel]channels.Publisher),
		store:      cfg.Store,
		events:     cfg.Events,
		workspaces: make(map[string]*Workspace),
	}
	if s.events == nil {
		s.events = nopEvents{}
	}
	for _, p := range cfg.Publishers {
		s.publishers[p.Channel()] = p
	}
	return s
}

// Workspace returns the owner's workspace, creating it on first use.
func (s *Studio) Workspace(owner string) *Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workspaces[owner]
	if !ok {
		w = newWorkspace(s, owner)
		s.workspaces[owner] = w
		log.Debug().Str("owner", owner).Msg("workspace created")
	}
	return w
}

// Lookup returns an existing workspace.
func (s *Studio) Lookup(owner string) (*Workspace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workspaces[owner]
	return w, ok
}

// Create makes a workspace under a new random owner ID.
func (s *Studio) Create() *Workspace {
	return s.Workspace(uuid.New().String())
}

// Resume returns the owner's workspace when it is in memory or when the store
// still holds state saved for the owner, such as finished onboarding. Owners
// the studio has never seen are not created.
func (s *Studio) Resume(owner string) (*Workspace, bool, error) {
	if w, ok := s.Lookup(owner); ok {
		return w, true, nil
	}
	if s.store == nil {
		return nil, false, nil
	}
	_, ok, err := s.store.GetFlag(owner, OnboardingFlag)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check saved state: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	log.Debug().Str("owner", owner).Msg("workspace resumed")
	return s.Workspace(owner), true, nil
}

// Remove drops a workspace, cancelling anything running in it.
func (s *Studio) Remove(owner string) {
	s.mu.Lock()
	w, ok := s.workspaces[owner]
	delete(s.workspaces, owner)
	s.mu.Unlock()

	if ok {
		w.Reset()
	}
}

// EvictIdle removes workspaces that have not been used for maxIdle and have
// nothing running. It returns the number removed.
func (s *Studio) EvictIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for owner, w := range s.workspaces {
		w.mu.Lock()
		idle := w.inflight == nil && w.lastUsed.Before(cutoff)
		w.mu.Unlock()
		if idle {
			delete(s.workspaces, owner)
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Int("remaining", len(s.workspaces)).Msg("evicted idle workspaces")
	}
	return removed
}

// RunEviction evicts idle workspaces every interval until ctx is done.
func (s *Studio) RunEviction(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvictIdle(maxIdle)
		}
	}
}

package studio

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/raine/kalamitra/internal/analytics"
	"github.com/raine/kalamitra/internal/channels"
	"github.com/raine/kalamitra/internal/listing"
	"github.com/raine/kalamitra/internal/llm"
	"github.com/raine/kalamitra/internal/storage"
	"github.com/rs/zerolog/log"
)

// Input limits, in characters.
const (
	PromptMaxLength        = 1000
	TranscriptionMaxLength = 2000
	NotesMaxLength         = 500
)

// Languages are the supported output languages for generated listings.
var Languages = []string{"English", "Hindi", "Bengali", "Tamil"}

// View is the screen the artisan is on.
type View string

const (
	ViewPhotoshoot View = "photoshoot"
	ViewListing    View = "listing"
	ViewCopilot    View = "copilot"
	ViewStore      View = "store"
)

// ParseView returns the view with the given identifier.
func ParseView(s string) (View, error) {
	switch v := View(s); v {
	case ViewPhotoshoot, ViewListing, ViewCopilot, ViewStore:
		return v, nil
	}
	return "", fmt.Errorf("unknown view: %q", s)
}

// RequiresListing reports whether the view is only reachable once a listing exists.
func (v View) RequiresListing() bool {
	return v == ViewCopilot || v == ViewStore
}

// Settings are the photoshoot controls. They survive view changes and uploads.
type Settings struct {
	Mode    llm.Mode    `json:"mode"`
	Quality llm.Quality `json:"quality"`
	Consent bool        `json:"consent"`
}

// DefaultSettings are the settings of a new workspace.
var DefaultSettings = Settings{Mode: llm.ModeLifestyle, Quality: llm.QualityFast}

// ListingInput is the artisan's context for listing generation.
type ListingInput = llm.ListingInput

// Workspace is one artisan's working state: the uploaded photo, generated
// shots, the listing and its buyer assistant. Operations that call out to a
// model or channel run one at a time; a failed operation leaves the previous
// state untouched.
type Workspace struct {
	owner  string
	studio *Studio

	mu        sync.Mutex
	image     *listing.Image
	generated *listing.GeneratedImage
	listing   *listing.ProductListing
	copilot   *llm.CopilotSession
	view      View
	settings  Settings
	epoch     uint64 // bumped by every upload
	inflight  *action
	lastUsed  time.Time
}

type action struct {
	cancel context.CancelFunc
}

// Snapshot is a read-only view of a workspace.
type Snapshot struct {
	Owner          string                  `json:"owner"`
	View           View                    `json:"view"`
	Settings       Settings                `json:"settings"`
	HasImage       bool                    `json:"hasImage"`
	ImagePreview   string                  `json:"imagePreview,omitempty"`
	GeneratedImage *listing.GeneratedImage `json:"generatedImage,omitempty"`
	Listing        *listing.ProductListing `json:"listing,omitempty"`
	Busy           bool                    `json:"busy"`
}

func newWorkspace(s *Studio, owner string) *Workspace {
	return &Workspace{
		owner:    owner,
		studio:   s,
		view:     ViewPhotoshoot,
		settings: DefaultSettings,
		lastUsed: time.Now(),
	}
}

// Owner returns the workspace's owner ID.
func (w *Workspace) Owner() string {
	return w.owner
}

func (w *Workspace) touch() {
	w.lastUsed = time.Now()
}

// Snapshot returns the current state.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	snap := Snapshot{
		Owner:          w.owner,
		View:           w.view,
		Settings:       w.settings,
		HasImage:       w.image != nil,
		GeneratedImage: w.generated,
		Listing:        w.enrichedListingLocked(),
		Busy:           w.inflight != nil,
	}
	if w.image != nil {
		snap.ImagePreview = w.image.DataURI()
	}
	return snap
}

// Upload replaces the product photo. The previous shots, listing and buyer
// conversation are cleared and any running action is cancelled; its result
// will be discarded.
func (w *Workspace) Upload(data []byte, mimeType string) error {
	img, err := ValidateImage(data, mimeType)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	if w.inflight != nil {
		w.inflight.cancel()
		w.inflight = nil
	}
	w.epoch++
	w.image = &img
	w.generated = nil
	w.listing = nil
	w.copilot = nil
	if w.view.RequiresListing() {
		w.view = ViewPhotoshoot
	}

	log.Info().Str("owner", w.owner).Str("mimeType", img.MIMEType).Int("size", len(img.Data)).Msg("image uploaded")
	return nil
}

// Image returns the uploaded photo, if any.
func (w *Workspace) Image() *listing.Image {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.image == nil {
		return nil
	}
	img := *w.image
	return &img
}

// Settings returns the photoshoot settings.
func (w *Workspace) Settings() Settings {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	return w.settings
}

func (w *Workspace) SetMode(mode llm.Mode) error {
	if _, err := llm.ParseMode(string(mode)); err != nil {
		return invalid(fmt.Sprintf("Unknown photoshoot mode %q.", mode))
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	w.settings.Mode = mode
	return nil
}

func (w *Workspace) SetQuality(quality llm.Quality) error {
	if _, err := llm.ParseQuality(string(quality)); err != nil {
		return invalid(fmt.Sprintf("Unknown image quality %q.", quality))
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	w.settings.Quality = quality
	return nil
}

func (w *Workspace) SetConsent(consent bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	w.settings.Consent = consent
}

// begin claims the workspace for one action.
func (w *Workspace) begin(ctx context.Context) (context.Context, *action, uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	if w.inflight != nil {
		return nil, nil, 0, ErrActionInProgress
	}
	actx, cancel := context.WithCancel(ctx)
	a := &action{cancel: cancel}
	w.inflight = a
	return actx, a, w.epoch, nil
}

// finishLocked releases the claim. w.mu must be held.
func (w *Workspace) finishLocked(a *action) {
	a.cancel()
	if w.inflight == a {
		w.inflight = nil
	}
}

func (w *Workspace) superseded(epoch uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.epoch != epoch
}

func (w *Workspace) release(a *action) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finishLocked(a)
}

// GeneratePhotoshoot creates styled shots of the uploaded photo using the
// current settings.
func (w *Workspace) GeneratePhotoshoot(ctx context.Context, prompt string) (*listing.GeneratedImage, error) {
	w.mu.Lock()
	settings := w.settings
	var img listing.Image
	hasImage := w.image != nil
	if hasImage {
		img = *w.image
	}
	w.mu.Unlock()

	switch {
	case !settings.Consent:
		return nil, invalid(MsgConsentRequired)
	case !hasImage:
		return nil, invalid(MsgUploadFirst)
	case settings.Mode.RequiresPrompt() && strings.TrimSpace(prompt) == "":
		return nil, invalid(MsgPromptRequired)
	case utf8.RuneCountInString(prompt) > PromptMaxLength:
		return nil, invalid(MsgPromptTooLong)
	}

	actx, a, epoch, err := w.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer w.release(a)

	result, err := w.studio.images.EditImage(actx, img, prompt, settings.Mode, settings.Quality)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.epoch != epoch {
		return nil, ErrSuperseded
	}
	if err != nil {
		log.Warn().Err(err).Str("owner", w.owner).Str("mode", string(settings.Mode)).Msg("photoshoot failed")
		return nil, err
	}
	w.generated = result

	w.studio.events.LogEvent(ctx, analytics.PhotoshootCreated, map[string]any{
		"owner":   w.owner,
		"mode":    string(settings.Mode),
		"quality": string(settings.Quality),
		"images":  len(result.ImageURLs),
	})
	return result, nil
}

// GeneratedImage returns the latest photoshoot result, if any.
func (w *Workspace) GeneratedImage() *listing.GeneratedImage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generated
}

func normalizeLanguage(lang string) (string, bool) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return llm.DefaultLanguage, true
	}
	for _, l := range Languages {
		if strings.EqualFold(l, lang) {
			return l, true
		}
	}
	return "", false
}

// GenerateListing drafts a priced listing from the uploaded photo. On success
// it replaces the current listing and starts a fresh buyer conversation.
// Asking again for the same photo always gets a new draft from the model.
func (w *Workspace) GenerateListing(ctx context.Context, input ListingInput) (*listing.ProductListing, error) {
	w.mu.Lock()
	w.touch()
	var img listing.Image
	hasImage := w.image != nil
	if hasImage {
		img = *w.image
	}
	if w.listing != nil {
		input.Regenerate = true
	}
	w.mu.Unlock()

	if !hasImage {
		return nil, invalid(MsgUploadFirstListing)
	}
	if utf8.RuneCountInString(input.Transcription) > TranscriptionMaxLength {
		return nil, invalid(MsgTranscriptionLong)
	}
	if utf8.RuneCountInString(input.Notes) > NotesMaxLength {
		return nil, invalid(MsgNotesTooLong)
	}
	lang, ok := normalizeLanguage(input.Language)
	if !ok {
		return nil, invalid(MsgUnknownLanguage)
	}
	input.Language = lang

	actx, a, epoch, err := w.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer w.release(a)

	l, err := w.studio.listings.GenerateListing(actx, img, input)
	if err == nil {
		// Built outside the lock; the session is discarded if the result is.
		var session *llm.CopilotSession
		session, err = llm.NewCopilotSession(w.studio.chat, *l)
		if err == nil {
			w.mu.Lock()
			defer w.mu.Unlock()
			if w.epoch != epoch {
				return nil, ErrSuperseded
			}
			w.listing = l
			w.copilot = session

			w.studio.events.LogEvent(ctx, analytics.ListingCreated, map[string]any{
				"owner":    w.owner,
				"title":    l.Title,
				"language": lang,
				"price":    l.Pricing.AISuggested,
			})
			return w.enrichedListingLocked(), nil
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.epoch != epoch {
		return nil, ErrSuperseded
	}
	log.Warn().Err(err).Str("owner", w.owner).Msg("listing generation failed")
	return nil, err
}

// Listing returns the current listing decorated with the original photo
// preview and the latest generated shots, or nil.
func (w *Workspace) Listing() *listing.ProductListing {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	return w.enrichedListingLocked()
}

func (w *Workspace) enrichedListingLocked() *listing.ProductListing {
	if w.listing == nil {
		return nil
	}
	l := *w.listing
	if w.image != nil {
		l.OriginalImagePreview = w.image.DataURI()
	}
	l.GeneratedImage = w.generated
	return &l
}

// StorePreview renders the storefront page of the current listing.
func (w *Workspace) StorePreview() (string, error) {
	l := w.Listing()
	if l == nil {
		return "", ErrNoListing
	}
	return listing.RenderStorePreview(*l)
}

// View returns the current view.
func (w *Workspace) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view
}

// Navigate switches views. The buyer assistant and the store preview need a
// listing.
func (w *Workspace) Navigate(view View) error {
	if _, err := ParseView(string(view)); err != nil {
		return invalid(fmt.Sprintf("Unknown view %q.", view))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	if view.RequiresListing() && w.listing == nil {
		return ErrNoListing
	}
	w.view = view
	return nil
}

// SendChat sends a buyer message to the assistant and returns its reply. A
// failed turn leaves the conversation as it was.
func (w *Workspace) SendChat(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", invalid(MsgEmptyChatMessage)
	}

	w.mu.Lock()
	session := w.copilot
	w.mu.Unlock()
	if session == nil {
		return "", ErrNoListing
	}

	actx, a, epoch, err := w.begin(ctx)
	if err != nil {
		return "", err
	}
	defer w.release(a)

	reply, err := session.SendTurn(actx, text)
	if err != nil {
		if w.superseded(epoch) {
			return "", ErrSuperseded
		}
		log.Warn().Err(err).Str("owner", w.owner).Msg("copilot turn failed")
		return "", err
	}
	return reply, nil
}

// ChatHistory returns the buyer conversation, starting with the greeting.
func (w *Workspace) ChatHistory() ([]listing.ChatTurn, error) {
	w.mu.Lock()
	w.touch()
	session := w.copilot
	w.mu.Unlock()
	if session == nil {
		return nil, ErrNoListing
	}
	return session.History(), nil
}

// Publish sends the current listing to a sales channel. Failed publishes are
// reported in the result; they are never retried.
func (w *Workspace) Publish(ctx context.Context, channel channels.Channel) (channels.Result, error) {
	publisher, ok := w.studio.publishers[channel]
	if !ok {
		return channels.Result{}, invalid(fmt.Sprintf("Unknown channel %q.", channel))
	}

	l := w.Listing()
	if l == nil {
		return channels.Result{}, ErrNoListing
	}

	actx, a, epoch, err := w.begin(ctx)
	if err != nil {
		return channels.Result{}, err
	}
	defer w.release(a)

	result, err := publisher.Publish(actx, l)
	if err != nil {
		if w.superseded(epoch) {
			return channels.Result{}, ErrSuperseded
		}
		return channels.Result{}, err
	}

	if w.studio.store != nil {
		pub := &storage.Publication{
			Owner:   w.owner,
			Channel: string(channel),
			Title:   l.Title,
			Success: result.Success,
			Message: result.Message,
		}
		if err := w.studio.store.SavePublication(pub); err != nil {
			log.Warn().Err(err).Str("owner", w.owner).Msg("failed to save publication")
		}
	}

	if result.Success {
		event := analytics.InstaPublished
		if channel == channels.ONDC {
			event = analytics.ONDCPublished
		}
		w.studio.events.LogEvent(ctx, event, map[string]any{"owner": w.owner, "title": l.Title})
	}
	return result, nil
}

// Publications returns the publish history of this workspace's owner.
func (w *Workspace) Publications() ([]storage.Publication, error) {
	if w.studio.store == nil {
		return nil, nil
	}
	return w.studio.store.GetPublications(w.owner)
}

// OnboardingFlag is the persisted flag marking that the onboarding was shown.
const OnboardingFlag = "kalamitra_onboarding_complete"

// NeedsOnboarding reports whether the owner has not finished onboarding yet.
func (w *Workspace) NeedsOnboarding() (bool, error) {
	if w.studio.store == nil {
		return false, nil
	}
	value, ok, err := w.studio.store.GetFlag(w.owner, OnboardingFlag)
	if err != nil {
		return false, err
	}
	return !ok || value != "true", nil
}

// FinishOnboarding marks the onboarding as shown.
func (w *Workspace) FinishOnboarding() error {
	if w.studio.store == nil {
		return nil
	}
	return w.studio.store.SetFlag(w.owner, OnboardingFlag, "true")
}

// Reset clears the workspace back to a fresh start, keeping the settings.
func (w *Workspace) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.inflight != nil {
		w.inflight.cancel()
		w.inflight = nil
	}
	w.epoch++
	w.image = nil
	w.generated = nil
	w.listing = nil
	w.copilot = nil
	w.view = ViewPhotoshoot
}

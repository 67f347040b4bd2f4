package studio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raine/kalamitra/internal/analytics"
	"github.com/raine/kalamitra/internal/channels"
	"github.com/raine/kalamitra/internal/listing"
	"github.com/raine/kalamitra/internal/llm"
	"github.com/raine/kalamitra/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

type fakeImages struct {
	result *listing.GeneratedImage
	err    error
	block  chan struct{} // when set, EditImage waits for it or ctx
	calls  int
	mu     sync.Mutex
}

func (f *fakeImages) EditImage(ctx context.Context, image listing.Image, prompt string, mode llm.Mode, quality llm.Quality) (*listing.GeneratedImage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, &llm.TransportError{Op: "generate image", Err: ctx.Err()}
		}
	}
	return f.result, f.err
}

type fakeListings struct {
	listing *listing.ProductListing
	err     error
	input   llm.ListingInput
}

func (f *fakeListings) GenerateListing(ctx context.Context, image listing.Image, input llm.ListingInput) (*listing.ProductListing, error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	l := *f.listing
	suggestion := listing.PricingSuggestion{AISuggested: 836, MinAcceptable: 684, Reasoning: "r"}
	l.Pricing = &suggestion
	return &l, nil
}

type fakeChat struct {
	reply string
	err   error
}

func (f *fakeChat) Reply(ctx context.Context, systemInstruction string, turns []listing.ChatTurn) (string, error) {
	return f.reply, f.err
}

type recordedEvents struct {
	mu    sync.Mutex
	names []analytics.EventName
}

func (r *recordedEvents) LogEvent(ctx context.Context, name analytics.EventName, payload map[string]any) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	return "id"
}

type testEnv struct {
	studio   *Studio
	images   *fakeImages
	listings *fakeListings
	chat     *fakeChat
	events   *recordedEvents
	store    *storage.SQLiteStore
	insta    *channels.StubPublisher
	ondc     *channels.StubPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	note := "Here you go"
	env := &testEnv{
		images: &fakeImages{result: &listing.GeneratedImage{ImageURLs: []string{"data:image/png;base64,AAAA"}, Text: &note}},
		listings: &fakeListings{listing: &listing.ProductListing{
			Title:       "Brass Diya",
			Attributes:  listing.ProductAttributes{Material: "Brass", Dimensions: "10cm", TimeToMakeHrs: 4, Style: "Temple"},
			Care:        []string{"Polish monthly"},
			Description: "A lamp.",
			SEOBullets:  []string{"a", "b", "c", "d", "e"},
			Story:       "Made in Moradabad.",
		}},
		chat:   &fakeChat{reply: "Yes!"},
		events: &recordedEvents{},
		store:  store,
		insta:  channels.NewInstagram(),
		ondc:   channels.NewONDC(),
	}
	env.insta.Delay, env.ondc.Delay = 0, 0
	env.insta.Rand = func() float64 { return 0.5 }
	env.ondc.Rand = func() float64 { return 0.5 }

	env.studio = New(Config{
		Images:     env.images,
		Listings:   env.listings,
		Chat:       env.chat,
		Publishers: []channels.Publisher{env.insta, env.ondc},
		Store:      store,
		Events:     env.events,
	})
	return env
}

func readyWorkspace(t *testing.T, env *testEnv) *Workspace {
	t.Helper()
	w := env.studio.Workspace("tg:1")
	require.NoError(t, w.Upload(pngHeader, "image/png"))
	w.SetConsent(true)
	return w
}

func TestValidateImage(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		mimeType string
		wantType string
		wantErr  string
	}{
		{"png", pngHeader, "image/png", "image/png", ""},
		{"jpeg", []byte("jpegdata"), "image/jpeg", "image/jpeg", ""},
		{"jpg alias", []byte("jpegdata"), "image/JPG", "image/jpeg", ""},
		{"webp", []byte("webpdata"), "image/webp", "image/webp", ""},
		{"sniffed png", pngHeader, "", "image/png", ""},
		{"gif rejected", []byte("GIF89a...."), "image/gif", "", MsgInvalidFileType},
		{"pdf rejected", []byte("%PDF-1.4"), "application/pdf", "", MsgInvalidFileType},
		{"empty rejected", nil, "image/png", "", MsgInvalidFileType},
		{"too large", bytes.Repeat([]byte{1}, MaxUploadSize+1), "image/png", "", MsgFileTooLarge},
		{"exactly max", bytes.Repeat([]byte{1}, MaxUploadSize), "image/png", "image/png", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := ValidateImage(tt.data, tt.mimeType)
			if tt.wantErr != "" {
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.wantErr, ve.Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, img.MIMEType)
		})
	}
}

func TestDefaults(t *testing.T) {
	env := newTestEnv(t)
	w := env.studio.Workspace("tg:1")

	assert.Equal(t, Settings{Mode: llm.ModeLifestyle, Quality: llm.QualityFast, Consent: false}, w.Settings())
	assert.Equal(t, ViewPhotoshoot, w.View())
	assert.Nil(t, w.Listing())
	assert.Same(t, w, env.studio.Workspace("tg:1"))
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t)
	w := env.studio.Workspace("tg:1")

	require.NoError(t, w.SetMode(llm.ModeColorway))
	require.NoError(t, w.SetQuality(llm.QualityHigh))
	w.SetConsent(true)

	var ve *ValidationError
	assert.ErrorAs(t, w.SetMode("sketch"), &ve)
	assert.ErrorAs(t, w.SetQuality("ultra"), &ve)

	assert.Equal(t, Settings{Mode: llm.ModeColorway, Quality: llm.QualityHigh, Consent: true}, w.Settings())

	// Settings survive uploads and view changes
	require.NoError(t, w.Upload(pngHeader, "image/png"))
	require.NoError(t, w.Navigate(ViewListing))
	assert.Equal(t, Settings{Mode: llm.ModeColorway, Quality: llm.QualityHigh, Consent: true}, w.Settings())
}

func TestGeneratePhotoshoot_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := env.studio.Workspace("tg:1")

	_, err := w.GeneratePhotoshoot(ctx, "on a table")
	assert.Equal(t, MsgConsentRequired, UserMessage(err))

	w.SetConsent(true)
	_, err = w.GeneratePhotoshoot(ctx, "on a table")
	assert.Equal(t, MsgUploadFirst, UserMessage(err))

	require.NoError(t, w.Upload(pngHeader, "image/png"))
	_, err = w.GeneratePhotoshoot(ctx, "   ")
	assert.Equal(t, MsgPromptRequired, UserMessage(err))

	_, err = w.GeneratePhotoshoot(ctx, strings.Repeat("a", PromptMaxLength+1))
	assert.Equal(t, MsgPromptTooLong, UserMessage(err))

	assert.Equal(t, 0, env.images.calls)

	require.NoError(t, w.SetMode(llm.ModeCleanup))
	_, err = w.GeneratePhotoshoot(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, env.images.calls)
}

func TestGeneratePhotoshoot(t *testing.T) {
	env := newTestEnv(t)
	w := readyWorkspace(t, env)

	got, err := w.GeneratePhotoshoot(context.Background(), "diwali evening")
	require.NoError(t, err)
	assert.Equal(t, got, w.GeneratedImage())
	assert.Equal(t, []analytics.EventName{analytics.PhotoshootCreated}, env.events.names)
}

func TestGeneratePhotoshoot_FailureKeepsPreviousResult(t *testing.T) {
	env := newTestEnv(t)
	w := readyWorkspace(t, env)

	first, err := w.GeneratePhotoshoot(context.Background(), "diwali evening")
	require.NoError(t, err)

	env.images.result = nil
	env.images.err = &llm.PolicyBlockedError{Explanation: "blocked"}

	_, err = w.GeneratePhotoshoot(context.Background(), "something else")
	assert.Equal(t, `Request blocked. The AI responded: "blocked". This may be due to a safety policy violation. Please adjust your prompt.`, UserMessage(err))
	assert.Equal(t, first, w.GeneratedImage())
}

func TestActionInProgress(t *testing.T) {
	env := newTestEnv(t)
	w := readyWorkspace(t, env)
	env.images.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := w.GeneratePhotoshoot(context.Background(), "first")
		done <- err
	}()

	require.Eventually(t, func() bool { return w.Snapshot().Busy }, time.Second, time.Millisecond)

	_, err := w.GeneratePhotoshoot(context.Background(), "second")
	assert.ErrorIs(t, err, ErrActionInProgress)
	_, err = w.GenerateListing(context.Background(), ListingInput{})
	assert.ErrorIs(t, err, ErrActionInProgress)

	close(env.images.block)
	require.NoError(t, <-done)
	assert.False(t, w.Snapshot().Busy)
}

func TestUploadSupersedesRunningAction(t *testing.T) {
	env := newTestEnv(t)
	w := readyWorkspace(t, env)
	env.images.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := w.GeneratePhotoshoot(context.Background(), "first")
		done <- err
	}()
	require.Eventually(t, func() bool { return w.Snapshot().Busy }, time.Second, time.Millisecond)

	require.NoError(t, w.Upload(pngHeader, "image/png"))

	err := <-done
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.Nil(t, w.GeneratedImage())
	assert.Empty(t, env.events.names)
}

func TestGenerateListing_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.studio.Workspace("tg:1")

	_, err := w.GenerateListing(ctx, ListingInput{})
	assert.Equal(t, MsgUploadFirstListing, UserMessage(err))

	require.NoError(t, w.Upload(pngHeader, "image/png"))

	_, err = w.GenerateListing(ctx, ListingInput{Transcription: strings.Repeat("क", TranscriptionMaxLength+1)})
	assert.Equal(t, MsgTranscriptionLong, UserMessage(err))

	_, err = w.GenerateListing(ctx, ListingInput{Notes: strings.Repeat("n", NotesMaxLength+1)})
	assert.Equal(t, MsgNotesTooLong, UserMessage(err))

	_, err = w.GenerateListing(ctx, ListingInput{Language: "Klingon"})
	assert.Equal(t, MsgUnknownLanguage, UserMessage(err))

	// Limits count characters, not bytes
	_, err = w.GenerateListing(ctx, ListingInput{Transcription: strings.Repeat("क", TranscriptionMaxLength), Language: "hindi"})
	require.NoError(t, err)
	assert.Equal(t, "Hindi", env.listings.input.Language)
}

func TestGenerateListing(t *testing.T) {
	env := newTestEnv(t)
	w := readyWorkspace(t, env)
	ctx := context.Background()

	_, err := w.GeneratePhotoshoot(ctx, "diwali")
	require.NoError(t, err)

	got, err := w.GenerateListing(ctx, ListingInput{Transcription: "My father taught me"})
	require.NoError(t, err)
	assert.Equal(t, "English", env.listings.input.Language)
	assert.Equal(t, "Brass Diya", got.Title)
	assert.Equal(t, listing.DataURI("image/png", pngHeader), got.OriginalImagePreview)
	require.NotNil(t, got.GeneratedImage)
	assert.Equal(t, 836, got.Pricing.AISuggested)

	history, err := w.ChatHistory()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Contains(t, history[0].Text, `"Brass Diya"`)

	assert.Equal(t, []analytics.EventName{analytics.PhotoshootCreated, analytics.ListingCreated}, env.events.names)
}

func TestGenerateListing_AgainAsksForNewDraft(t *testing.T) {
	env := newTestEnv(t)
	w := readyWorkspace(t, env)
	ctx := context.Background()

	_, err := w.GenerateListing(ctx, ListingInput{})
	require.NoError(t, err)
	assert.False(t, env.listings.input.Regenerate)

	_, err = w.GenerateListing(ctx, ListingInput{})
	require.NoError(t, err)
	assert.True(t, env.listings.input.Regenerate)

	// A new photo starts over with a normal request.
	require.NoError(t, w.Upload(pngHeader, "image/png"))
	_, err = w.GenerateListing(ctx, ListingInput{})
	require.NoError(t, err)
	assert.False(t, env.listings.input.Regenerate)
}

func TestGenerateListing_FailureKeepsPreviousListing(t *testing.T) {
	env := newTestEnv(t)
	w := readyWorkspace(t, env)
	ctx := context.Background()

	_, err := w.GenerateListing(ctx, ListingInput{})
	require.NoError(t, err)

	env.listings.err = fmt.Errorf("parse: %w", llm.ErrInvalidResponseFormat)
	_, err = w.GenerateListing(ctx, ListingInput{})
	assert.Equal(t, MsgInvalidFormat, UserMessage(err))

	require.NotNil(t, w.Listing())
	assert.Equal(t, "Brass Diya", w.Listing().Title)
}

func TestUploadClearsDerivedState(t *testing.T) {
	env := newTestEnv(t)
	w := readyWorkspace(t, env)
	ctx := context.Background()

	_, err := w.GeneratePhotoshoot(ctx, "diwali")
	require.NoError(t, err)
	_, err = w.GenerateListing(ctx, ListingInput{})
	require.NoError(t, err)
	require.NoError(t, w.Navigate(ViewStore))

	var ve *ValidationError
	require.ErrorAs(t, w.Upload([]byte("GIF89a"), "image/gif"), &ve)
	assert.NotNil(t, w.Listing(), "rejected upload must not clear state")

	require.NoError(t, w.Upload([]byte("jpegdata"), "image/jpeg"))
	assert.Nil(t, w.Listing())
	assert.Nil(t, w.GeneratedImage())
	assert.Equal(t, ViewPhotoshoot, w.View())
	_, err = w.ChatHistory()
	assert.ErrorIs(t, err, ErrNoListing)
	assert.Equal(t, "image/jpeg", w.Image().MIMEType)
}

func TestNavigate(t *testing.T) {
	env := newTestEnv(t)
	w := readyWorkspace(t, env)

	require.NoError(t, w.Navigate(ViewListing))
	assert.ErrorIs(t, w.Navigate(ViewCopilot), ErrNoListing)
	assert.ErrorIs(t, w.Navigate(ViewStore), ErrNoListing)
	assert.Equal(t, ViewListing, w.View())

	var ve *ValidationError
	assert.ErrorAs(t, w.Navigate("settings"), &ve)

	_, err := w.GenerateListing(context.Background(), ListingInput{})
	require.NoError(t, err)
	require.NoError(t, w.Navigate(ViewCopilot))
	require.NoError(t, w.Navigate(ViewStore))
	assert.Equal(t, ViewStore, w.View())
}

func TestSendChat(t *testing.T) {
	env := newTestEnv(t)
	w := readyWorkspace(t, env)
	ctx := context.Background()

	_, err := w.SendChat(ctx, "hello")
	assert.ErrorIs(t, err, ErrNoListing)

	_, err = w.GenerateListing(ctx, ListingInput{})
	require.NoError(t, err)

	_, err = w.SendChat(ctx, "  ")
	assert.Equal(t, MsgEmptyChatMessage, UserMessage(err))

	reply, err := w.SendChat(ctx, "Is it brass?")
	require.NoError(t, err)
	assert.Equal(t, "Yes!", reply)

	before, err := w.ChatHistory()
	require.NoError(t, err)
	assert.Len(t, before, 3)

	env.chat.err = &llm.TransportError{Op: "send message", Err: errors.New("connection reset")}
	_, err = w.SendChat(ctx, "Do you ship to Delhi?")
	assert.Equal(t, "Failed to send message: connection reset", UserMessage(err))

	after, err := w.ChatHistory()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPublish(t *testing.T) {
	env := newTestEnv(t)
	w := readyWorkspace(t, env)
	ctx := context.Background()

	_, err := w.Publish(ctx, channels.Instagram)
	assert.ErrorIs(t, err, ErrNoListing)

	_, err = w.GenerateListing(ctx, ListingInput{})
	require.NoError(t, err)

	result, err := w.Publish(ctx, channels.Instagram)
	require.NoError(t, err)
	assert.True(t, result.Success)

	env.ondc.Rand = func() float64 { return 0.01 }
	result, err = w.Publish(ctx, channels.ONDC)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "ONDC publish failed: Invalid category mapping.", result.Message)

	_, err = w.Publish(ctx, channels.Channel("etsy"))
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	pubs, err := w.Publications()
	require.NoError(t, err)
	require.Len(t, pubs, 2)
	assert.True(t, pubs[0].Success)
	assert.False(t, pubs[1].Success)

	assert.Equal(t, []analytics.EventName{analytics.ListingCreated, analytics.InstaPublished}, env.events.names)
}

func TestOnboarding(t *testing.T) {
	env := newTestEnv(t)
	w := env.studio.Workspace("tg:1")

	needs, err := w.NeedsOnboarding()
	require.NoError(t, err)
	assert.True(t, needs)

	require.NoError(t, w.FinishOnboarding())

	needs, err = w.NeedsOnboarding()
	require.NoError(t, err)
	assert.False(t, needs)

	value, ok, err := env.store.GetFlag("tg:1", OnboardingFlag)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", value)

	needs, err = env.studio.Workspace("tg:2").NeedsOnboarding()
	require.NoError(t, err)
	assert.True(t, needs)
}

func TestResume(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.studio.Workspace("web:1").FinishOnboarding())

	// A fresh studio on the same store, as after a restart.
	restarted := New(Config{Store: env.store})

	w, ok, err := restarted.Resume("web:1")
	require.NoError(t, err)
	require.True(t, ok)
	needs, err := w.NeedsOnboarding()
	require.NoError(t, err)
	assert.False(t, needs)

	again, ok, err := restarted.Resume("web:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Same(t, w, again)

	_, ok, err = restarted.Resume("web:unknown")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok = restarted.Lookup("web:unknown")
	assert.False(t, ok)

	_, ok, err = New(Config{}).Resume("web:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStorePreview(t *testing.T) {
	env := newTestEnv(t)
	w := readyWorkspace(t, env)

	_, err := w.StorePreview()
	assert.ErrorIs(t, err, ErrNoListing)

	_, err = w.GenerateListing(context.Background(), ListingInput{})
	require.NoError(t, err)

	preview, err := w.StorePreview()
	require.NoError(t, err)
	assert.Contains(t, preview, "Brass Diya")
	assert.Contains(t, preview, "₹836")
}

func TestReset(t *testing.T) {
	env := newTestEnv(t)
	w := readyWorkspace(t, env)
	_, err := w.GenerateListing(context.Background(), ListingInput{})
	require.NoError(t, err)

	w.Reset()
	assert.Nil(t, w.Image())
	assert.Nil(t, w.Listing())
	assert.True(t, w.Settings().Consent)
}

func TestEvictIdle(t *testing.T) {
	env := newTestEnv(t)
	w := env.studio.Workspace("old")
	env.studio.Workspace("fresh")

	w.mu.Lock()
	w.lastUsed = time.Now().Add(-2 * time.Hour)
	w.mu.Unlock()

	assert.Equal(t, 1, env.studio.EvictIdle(time.Hour))
	_, ok := env.studio.Lookup("old")
	assert.False(t, ok)
	_, ok = env.studio.Lookup("fresh")
	assert.True(t, ok)
}

func TestEvictIdle_SettingsCountAsActivity(t *testing.T) {
	tests := []struct {
		name string
		use  func(w *Workspace)
	}{
		{"mode", func(w *Workspace) { w.SetMode(llm.ModeColorway) }},
		{"quality", func(w *Workspace) { w.SetQuality(llm.QualityHigh) }},
		{"consent", func(w *Workspace) { w.SetConsent(true) }},
		{"settings", func(w *Workspace) { w.Settings() }},
		{"listing", func(w *Workspace) { w.Listing() }},
		{"chat history", func(w *Workspace) { w.ChatHistory() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.studio.Workspace("tg:7")
			w.mu.Lock()
			w.lastUsed = time.Now().Add(-2 * time.Hour)
			w.mu.Unlock()

			tt.use(w)

			assert.Equal(t, 0, env.studio.EvictIdle(time.Hour))
			_, ok := env.studio.Lookup("tg:7")
			assert.True(t, ok)
		})
	}
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, MsgEmptyResult, UserMessage(llm.ErrEmptyResult))
	assert.Equal(t, MsgCreateListingFirst, UserMessage(ErrNoListing))
	assert.Equal(t, MsgActionInProgress, UserMessage(ErrActionInProgress))
	assert.Equal(t, MsgSuperseded, UserMessage(ErrSuperseded))
	assert.Equal(t, MsgUnknownError, UserMessage(errors.New("boom")))
	assert.Equal(t, "Failed to generate listing: timeout", UserMessage(&llm.TransportError{Op: "generate listing", Err: errors.New("timeout")}))
}

package storage

import (
	"encoding/json"
	"testing"

	"github.com/raine/kalamitra/internal/listing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFlags(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.GetFlag("tg:1", "onboarding")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetFlag("tg:1", "onboarding", "true"))
	value, ok, err := store.GetFlag("tg:1", "onboarding")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", value)

	require.NoError(t, store.SetFlag("tg:1", "onboarding", "false"))
	value, _, err = store.GetFlag("tg:1", "onboarding")
	require.NoError(t, err)
	assert.Equal(t, "false", value)

	_, ok, err = store.GetFlag("tg:2", "onboarding")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListingCache(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetCachedListing("missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	l := &listing.ProductListing{
		Title:                "Pot",
		Attributes:           listing.ProductAttributes{Material: "clay", Dimensions: "6in", TimeToMakeHrs: 3, Style: "folk"},
		Care:                 []string{"dry"},
		SEOBullets:           []string{"a"},
		Pricing:              &listing.PricingSuggestion{AISuggested: 500, MinAcceptable: 400, Reasoning: "r"},
		OriginalImagePreview: "data:image/png;base64,AAAA",
	}
	require.NoError(t, store.SetCachedListing("h1", l))

	got, err = store.GetCachedListing("h1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Pot", got.Title)
	assert.Equal(t, 500, got.Pricing.AISuggested)
	assert.Empty(t, got.OriginalImagePreview)
}

func TestPublications(t *testing.T) {
	store := newTestStore(t)

	first := &Publication{Owner: "tg:1", Channel: "instagram", Title: "Pot", Success: true, Message: "ok"}
	require.NoError(t, store.SavePublication(first))
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	require.NoError(t, store.SavePublication(&Publication{Owner: "tg:1", Channel: "ondc", Title: "Pot", Success: false, Message: "failed"}))
	require.NoError(t, store.SavePublication(&Publication{Owner: "tg:2", Channel: "ondc", Title: "Mat", Success: true, Message: "ok"}))

	pubs, err := store.GetPublications("tg:1")
	require.NoError(t, err)
	require.Len(t, pubs, 2)
	assert.Equal(t, "instagram", pubs[0].Channel)
	assert.True(t, pubs[0].Success)
	assert.Equal(t, "ondc", pubs[1].Channel)
	assert.False(t, pubs[1].Success)
}

func TestEvents(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveEvent(&Event{ID: "01A", Name: "listing_created", Payload: json.RawMessage(`{"title":"Pot"}`)}))
	require.NoError(t, store.SaveEvent(&Event{ID: "01B", Name: "photoshoot_created"}))
	require.NoError(t, store.SaveEvent(&Event{ID: "01C", Name: "listing_created", Payload: json.RawMessage(`{"title":"Mat"}`)}))

	events, err := store.GetEvents("listing_created", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "01C", events[0].ID)
	assert.JSONEq(t, `{"title":"Mat"}`, string(events[0].Payload))

	all, err := store.GetEvents("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.JSONEq(t, `{}`, string(all[1].Payload))

	assert.Error(t, store.SaveEvent(&Event{Name: "no_id"}))
}

func TestAllowedUsers(t *testing.T) {
	store := newTestStore(t)

	allowed, err := store.IsUserAllowed(42)
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, store.AddAllowedUser(42, 1))
	require.NoError(t, store.AddAllowedUser(43, 1))

	allowed, err = store.IsUserAllowed(42)
	require.NoError(t, err)
	assert.True(t, allowed)

	users, err := store.GetAllowedUsers()
	require.NoError(t, err)
	assert.Len(t, users, 2)

	require.NoError(t, store.RemoveAllowedUser(42))
	allowed, err = store.IsUserAllowed(42)
	require.NoError(t, err)
	assert.False(t, allowed)
}

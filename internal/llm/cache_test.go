package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/raine/kalamitra/internal/listing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGenerator struct {
	calls int
	err   error
}

func (g *countingGenerator) GenerateListing(ctx context.Context, image listing.Image, input ListingInput) (*listing.ProductListing, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &listing.ProductListing{Title: "Pot in " + input.Language}, nil
}

type memoryListingCache map[string]*listing.ProductListing

func (c memoryListingCache) GetCachedListing(hash string) (*listing.ProductListing, error) {
	return c[hash], nil
}

func (c memoryListingCache) SetCachedListing(hash string, l *listing.ProductListing) error {
	c[hash] = l
	return nil
}

func TestCachedListingGenerator(t *testing.T) {
	inner := &countingGenerator{}
	c := NewCachedListingGenerator(inner, memoryListingCache{})
	ctx := context.Background()

	first, err := c.GenerateListing(ctx, testImage, ListingInput{Language: "Hindi"})
	require.NoError(t, err)
	second, err := c.GenerateListing(ctx, testImage, ListingInput{Language: "Hindi"})
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first, second)

	_, err = c.GenerateListing(ctx, testImage, ListingInput{Language: "Tamil"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedListingGenerator_Regenerate(t *testing.T) {
	inner := &countingGenerator{}
	cache := memoryListingCache{}
	c := NewCachedListingGenerator(inner, cache)
	ctx := context.Background()

	_, err := c.GenerateListing(ctx, testImage, ListingInput{Language: "Hindi"})
	require.NoError(t, err)
	fresh, err := c.GenerateListing(ctx, testImage, ListingInput{Language: "Hindi", Regenerate: true})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	// The fresh draft replaces the cached one.
	cached, err := c.GenerateListing(ctx, testImage, ListingInput{Language: "Hindi"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.Same(t, fresh, cached)
	assert.Len(t, cache, 1)
}

func TestCachedListingGenerator_ErrorsAreNotCached(t *testing.T) {
	inner := &countingGenerator{err: ErrInvalidResponseFormat}
	cache := memoryListingCache{}
	c := NewCachedListingGenerator(inner, cache)

	_, err := c.GenerateListing(context.Background(), testImage, ListingInput{})
	assert.True(t, errors.Is(err, ErrInvalidResponseFormat))
	assert.Empty(t, cache)
}

func TestHashListingInput(t *testing.T) {
	base := hashListingInput(testImage, ListingInput{Transcription: "ab", Notes: "c"})

	assert.Equal(t, base, hashListingInput(testImage, ListingInput{Transcription: "ab", Notes: "c"}))
	assert.NotEqual(t, base, hashListingInput(testImage, ListingInput{Transcription: "a", Notes: "bc"}))
	assert.Equal(t, base, hashListingInput(testImage, ListingInput{Transcription: "ab", Notes: "c", Regenerate: true}))
	assert.NotEqual(t, base, hashListingInput(listing.Image{Data: []byte("other"), MIMEType: "image/png"}, ListingInput{Transcription: "ab", Notes: "c"}))
}

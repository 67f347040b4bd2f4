package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/raine/kalamitra/internal/listing"
	"github.com/rs/zerolog/log"
)

// ListingCache stores generated listings by input hash.
type ListingCache interface {
	GetCachedListing(hash string) (*listing.ProductListing, error)
	SetCachedListing(hash string, l *listing.ProductListing) error
}

// CachedListingGenerator wraps a ListingGenerator with a persistent cache keyed
// by the image and every text input.
type CachedListingGenerator struct {
	inner ListingGenerator
	cache ListingCache
}

// NewCachedListingGenerator creates a cached listing generator.
func NewCachedListingGenerator(inner ListingGenerator, cache ListingCache) *CachedListingGenerator {
	return &CachedListingGenerator{inner: inner, cache: cache}
}

// hashListingInput hashes the image and inputs. Each field is length prefixed
// to prevent boundary collisions.
func hashListingInput(image listing.Image, input ListingInput) string {
	h := sha256.New()
	for _, field := range [][]byte{
		image.Data,
		[]byte(image.MIMEType),
		[]byte(input.Transcription),
		[]byte(input.Notes),
		[]byte(input.Language),
	} {
		binary.Write(h, binary.LittleEndian, int64(len(field)))
		h.Write(field)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GenerateListing implements ListingGenerator with caching. A regenerate
// request skips the lookup and replaces the cached entry with the new draft.
func (c *CachedListingGenerator) GenerateListing(ctx context.Context, image listing.Image, input ListingInput) (*listing.ProductListing, error) {
	hash := hashListingInput(image, input)

	if c.cache != nil && !input.Regenerate {
		cached, err := c.cache.GetCachedListing(hash)
		if err != nil {
			log.Warn().Err(err).Msg("failed to check listing cache")
		} else if cached != nil {
			log.Debug().Str("hash", hash[:16]).Msg("listing cache hit")
			return cached, nil
		}
	}

	l, err := c.inner.GenerateListing(ctx, image, input)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.SetCachedListing(hash, l); err != nil {
			log.Warn().Err(err).Msg("failed to cache listing")
		} else {
			log.Debug().Str("hash", hash[:16]).Msg("cached listing")
		}
	}

	return l, nil
}

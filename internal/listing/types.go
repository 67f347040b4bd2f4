package listing

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ProductAttributes are the physical facts of a product extracted from its photo
// and the artisan's notes.
type ProductAttributes struct {
	Material      string  `json:"material"`
	Dimensions    string  `json:"dimensions"` // Free text, e.g. "6-inch diameter"
	TimeToMakeHrs float64 `json:"timeToMakeHrs"`
	Style         string  `json:"style"`
}

// PricingSuggestion is a suggested price range in whole rupees.
type PricingSuggestion struct {
	AISuggested   int    `json:"aiSuggested"`
	MinAcceptable int    `json:"minAcceptable"` // Never above AISuggested
	Reasoning     string `json:"reasoning"`
}

// GeneratedImage is the result of one photoshoot generation.
type GeneratedImage struct {
	ImageURLs []string `json:"imageUrls"` // data: URIs
	Text      *string  `json:"text"`      // First text note returned alongside the images, if any
}

// ProductListing is a complete marketplace listing for a handmade product.
type ProductListing struct {
	Title       string             `json:"title"`
	Attributes  ProductAttributes  `json:"attributes"`
	Care        []string           `json:"care"`
	Description string             `json:"description"`
	SEOBullets  []string           `json:"seoBullets"`
	Story       string             `json:"story"`
	Pricing     *PricingSuggestion `json:"pricing,omitempty"`

	// Presentation only; never sent to or produced by the model.
	OriginalImagePreview string          `json:"originalImagePreview,omitempty"`
	GeneratedImage       *GeneratedImage `json:"generatedImage,omitempty"`
}

// WithoutImages returns a copy of the listing with the image references cleared.
func (l ProductListing) WithoutImages() ProductListing {
	l.OriginalImagePreview = ""
	l.GeneratedImage = nil
	return l
}

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ChatTurn is one message in a buyer assistant conversation.
type ChatTurn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Image is an uploaded product photo.
type Image struct {
	Data     []byte
	MIMEType string
}

// DataURI encodes the image as a data: URI suitable for previews.
func (i Image) DataURI() string {
	return DataURI(i.MIMEType, i.Data)
}

// DataURI builds a base64 data: URI from raw bytes.
func DataURI(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// ParseDataURI decodes a base64 data: URI built by DataURI.
func ParseDataURI(uri string) (mimeType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, errors.New("not a data uri")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data uri has no payload")
	}
	mimeType, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("data uri is not base64 encoded: %s", meta)
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode data uri: %w", err)
	}
	return mimeType, data, nil
}

package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/raine/kalamitra/internal/listing"
	"github.com/raine/kalamitra/internal/pricing"
	"google.golang.org/genai"
)

// DefaultLanguage is used when no output language is chosen.
const DefaultLanguage = "English"

const catalogAssistantInstruction = "You are a world-class catalog assistant for Indian handicrafts, skilled in creating compelling product listings from images and notes."

var listingPrompt = strings.TrimSpace(dedent.Dedent(`
	A product image is provided. Your primary task is to analyze the image to extract visual details. A transcription from the artisan may also be provided for additional context.

	RULES:
	1.  **Image is the source of truth:** Base the product's visual description (style, color, shape) on the image.
	2.  **Transcription is for context:** Use the transcription for non-visual details like the artisan's story, time to make, specific materials, or cultural meaning.
	3.  **Conflict Resolution:** If the transcription contradicts the image (e.g., says "it's a blue pot" but the image shows a red pot), IGNORE the conflicting part of the transcription and describe what you see in the image.
	4.  **No Transcription:** If the transcription is empty, generate all fields based solely on your analysis of the image. Be creative but plausible for an artisan-made product.

	TRANSCRIPTION:
	%[1]s

	NOTES:
	%[2]s

	TASKS:
	1)  Extract product details from the image and any relevant context from the transcription.
	2)  Write a 90-word product description in %[3]s.
	3)  Create 5 concise SEO-friendly bullet points in %[3]s.
	4)  Write a 70–100 word provenance story in %[3]s. If the transcription gives a story, use it. If not, create a plausible story based on the visual style of the item in the image.

	Generate a complete JSON output with all the required fields.
`))

// listingSchema is the structured output contract for listing generation.
var listingSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title": {Type: genai.TypeString, Description: "Creative and descriptive product title based on the image."},
		"attributes": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"material":      {Type: genai.TypeString, Description: "Primary material, e.g., 'Terracotta Clay'. Infer from image if not in text."},
				"dimensions":    {Type: genai.TypeString, Description: "Approximate dimensions, e.g., '6-inch diameter'. Infer from context if possible."},
				"timeToMakeHrs": {Type: genai.TypeNumber, Description: "Estimated hours to create one piece."},
				"style":         {Type: genai.TypeString, Description: "Artistic style, e.g., 'Pattachitra Folk Art'. Infer from image."},
			},
			Required:         []string{"material", "dimensions", "timeToMakeHrs", "style"},
			PropertyOrdering: []string{"material", "dimensions", "timeToMakeHrs", "style"},
		},
		"care": {
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeString},
			Description: "A list of 2-3 plausible care instructions based on the material.",
		},
		"description": {Type: genai.TypeString, Description: "The 90-word product description."},
		"seoBullets": {
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeString},
			Description: "The 5 SEO bullet points.",
		},
		"story": {Type: genai.TypeString, Description: "The 70-100 word provenance story."},
	},
	Required:         []string{"title", "attributes", "care", "description", "seoBullets", "story"},
	PropertyOrdering: []string{"title", "attributes", "care", "description", "seoBullets", "story"},
}

// ListingPrompt builds the user instruction for listing generation. Empty
// transcription, notes and language get their placeholders.
func ListingPrompt(transcription, notes, language string) string {
	if strings.TrimSpace(transcription) == "" {
		transcription = "Not provided."
	}
	if strings.TrimSpace(notes) == "" {
		notes = "None."
	}
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}
	return fmt.Sprintf(listingPrompt, transcription, notes, language)
}

// BuildListingRequest builds a JSON-mode listing generation request for one
// product image.
func BuildListingRequest(image listing.Image, transcription, notes, language string) (*Request, error) {
	if len(image.Data) == 0 {
		return nil, fmt.Errorf("no image provided")
	}

	parts := []*genai.Part{
		{InlineData: &genai.Blob{Data: image.Data, MIMEType: image.MIMEType}},
		genai.NewPartFromText(ListingPrompt(transcription, notes, language)),
	}

	return &Request{
		Model:    DefaultTextModel,
		Contents: []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(catalogAssistantInstruction, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			ResponseSchema:    listingSchema,
		},
	}, nil
}

// listingPayload mirrors listingSchema with pointers so missing fields can be
// told apart from zero values.
type listingPayload struct {
	Title      *string `json:"title"`
	Attributes *struct {
		Material      *string  `json:"material"`
		Dimensions    *string  `json:"dimensions"`
		TimeToMakeHrs *float64 `json:"timeToMakeHrs"`
		Style         *string  `json:"style"`
	} `json:"attributes"`
	Care        []string `json:"care"`
	Description *string  `json:"description"`
	SEOBullets  []string `json:"seoBullets"`
	Story       *string  `json:"story"`
}

func (p *listingPayload) missingField() string {
	switch {
	case p.Title == nil:
		return "title"
	case p.Attributes == nil:
		return "attributes"
	case p.Attributes.Material == nil:
		return "attributes.material"
	case p.Attributes.Dimensions == nil:
		return "attributes.dimensions"
	case p.Attributes.TimeToMakeHrs == nil:
		return "attributes.timeToMakeHrs"
	case p.Attributes.Style == nil:
		return "attributes.style"
	case p.Care == nil:
		return "care"
	case p.Description == nil:
		return "description"
	case p.SEOBullets == nil:
		return "seoBullets"
	case p.Story == nil:
		return "story"
	}
	return ""
}

// ParseListingResponse decodes the model's JSON listing and attaches a price
// suggestion computed from the returned attributes. Malformed or incomplete
// output fails with ErrInvalidResponseFormat.
func ParseListingResponse(text string) (*listing.ProductListing, error) {
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponseFormat, err)
	}

	var p listingPayload
	if err := json.Unmarshal([]byte(jsonStr), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponseFormat, err)
	}
	if field := p.missingField(); field != "" {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidResponseFormat, field)
	}

	l := &listing.ProductListing{
		Title: *p.Title,
		Attributes: listing.ProductAttributes{
			Material:      *p.Attributes.Material,
			Dimensions:    *p.Attributes.Dimensions,
			TimeToMakeHrs: *p.Attributes.TimeToMakeHrs,
			Style:         *p.Attributes.Style,
		},
		Care:        p.Care,
		Description: *p.Description,
		SEOBullets:  p.SEOBullets,
		Story:       *p.Story,
	}
	suggestion := pricing.Estimate(l.Attributes)
	l.Pricing = &suggestion

	return l, nil
}

// extractJSONObject returns the response text as JSON, unwrapping one markdown
// code fence if the model added it. Anything else around the object is
// rejected.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	if body, ok := strings.CutPrefix(text, "```"); ok {
		body, ok = strings.CutSuffix(body, "```")
		if !ok {
			return "", fmt.Errorf("unterminated code fence in response")
		}
		body = strings.TrimPrefix(body, "json")
		text = strings.TrimSpace(body)
	}
	if !strings.HasPrefix(text, "{") || !strings.HasSuffix(text, "}") {
		return "", fmt.Errorf("response is not a JSON object: %.80q", text)
	}
	return text, nil
}

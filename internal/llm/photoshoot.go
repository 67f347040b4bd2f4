package llm

import (
	"fmt"

	"github.com/raine/kalamitra/internal/listing"
	"google.golang.org/genai"
)

// Mode selects the kind of photoshoot edit.
type Mode string

const (
	ModeCleanup           Mode = "cleanup"
	ModeBackgroundReplace Mode = "background_replace"
	ModeLifestyle         Mode = "lifestyle"
	ModeColorway          Mode = "colorway"
	ModeSceneLighting     Mode = "scene_lighting"
	ModePoseAdjust        Mode = "pose_adjust"
)

// Modes lists every photoshoot mode in display order.
var Modes = []Mode{
	ModeCleanup,
	ModeBackgroundReplace,
	ModeLifestyle,
	ModeColorway,
	ModeSceneLighting,
	ModePoseAdjust,
}

var modeLabels = map[Mode]string{
	ModeCleanup:           "Cleanup",
	ModeBackgroundReplace: "Background",
	ModeLifestyle:         "Lifestyle",
	ModeColorway:          "Colorway",
	ModeSceneLighting:     "Lighting",
	ModePoseAdjust:        "Pose",
}

// ParseMode returns the mode with the given identifier.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown photoshoot mode: %q", s)
}

// RequiresPrompt reports whether the mode needs a free-text brief from the artisan.
func (m Mode) RequiresPrompt() bool {
	return m != ModeCleanup
}

// Label is a short human-readable name for the mode.
func (m Mode) Label() string {
	if l, ok := modeLabels[m]; ok {
		return l
	}
	return string(m)
}

// Quality trades generation detail for speed.
type Quality string

const (
	QualityFast Quality = "fast"
	QualityHigh Quality = "high"
)

// ParseQuality returns the quality with the given identifier.
func ParseQuality(s string) (Quality, error) {
	switch Quality(s) {
	case QualityFast, QualityHigh:
		return Quality(s), nil
	}
	return "", fmt.Errorf("unknown image quality: %q", s)
}

const photographerInstruction = `You are a world-class commercial photographer and art director with a specialization in handcrafted, artisanal products. Your mission is to create a single, breathtaking image that tells a story and evokes emotion. The product is always the hero. You have a masterful understanding of light, composition, and mood.

Core Principles:
1.  **Product Integrity is Sacred:** You must flawlessly preserve the original product's shape, texture, and character. Your edits enhance the product, never distort it (unless a color change is explicitly requested).
2.  **Photorealism is Paramount:** Every shadow, reflection, and highlight must be physically plausible. The final image should look like a photograph from a high-end magazine, not a digital composite.
3.  **Create an Atmosphere:** Don't just place an object; build a world around it. Your work should feel authentic, aspirational, and deeply connected to the product's story.`

const cleanupBrief = `Mode: Flawless Product Cleanup.
Brief: Prepare this product for a high-end catalog. Your task is meticulous and focused: remove all dust, smudges, fingerprints, and distracting background imperfections. The goal is a perfectly clean product against a seamless, professional studio backdrop (e.g., soft neutral gray, off-white, or a subtle gradient). Do not alter the product itself in any way. The final image must be pristine.`

// Templates for modes that take a brief. The single %s is the artisan's prompt.
var modeBriefs = map[Mode]string{
	ModeBackgroundReplace: `Mode: Environmental Composition.
Brief: Integrate the product into a new scene described by the artisan. This is not just a copy-paste; it is a seamless composition. You must make the product truly 'live' in the environment. Pay obsessive attention to how the new scene's light sources affect the product—creating accurate shadows, highlights, and even subtle reflections. The product should feel like it belongs there.
Scene Description: "%s".`,
	ModeLifestyle: `Mode: Aspirational Lifestyle Photoshoot.
Brief: Create an authentic, aspirational lifestyle scene that tells a compelling story. Who uses this product? What moment are we capturing? Is it a quiet morning ritual, a vibrant part of a celebration, or a contemplative moment of craft? Use the artisan's brief to build a rich, emotionally resonant scene with complementary props, textures, and lighting that elevate the product without overpowering it.
Creative Brief: "%s".`,
	ModeColorway: `Mode: New Product Colorway.
Brief: Your task is to recolor the product according to the artisan's palette request. This is a precision task. It is critical that you preserve the product's original shape, texture, material properties, and sheen perfectly. The new color must look completely natural on the material. All shadows and highlights on the product must be retained.
Color Palette Request: "%s".`,
	ModeSceneLighting: `Mode: Masterful Relighting.
Brief: Your task is to 'paint with light'. Reshape the mood and drama of the scene by altering the lighting as per the artisan's direction. Sculpt the product with light to emphasize its texture and form. Are we creating the dramatic, high-contrast chiaroscuro of a studio? The soft, diffused light of a misty morning? Or the warm, nostalgic glow of golden hour? The lighting should transform the emotional feel of the image.
Lighting Style: "%s".`,
	ModePoseAdjust: `Mode: Subtle Compositional Adjustment.
Brief: Make a minor, physically plausible adjustment to the product's angle or position to improve the overall composition or add a subtle sense of dynamism. This should be a delicate touch, not a dramatic change. The product's core identity and form must be perfectly preserved. The goal is a more pleasing and balanced photograph.
Adjustment Request: "%s".`,
}

const (
	highQualitySuffix = "\n\nQuality Focus: This is a final shot for a high-end commercial campaign. Prioritize photorealistic detail, impeccable lighting, and flawless composition. Take your time to render a masterpiece."
	fastQualitySuffix = "\n\nQuality Focus: This is a rapid concept preview. Prioritize speed and capturing the general idea over fine-grained detail. A good conceptual image is the goal."
)

// ImageEditPrompt builds the user instruction for a photoshoot. The cleanup mode
// ignores the prompt. Unknown qualities are treated as fast.
func ImageEditPrompt(prompt string, mode Mode, quality Quality) (string, error) {
	var brief string
	if mode == ModeCleanup {
		brief = cleanupBrief
	} else {
		tmpl, ok := modeBriefs[mode]
		if !ok {
			return "", fmt.Errorf("unknown photoshoot mode: %q", mode)
		}
		brief = fmt.Sprintf(tmpl, prompt)
	}

	if quality == QualityHigh {
		return brief + highQualitySuffix, nil
	}
	return brief + fastQualitySuffix, nil
}

// BuildImageEditRequest builds a single-candidate image generation request: the
// product image first, then the instruction text.
func BuildImageEditRequest(image listing.Image, prompt string, mode Mode, quality Quality) (*Request, error) {
	if len(image.Data) == 0 {
		return nil, fmt.Errorf("no image provided")
	}

	text, err := ImageEditPrompt(prompt, mode, quality)
	if err != nil {
		return nil, err
	}

	parts := []*genai.Part{
		{InlineData: &genai.Blob{Data: image.Data, MIMEType: image.MIMEType}},
		genai.NewPartFromText(text),
	}

	return &Request{
		Model:    DefaultImageModel,
		Contents: []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		Config: &genai.GenerateContentConfig{
			SystemInstruction:  genai.NewContentFromText(photographerInstruction, genai.RoleUser),
			ResponseModalities: []string{string(genai.ModalityImage), string(genai.ModalityText)},
			CandidateCount:     1,
		},
	}, nil
}

// ParseImageEditResponse collects every inline image across all candidates, in
// candidate then part order, and the first text part found. With no images it
// fails with a *PolicyBlockedError carrying that text, or ErrEmptyResult when
// there is no text either.
func ParseImageEditResponse(resp *genai.GenerateContentResponse) (*listing.GeneratedImage, error) {
	result := &listing.GeneratedImage{ImageURLs: []string{}}

	if resp != nil {
		for _, cand := range resp.Candidates {
			if cand == nil || cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part == nil {
					continue
				}
				if part.InlineData != nil {
					result.ImageURLs = append(result.ImageURLs, listing.DataURI(part.InlineData.MIMEType, part.InlineData.Data))
				} else if part.Text != "" && result.Text == nil {
					text := part.Text
					result.Text = &text
				}
			}
		}
	}

	if len(result.ImageURLs) == 0 {
		if result.Text != nil {
			return nil, &PolicyBlockedError{Explanation: *result.Text}
		}
		return nil, ErrEmptyResult
	}

	return result, nil
}

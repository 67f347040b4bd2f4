// photoshoot runs one AI photoshoot edit on a product photo and writes the
// generated images next to it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raine/kalamitra/internal/config"
	"github.com/raine/kalamitra/internal/listing"
	"github.com/raine/kalamitra/internal/llm"
	"github.com/raine/kalamitra/internal/studio"
)

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

func main() {
	var modeFlag, qualityFlag, prompt, outDir string
	flag.StringVar(&modeFlag, "mode", string(llm.ModeLifestyle), "Photoshoot mode: cleanup, background_replace, lifestyle, colorway, scene_lighting, pose_adjust")
	flag.StringVar(&qualityFlag, "quality", string(llm.QualityFast), "Image quality: fast or high")
	flag.StringVar(&prompt, "prompt", "", "What you want for this mode")
	flag.StringVar(&outDir, "out", ".", "Output directory")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-mode mode] [-quality fast|high] [-prompt text] [-out dir] <image-path>\n", os.Args[0])
		os.Exit(1)
	}

	mode, err := llm.ParseMode(modeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	quality, err := llm.ParseQuality(qualityFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if mode.RequiresPrompt() && strings.TrimSpace(prompt) == "" {
		fmt.Fprintln(os.Stderr, studio.MsgPromptRequired)
		os.Exit(1)
	}

	config.LoadEnvFile()
	apiKey := os.Getenv(config.EnvGeminiAPIKey)
	if apiKey == "" {
		fmt.Fprintf(os.Stderr, "%s is not set\n", config.EnvGeminiAPIKey)
		os.Exit(1)
	}

	imagePath := flag.Arg(0)
	data, err := os.ReadFile(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read image: %v\n", err)
		os.Exit(1)
	}
	image, err := studio.ValidateImage(data, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", studio.UserMessage(err))
		os.Exit(1)
	}

	ctx := context.Background()
	gemini, err := llm.NewGemini(ctx, llm.GeminiConfig{APIKey: apiKey, ImageModel: os.Getenv(config.EnvImageModel)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create Gemini client: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Running %s photoshoot (%s quality)...\n", mode.Label(), quality)
	result, err := gemini.EditImage(ctx, image, prompt, mode, quality)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", studio.UserMessage(err))
		os.Exit(1)
	}

	if result.Text != nil {
		fmt.Printf("\nModel note: %s\n\n", *result.Text)
	}

	base := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
	for i, uri := range result.ImageURLs {
		mimeType, img, err := listing.ParseDataURI(uri)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Skipping image %d: %v\n", i+1, err)
			continue
		}
		ext, ok := extensions[mimeType]
		if !ok {
			ext = ".img"
		}
		path := filepath.Join(outDir, fmt.Sprintf("%s-%s-%d%s", base, mode, i+1, ext))
		if err := os.WriteFile(path, img, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s (%d bytes)\n", path, len(img))
	}
}

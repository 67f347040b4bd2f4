// generate-listing drafts a priced product listing for a photo and prints it
// as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/raine/kalamitra/internal/config"
	"github.com/raine/kalamitra/internal/llm"
	"github.com/raine/kalamitra/internal/studio"
)

func main() {
	var story, notes, language string
	flag.StringVar(&story, "story", "", "Artisan's story or voice transcription")
	flag.StringVar(&notes, "notes", "", "Extra notes such as materials or size")
	flag.StringVar(&language, "lang", llm.DefaultLanguage, "Output language")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-story text] [-notes text] [-lang language] <image-path>\n", os.Args[0])
		os.Exit(1)
	}

	config.LoadEnvFile()
	apiKey := os.Getenv(config.EnvGeminiAPIKey)
	if apiKey == "" {
		fmt.Fprintf(os.Stderr, "%s is not set\n", config.EnvGeminiAPIKey)
		os.Exit(1)
	}

	data, err := os.ReadFile(flag.Arg(0))
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
	gemini, err := llm.NewGemini(ctx, llm.GeminiConfig{APIKey: apiKey, TextModel: os.Getenv(config.EnvTextModel)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create Gemini client: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Generating %s listing for %s (%d bytes)...\n", language, flag.Arg(0), len(data))
	l, err := gemini.GenerateListing(ctx, image, llm.ListingInput{
		Transcription: story,
		Notes:         notes,
		Language:      language,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", studio.UserMessage(err))
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(l, "", "  ")
	fmt.Println(string(out))
}

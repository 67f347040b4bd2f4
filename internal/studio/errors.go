package studio

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/raine/kalamitra/internal/llm"
)

var (
	// ErrNoListing is returned by operations that need a generated listing.
	ErrNoListing = errors.New("no listing has been generated yet")

	// ErrActionInProgress is returned when another AI or publish action is
	// still running in the same workspace.
	ErrActionInProgress = errors.New("another action is in progress")

	// ErrSuperseded is returned when a new upload replaced the image an action
	// was working on. The action's result is discarded.
	ErrSuperseded = errors.New("action superseded by a new upload")
)

// ValidationError is a problem with user input. It is shown as-is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

// User-facing messages
const (
	MsgUploadFirst        = "Please upload an image first."
	MsgUploadFirstListing = "Please upload an image in the 'AI Photoshoot' tab first."
	MsgConsentRequired    = "Please provide consent to use AI image generation."
	MsgPromptRequired     = "Please describe what you want for this mode."
	MsgPromptTooLong      = "Your prompt is too long. Please keep it under 1000 characters."
	MsgInvalidFileType    = "Invalid file type. Please upload a PNG, JPG, or WEBP."
	MsgFileTooLarge       = "File is too large. Please upload an image under 4MB."
	MsgTranscriptionLong  = "The transcription is too long. Please keep it under 2000 characters."
	MsgNotesTooLong       = "The notes are too long. Please keep them under 500 characters."
	MsgUnknownLanguage    = "Please choose one of the supported languages: English, Hindi, Bengali, Tamil."
	MsgEmptyChatMessage   = "Please type a message."
	MsgCreateListingFirst = "Please create a product listing first."
	MsgActionInProgress   = "Please wait, the previous request is still running."
	MsgSuperseded         = "A new image was uploaded, so the previous result was discarded."
	MsgEmptyResult        = "AI did not return any images and provided no explanation. This could be a temporary issue. Please try a different prompt."
	MsgInvalidFormat      = "The AI returned an invalid response format. Please try generating the listing again."
	MsgPolicyBlocked      = `Request blocked. The AI responded: "%s". This may be due to a safety policy violation. Please adjust your prompt.`
	MsgUnknownError       = "An unknown error occurred. Please try again."
)

// UserMessage renders an error from any studio operation as a message for the
// artisan.
func UserMessage(err error) string {
	var validation *ValidationError
	var blocked *llm.PolicyBlockedError
	var transport *llm.TransportError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return validation.Message
	case errors.As(err, &blocked):
		return fmt.Sprintf(MsgPolicyBlocked, blocked.Explanation)
	case errors.Is(err, llm.ErrEmptyResult):
		return MsgEmptyResult
	case errors.Is(err, llm.ErrInvalidResponseFormat):
		return MsgInvalidFormat
	case errors.Is(err, ErrNoListing):
		return MsgCreateListingFirst
	case errors.Is(err, ErrActionInProgress):
		return MsgActionInProgress
	case errors.Is(err, ErrSuperseded):
		return MsgSuperseded
	case errors.As(err, &transport):
		return capitalize(transport.Error())
	}
	return MsgUnknownError
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

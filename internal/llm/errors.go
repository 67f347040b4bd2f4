package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyResult means the image model returned neither images nor an explanation.
	ErrEmptyResult = errors.New("no images and no explanation in response")

	// ErrInvalidResponseFormat means the structured listing output could not be
	// parsed or lacked required fields. Callers should not retry automatically.
	ErrInvalidResponseFormat = errors.New("invalid listing response format")
)

// PolicyBlockedError is returned when the image model declined to produce images
// and explained itself in text.
type PolicyBlockedError struct {
	Explanation string // Model text, verbatim
}

func (e *PolicyBlockedError) Error() string {
	return "request blocked: " + e.Explanation
}

// TransportError wraps a failed call to the model service.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

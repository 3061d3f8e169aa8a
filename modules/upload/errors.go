package upload

import "errors"

var (
	ErrCapacityExceeded     = errors.New("image capacity exceeded")
	ErrFileTooLarge         = errors.New("file too large")
	ErrEmptyImages          = errors.New("no images uploaded")
	ErrEmptyPrompt          = errors.New("prompt is empty")
	ErrPromptTooLong        = errors.New("prompt too long")
	ErrGenerationInProgress = errors.New("generation already in progress")
	ErrNoPreviousGeneration = errors.New("no previous generation")
)

// ValidationError carries the user-facing message for a failed submission check.
type ValidationError struct {
	Kind    error
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Kind }

package ai

import "errors"

var (
	// ErrEmbeddingFailed is returned when the embedding provider fails or
	// returns an unusable response.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrGenerationFailed is returned when the generation provider fails.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrUnknownProvider is returned for an unrecognised provider name.
	ErrUnknownProvider = errors.New("unknown ai provider")
)

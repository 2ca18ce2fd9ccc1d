package chunker

import "errors"

// ErrInvalidConfig is returned when the chunk size or overlap are unusable.
// It signals a deployment misconfiguration, never bad user input.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

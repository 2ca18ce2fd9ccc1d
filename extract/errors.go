package extract

import "errors"

var (
	// ErrUnsupportedType is returned when no extractor is registered for a file type.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrMalformedFile is returned when a file cannot be parsed as its declared type.
	ErrMalformedFile = errors.New("malformed file")
)

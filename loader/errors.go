package loader

import "errors"

var (
	// ErrUnsupportedFormat indicates no loader is registered for a file extension.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrNoText indicates a document yielded no extractable text.
	ErrNoText = errors.New("no text found in document")
)

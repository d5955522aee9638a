package docstore

import "errors"

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned when Create targets an existing document.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrInvalidPath is returned for malformed document or collection paths.
	ErrInvalidPath = errors.New("invalid path")
	// ErrClosed is returned after the store has been closed.
	ErrClosed = errors.New("store closed")
)

package payloads

import "errors"

var (
	// ErrNotFound is returned when a payload file cannot be opened.
	ErrNotFound = errors.New("payloads: file not found")

	// ErrRead is returned when a payload file cannot be read.
	ErrRead = errors.New("payloads: read failed")
)

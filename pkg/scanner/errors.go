package scanner

import "errors"

var (
	// ErrNoProber is returned by New when Config.Prober is nil.
	ErrNoProber = errors.New("scanner: prober is required")

	// ErrNoEmitter is returned by New when Config.Emitter is nil.
	ErrNoEmitter = errors.New("scanner: emitter is required")
)

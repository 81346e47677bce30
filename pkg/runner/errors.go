package runner

import "errors"

// Sentinel errors for runner failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrInvalidConfig indicates a configuration that cannot start a scan,
	// such as a non-positive concurrency bound.
	ErrInvalidConfig = errors.New("runner: invalid configuration")
)

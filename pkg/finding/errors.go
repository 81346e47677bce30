package finding

import "errors"

// ErrAlreadyVerified is returned when a finding's verification status has
// already left Unverified.
var ErrAlreadyVerified = errors.New("finding: verification already recorded")

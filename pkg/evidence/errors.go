package evidence

import "errors"

// ErrPersist wraps every evidence write failure.
var ErrPersist = errors.New("evidence: persist failed")

// Package finding defines the record produced when a probe response reflects
// its payload.
package finding

import (
	"fmt"
	"sync"
	"time"
)

// Stage identifies which payload pass produced a finding.
type Stage uint8

const (
	StageSmoke Stage = iota + 1
	StageFull
)

func (s Stage) String() string {
	switch s {
	case StageSmoke:
		return "smoke"
	case StageFull:
		return "full"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Verification records the outcome of an optional higher-fidelity check.
type Verification uint8

const (
	Unverified Verification = iota
	Verified
	Suspect
)

func (v Verification) String() string {
	switch v {
	case Unverified:
		return "unverified"
	case Verified:
		return "verified"
	case Suspect:
		return "suspect"
	default:
		return fmt.Sprintf("verification(%d)", uint8(v))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Verification) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Context is where in the response document the payload landed.
type Context string

const (
	ContextUnknown   Context = "unknown"
	ContextHTML      Context = "html"
	ContextAttribute Context = "attribute"
	ContextScript    Context = "script"
	ContextStyle     Context = "style"
	ContextComment   Context = "comment"
)

// Finding is a textual reflection of Payload in the response to ProbeURL.
// ProbeURL is the uniqueness key. All fields are fixed at creation except
// the verification status, which moves once from Unverified via Verify.
type Finding struct {
	ProbeURL   string
	Payload    string
	Body       string
	Candidate  string
	Stage      Stage
	StatusCode int
	Context    Context
	FoundAt    time.Time

	mu           sync.Mutex
	verification Verification
}

// New creates an unverified finding stamped with the current time.
func New(probeURL, payload, body, candidate string, stage Stage) *Finding {
	return &Finding{
		ProbeURL:  probeURL,
		Payload:   payload,
		Body:      body,
		Candidate: candidate,
		Stage:     stage,
		Context:   ContextUnknown,
		FoundAt:   time.Now(),
	}
}

// Verification returns the current verification status.
func (f *Finding) Verification() Verification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verification
}

// Verify records the verifier outcome. Only the first transition away from
// Unverified is accepted; later calls return ErrAlreadyVerified.
func (f *Finding) Verify(confirmed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.verification != Unverified {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyVerified, f.ProbeURL, f.verification)
	}
	if confirmed {
		f.verification = Verified
	} else {
		f.verification = Suspect
	}
	return nil
}

// Record is the serializable view of a finding. The response body is left
// out; it lives in the evidence store.
type Record struct {
	ProbeURL     string    `json:"probe_url"`
	Payload      string    `json:"payload"`
	Candidate    string    `json:"candidate"`
	Stage        string    `json:"stage"`
	StatusCode   int       `json:"status_code,omitzero"`
	Context      string    `json:"context"`
	Verification string    `json:"verification"`
	FoundAt      time.Time `json:"found_at"`
}

// Record returns a snapshot suitable for JSON or templates.
func (f *Finding) Record() Record {
	return Record{
		ProbeURL:     f.ProbeURL,
		Payload:      f.Payload,
		Candidate:    f.Candidate,
		Stage:        f.Stage.String(),
		StatusCode:   f.StatusCode,
		Context:      string(f.Context),
		Verification: f.Verification().String(),
		FoundAt:      f.FoundAt,
	}
}

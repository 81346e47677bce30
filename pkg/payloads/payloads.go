// Package payloads loads the ordered payload sequences for the smoke and
// full stages.
package payloads

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed default.txt
var defaultList []byte

// Set is the pair of payload sequences a scan uses. Order is significant:
// payloads are tried in sequence and the first hit ends the stage.
type Set struct {
	Smoke []string
	Full  []string
}

// Empty reports whether neither stage has payloads.
func (s Set) Empty() bool { return len(s.Smoke) == 0 && len(s.Full) == 0 }

// Default returns the bundled payload list.
func Default() []string {
	out, _ := Read(bytes.NewReader(defaultList))
	return out
}

// Read parses one payload per line. Surrounding whitespace is trimmed and
// blank lines are skipped; every other line is a payload, including ones
// starting with "#".
func Read(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return out, nil
}

// Load reads a payload file. An empty path returns the bundled list.
func Load(path string) ([]string, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}
	defer f.Close()
	out, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// Smoke returns the first n payloads of list.
func Smoke(list []string, n int) []string {
	if n <= 0 || len(list) == 0 {
		return nil
	}
	if n > len(list) {
		n = len(list)
	}
	return append([]string(nil), list[:n]...)
}

// Options selects the payload sources for NewSet.
type Options struct {
	// FullFile is the payload list; empty means the bundled list
	FullFile string

	// SmokeFile is a dedicated smoke list; empty means the first
	// SmokeCount entries of the full list
	SmokeFile  string
	SmokeCount int

	// NoFull disables the full stage
	NoFull bool
}

// NewSet loads both sequences according to opts.
func NewSet(opts Options) (Set, error) {
	full, err := Load(opts.FullFile)
	if err != nil {
		return Set{}, err
	}

	var set Set
	if opts.SmokeFile != "" {
		if set.Smoke, err = Load(opts.SmokeFile); err != nil {
			return Set{}, err
		}
	} else {
		set.Smoke = Smoke(full, opts.SmokeCount)
	}
	if !opts.NoFull {
		set.Full = full
	}
	return set, nil
}

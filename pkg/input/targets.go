// Package input gathers candidate URLs from flags, list files and stdin.
package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNoTargets is returned when no source yields a target.
var ErrNoTargets = errors.New("input: no targets specified")

// maxLine bounds a single input line; archive URLs can be long.
const maxLine = 1 << 20

// TargetSource consolidates all target input methods.
type TargetSource struct {
	URLs     []string // From -u flags
	ListFile string   // From -l flag
	Stdin    bool     // Read piped stdin

	// Reader replaces os.Stdin when Stdin is set
	Reader io.Reader

	// Limit caps the number of targets returned; 0 means no cap
	Limit int
}

// Targets returns the deduplicated target list in input order. Blank lines
// and lines starting with "#" are skipped, and a missing scheme becomes
// https://.
func (ts *TargetSource) Targets() ([]string, error) {
	var targets []string
	seen := make(map[string]struct{})
	full := func() bool { return ts.Limit > 0 && len(targets) >= ts.Limit }

	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" || strings.HasPrefix(t, "#") || full() {
			return
		}
		if !strings.HasPrefix(t, "http://") && !strings.HasPrefix(t, "https://") {
			t = "https://" + t
		}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		targets = append(targets, t)
	}

	for _, u := range ts.URLs {
		add(u)
	}

	if ts.ListFile != "" {
		f, err := os.Open(ts.ListFile)
		if err != nil {
			return nil, fmt.Errorf("input: open list: %w", err)
		}
		err = eachLine(f, add)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("input: read %s: %w", ts.ListFile, err)
		}
	}

	if ts.Stdin {
		r := ts.Reader
		if r == nil {
			if !stdinPiped() {
				return targets, nil
			}
			r = os.Stdin
		}
		if err := eachLine(r, add); err != nil {
			return nil, fmt.Errorf("input: read stdin: %w", err)
		}
	}

	return targets, nil
}

// RequireTargets is Targets but fails with ErrNoTargets on an empty result.
func (ts *TargetSource) RequireTargets() ([]string, error) {
	targets, err := ts.Targets()
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	return targets, nil
}

func eachLine(r io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	return scanner.Err()
}

func stdinPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice == 0
}

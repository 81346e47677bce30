// Package evidence persists the response body behind each unique finding and
// the final list of reflecting probe URLs.
//
// Layout under the output directory:
//
//	evidence/<safe-probe-url>__resp.html   one per unique probe URL
//	xss_found_urls.txt                     sorted, newline-delimited
package evidence

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/zerofox/zerofox/pkg/defaults"
	"github.com/zerofox/zerofox/pkg/finding"
)

// Store durably persists batches of findings. It returns how many entries
// were written; a non-nil error describes the ones that were not.
type Store interface {
	Persist(ctx context.Context, batch []*finding.Finding) (int, error)
}

// FileStore writes one HTML artifact per finding.
type FileStore struct {
	dir string
}

// NewFileStore creates a store writing into dir/evidence.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: filepath.Join(dir, defaults.EvidenceDir)}
}

// Dir returns the evidence directory.
func (s *FileStore) Dir() string { return s.dir }

// Persist writes every finding in batch. A failed entry does not stop the
// rest of the batch.
func (s *FileStore) Persist(ctx context.Context, batch []*finding.Finding) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersist, err)
	}

	var (
		written int
		errs    []error
	)
	for _, f := range batch {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.write(f); err != nil {
			errs = append(errs, err)
			continue
		}
		written++
	}
	if len(errs) > 0 {
		return written, fmt.Errorf("%w: %w", ErrPersist, errors.Join(errs...))
	}
	return written, nil
}

func (s *FileStore) write(f *finding.Finding) error {
	path := s.Path(f.ProbeURL)
	var b strings.Builder
	b.Grow(len(f.Body) + len(f.Payload) + 20)
	b.WriteString("<!-- payload: ")
	b.WriteString(f.Payload)
	b.WriteString(" -->\n")
	b.WriteString(f.Body)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("%s: %w", f.ProbeURL, err)
	}
	return nil
}

// Path returns the artifact path for probeURL.
func (s *FileStore) Path(probeURL string) string {
	return filepath.Join(s.dir, SafeName(probeURL)+"__resp.html")
}

// SafeName maps s to a filesystem-safe stem: every byte outside
// [0-9A-Za-z._-] becomes "_" and the result is capped at
// defaults.MaxEvidenceName. When the mapping replaced anything or the name
// had to be cut, it ends in a murmur3 hash of the full input, so URLs that
// differ only in replaced characters still get distinct files.
func SafeName(s string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
	if safe == s && len(safe) <= defaults.MaxEvidenceName {
		return safe
	}
	suffix := fmt.Sprintf("_%08x", murmur3.Sum32([]byte(s)))
	if limit := defaults.MaxEvidenceName - len(suffix); len(safe) > limit {
		safe = safe[:limit]
	}
	return safe + suffix
}

// WriteHits writes the sorted, deduplicated probe URLs to dir/xss_found_urls.txt
// and returns the file path.
func WriteHits(dir string, hits []string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersist, err)
	}
	sorted := slices.Clone(hits)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	path := filepath.Join(dir, defaults.HitsFile)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersist, err)
	}
	w := bufio.NewWriter(f)
	for _, h := range sorted {
		w.WriteString(h)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return "", fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return path, nil
}

package evidence

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerofox/zerofox/pkg/defaults"
	"github.com/zerofox/zerofox/pkg/finding"
)

func TestSafeName(t *testing.T) {
	name := SafeName("http://t/search?q=%3Cx%3E")
	assert.True(t, strings.HasPrefix(name, "http___t_search_q_3Cx_3E_"), name)
	assert.Len(t, name, len("http___t_search_q_3Cx_3E")+9)
	assert.Regexp(t, `_[0-9a-f]{8}$`, name)

	assert.Equal(t, "a-b_c.d", SafeName("a-b_c.d"), "already safe names are kept")
	assert.Regexp(t, `^__[0-9a-f]{8}$`, SafeName("é"), "one underscore per rune")

	long1 := "http://t/?q=" + strings.Repeat("a", 300) + "1"
	long2 := "http://t/?q=" + strings.Repeat("a", 300) + "2"
	n1, n2 := SafeName(long1), SafeName(long2)
	assert.Len(t, n1, defaults.MaxEvidenceName)
	assert.NotEqual(t, n1, n2, "truncated names must not collide")
	assert.Equal(t, n1, SafeName(long1))
}

func TestSafeName_ReplacedCharactersStayDistinct(t *testing.T) {
	tests := [][2]string{
		{"http://t/a+b?q=1", "http://t/a_b?q=1"},
		{"http://t/?q=%3C", "http://t/?q=_3C"},
		{"http://t/?q=a b", "http://t/?q=a&b"},
	}
	for _, tt := range tests {
		a, b := SafeName(tt[0]), SafeName(tt[1])
		assert.NotEqual(t, a, b, "%s vs %s", tt[0], tt[1])
		assert.LessOrEqual(t, len(a), defaults.MaxEvidenceName)
	}
}

func TestSafeName_NearLimit(t *testing.T) {
	// a changed name just under the cap still fits once the hash is added
	s := "http://t/?q=" + strings.Repeat("a", defaults.MaxEvidenceName-14)
	require.LessOrEqual(t, len(s), defaults.MaxEvidenceName)
	name := SafeName(s)
	assert.Len(t, name, defaults.MaxEvidenceName)
	assert.Regexp(t, `_[0-9a-f]{8}$`, name)
}

func TestFileStore_Persist(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)

	f := finding.New("http://t/search?q=%3Cx%3E", "<x>", "<html><x></html>", "http://t/search?q=1", finding.StageSmoke)
	n, err := s.Persist(context.Background(), []*finding.Finding{f})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	path := s.Path(f.ProbeURL)
	assert.Equal(t, filepath.Join(dir, "evidence", SafeName(f.ProbeURL)+"__resp.html"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<!-- payload: <x> -->\n<html><x></html>", string(data))
}

func TestFileStore_PartialFailure(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	require.NoError(t, os.MkdirAll(s.Dir(), 0o755))

	// a directory squatting on the artifact path makes that one write fail
	bad := finding.New("http://t/?q=bad", "p", "b", "c", finding.StageSmoke)
	require.NoError(t, os.Mkdir(s.Path(bad.ProbeURL), 0o755))
	good := finding.New("http://t/?q=good", "p", "b", "c", finding.StageSmoke)

	n, err := s.Persist(context.Background(), []*finding.Finding{bad, good})
	assert.ErrorIs(t, err, ErrPersist)
	assert.Equal(t, 1, n)
	assert.FileExists(t, s.Path(good.ProbeURL))
}

func TestFileStore_EmptyBatch(t *testing.T) {
	n, err := NewFileStore(t.TempDir()).Persist(context.Background(), nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestWriteHits(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	path, err := WriteHits(dir, []string{"http://b/?q=1", "http://a/?q=1", "http://b/?q=1"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://a/?q=1\nhttp://b/?q=1\n", string(data))
	assert.Equal(t, defaults.HitsFile, filepath.Base(path))
}

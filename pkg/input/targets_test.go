package input

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargets_AllSources(t *testing.T) {
	list := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(list, []byte("# comment\nhttp://b.test/?q=1\n\n  http://a.test/?x=1  \n"), 0o644))

	ts := &TargetSource{
		URLs:     []string{"http://a.test/?x=1", "c.test/search?q=2"},
		ListFile: list,
		Stdin:    true,
		Reader:   strings.NewReader("http://d.test/?q=1\nhttp://b.test/?q=1\n"),
	}
	got, err := ts.Targets()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"http://a.test/?x=1",
		"https://c.test/search?q=2",
		"http://b.test/?q=1",
		"http://d.test/?q=1",
	}, got)
}

func TestTargets_Limit(t *testing.T) {
	ts := &TargetSource{
		Stdin:  true,
		Reader: strings.NewReader("http://1.test/\nhttp://1.test/\nhttp://2.test/\nhttp://3.test/\n"),
		Limit:  2,
	}
	got, err := ts.Targets()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://1.test/", "http://2.test/"}, got)
}

func TestTargets_LongLine(t *testing.T) {
	long := "http://t.test/?q=" + strings.Repeat("a", 200_000)
	ts := &TargetSource{Stdin: true, Reader: strings.NewReader(long + "\n")}
	got, err := ts.Targets()
	require.NoError(t, err)
	assert.Equal(t, []string{long}, got)
}

func TestTargets_MissingFile(t *testing.T) {
	ts := &TargetSource{ListFile: filepath.Join(t.TempDir(), "nope.txt")}
	_, err := ts.Targets()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRequireTargets(t *testing.T) {
	_, err := (&TargetSource{}).RequireTargets()
	assert.ErrorIs(t, err, ErrNoTargets)

	got, err := (&TargetSource{URLs: []string{"http://x/?a=1"}}).RequireTargets()
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

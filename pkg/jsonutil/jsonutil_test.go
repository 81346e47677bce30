package jsonutil

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	URL   string `json:"url"`
	Stage string `json:"stage"`
}

func TestEncoder_OneDocumentPerLine(t *testing.T) {
	var buf bytes.Buffer
	enc := NewStreamEncoder(&buf)

	require.NoError(t, enc.Encode(record{URL: "http://a/?q=1", Stage: "smoke"}))
	require.NoError(t, enc.Encode(record{URL: "http://b/?q=1", Stage: "full"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var got record
	require.NoError(t, Unmarshal([]byte(lines[1]), &got))
	assert.Equal(t, "full", got.Stage)
}

func TestEncoder_ConcurrentWritesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	enc := NewStreamEncoder(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = enc.Encode(record{URL: strings.Repeat("x", 200), Stage: "smoke"})
		}()
	}
	wg.Wait()

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var r record
		assert.NoError(t, Unmarshal([]byte(line), &r))
	}
}

func TestMarshalIndent(t *testing.T) {
	data, err := MarshalIndent(record{URL: "u", Stage: "s"}, "  ")
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"url\"")
}

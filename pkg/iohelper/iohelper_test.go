package iohelper

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBody_NilReader(t *testing.T) {
	body, err := ReadBody(nil, 10)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestReadBody_RespectsLimit(t *testing.T) {
	body, err := ReadBody(strings.NewReader(strings.Repeat("x", 1000)), 100)
	require.NoError(t, err)
	assert.Len(t, body, 100)
}

type trackingCloser struct {
	io.Reader
	closed bool
}

func (c *trackingCloser) Close() error {
	c.closed = true
	return nil
}

func TestDrainAndClose(t *testing.T) {
	rc := &trackingCloser{Reader: strings.NewReader("leftover")}
	assert.NoError(t, DrainAndClose(rc))
	assert.True(t, rc.closed)
	assert.NoError(t, DrainAndClose(nil))
}

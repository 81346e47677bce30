// Package iohelper provides helpers for safely reading and releasing HTTP
// response bodies.
package iohelper

import (
	"io"
)

// drainLimit bounds how much unread body is discarded before close so a
// hostile server cannot pin a worker.
const drainLimit = 64 * 1024

// ReadBody reads from r up to maxSize bytes.
// If r is nil, returns empty slice and no error.
func ReadBody(r io.Reader, maxSize int64) ([]byte, error) {
	if r == nil {
		return []byte{}, nil
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// DrainAndClose reads any remaining data from r and closes it if it's a ReadCloser.
// This lets the connection return to the keep-alive pool.
// Always returns nil error to allow use in defer.
func DrainAndClose(r io.Reader) error {
	if r == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(r, drainLimit))
	if rc, ok := r.(io.ReadCloser); ok {
		rc.Close()
	}
	return nil
}

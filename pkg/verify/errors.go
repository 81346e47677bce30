package verify

import "errors"

var (
	// ErrNoBrowser is returned when no Chrome or Chromium binary is found.
	ErrNoBrowser = errors.New("verify: no chrome or chromium binary found")

	// ErrLaunch is returned when the browser process fails to start.
	ErrLaunch = errors.New("verify: browser launch failed")

	// ErrClosed is returned by Verify after Close.
	ErrClosed = errors.New("verify: browser closed")
)

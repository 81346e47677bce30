package report

import "errors"

var (
	// ErrOpen is returned when a reporter cannot open its output.
	ErrOpen = errors.New("report: open output")

	// ErrTemplate is returned when a summary template fails to parse.
	ErrTemplate = errors.New("report: invalid template")

	// ErrListen is returned when the metrics server cannot bind its address.
	ErrListen = errors.New("report: metrics listen")
)

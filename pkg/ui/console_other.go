//go:build !windows

package ui

// PrepareConsole is a no-op outside Windows.
func PrepareConsole() {}

//go:build !windows

package verify

import (
	"os"

	"golang.org/x/sys/unix"
)

// killProcessTree kills Chrome together with its helper processes.
// proc.Kill alone leaves renderer and GPU children running.
func killProcessTree(proc *os.Process) {
	if proc == nil {
		return
	}
	// chromedp starts Chrome in its own process group, so the group ID is the PID.
	if err := unix.Kill(-proc.Pid, unix.SIGKILL); err != nil {
		_ = proc.Kill()
	}
}

//go:build windows

package verify

import (
	"os"
	"os/exec"
	"strconv"
)

// killProcessTree kills Chrome together with its helper processes.
func killProcessTree(proc *os.Process) {
	if proc == nil {
		return
	}
	if err := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(proc.Pid)).Run(); err != nil {
		_ = proc.Kill()
	}
}

//go:build !windows

package cmd

import (
	"os"
	"syscall"
)

// shutdownSignals are the signals that trigger a graceful stop.
func shutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// isRunning reports whether pid names a live process. Signal 0 probes
// without delivering anything.
func isRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// requestStop asks pid to shut down gracefully.
func requestStop(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}

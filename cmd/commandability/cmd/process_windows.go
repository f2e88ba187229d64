//go:build windows

package cmd

import (
	"os"

	"golang.org/x/sys/windows"
)

// stillActive is the exit code GetExitCodeProcess reports for a live process.
const stillActive = 259

// shutdownSignals are the signals that trigger a graceful stop. Windows
// only delivers os.Interrupt reliably.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// isRunning reports whether pid names a live process.
func isRunning(pid int) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var code uint32
	if err := windows.GetExitCodeProcess(handle, &code); err != nil {
		return false
	}
	return code == stillActive
}

// requestStop terminates pid. There is no SIGTERM on Windows.
func requestStop(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

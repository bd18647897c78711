//go:build !windows

package runner

import (
	"os/exec"
	"syscall"
)

// gracefulCancel sends SIGINT to the child, giving it a chance to exit
// cleanly before cmd.WaitDelay's grace period elapses and the standard
// library force-kills it. Grounded on the teacher's setGracefulShutdown
// (pk/exec_unix.go).
func gracefulCancel(cmd *exec.Cmd) error {
	return cmd.Process.Signal(syscall.SIGINT)
}

//go:build windows

package runner

import "os/exec"

// gracefulCancel kills the child directly: Windows has no SIGINT
// equivalent deliverable through os.Process.Signal, so there is no
// cooperative-shutdown step to offer before WaitDelay would force a kill
// anyway. Grounded on the teacher's setGracefulShutdown fallback
// (pk/exec_other.go).
func gracefulCancel(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

//go:build windows

package tool

import "os/exec"

func setProcAttributes(cmd *exec.Cmd) {}

// terminateProcess kills the immediate child. Windows has no POSIX process
// groups; descendants are reaped when the console session ends.
func terminateProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

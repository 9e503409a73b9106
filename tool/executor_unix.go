//go:build unix

package tool

import (
	"os/exec"
	"syscall"
)

// setProcAttributes places the child in its own process group so the whole
// tree can be signaled at once.
func setProcAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateProcess kills the child's process group. Interpreters such as
// bash and python routinely fork, and killing only the leader would leave
// grandchildren running past the timeout.
func terminateProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		return cmd.Process.Kill()
	}
	return syscall.Kill(-pgid, syscall.SIGKILL)
}

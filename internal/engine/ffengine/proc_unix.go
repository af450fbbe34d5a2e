//go:build unix

package ffengine

import (
	"errors"
	"os/exec"
	"syscall"
)

func setGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// signalGroup delivers sig to the process group led by cmd. An exited
// process is not an error.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return err
	}
	if err := syscall.Kill(-pgid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

func terminateGroup(cmd *exec.Cmd) error { return signalGroup(cmd, syscall.SIGTERM) }
func killGroup(cmd *exec.Cmd) error      { return signalGroup(cmd, syscall.SIGKILL) }
func suspendGroup(cmd *exec.Cmd) error   { return signalGroup(cmd, syscall.SIGSTOP) }
func resumeGroup(cmd *exec.Cmd) error    { return signalGroup(cmd, syscall.SIGCONT) }

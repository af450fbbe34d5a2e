//go:build !unix

package ffengine

import (
	"errors"
	"os"
	"os/exec"
)

var errNoSuspend = errors.New("pausing a running decoder is not supported on this platform")

func setGroup(*exec.Cmd) {}

func terminateGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(os.Interrupt)
}

func killGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func suspendGroup(*exec.Cmd) error { return errNoSuspend }
func resumeGroup(*exec.Cmd) error  { return errNoSuspend }

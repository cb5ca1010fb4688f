//go:build unix

package supervisor

import (
	"fmt"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/watchexec/watchexec/internal/models"
)

// setGrouping puts the child in its own process group or session so signals
// reach the whole tree. With GroupNone the child shares ours and signals hit
// only the immediate process.
func setGrouping(cmd *exec.Cmd, grouping Grouping) {
	switch grouping {
	case GroupSession:
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	case GroupNone:
	default:
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
}

// processGroup resolves the child's group id after start. With Setpgid or
// Setsid the group leader is the child itself.
func processGroup(cmd *exec.Cmd) int {
	if cmd.Process == nil {
		return 0
	}
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil {
		return cmd.Process.Pid
	}
	return pgid
}

// deliverSignal sends sig to the child, targeting the group when one was
// created.
func deliverSignal(c *child, grouping Grouping, sig models.Signal) error {
	sys, ok := sig.Unix()
	if !ok {
		return models.NewError(models.KindProcess, "signal-unsupported",
			fmt.Errorf("signal %q has no platform equivalent", sig))
	}
	if c.cmd.Process == nil {
		return nil
	}

	if grouping == GroupNone || c.pgid <= 0 {
		return c.cmd.Process.Signal(sys)
	}
	return unix.Kill(-c.pgid, sys)
}

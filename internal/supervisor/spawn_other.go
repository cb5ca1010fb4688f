//go:build !unix

package supervisor

import (
	"fmt"
	"os/exec"

	"github.com/watchexec/watchexec/internal/models"
)

func setGrouping(cmd *exec.Cmd, grouping Grouping) {}

func processGroup(cmd *exec.Cmd) int {
	if cmd.Process == nil {
		return 0
	}
	return cmd.Process.Pid
}

// deliverSignal falls back to Kill for terminal signals; other signals are
// not deliverable on this platform.
func deliverSignal(c *child, grouping Grouping, sig models.Signal) error {
	if c.cmd.Process == nil {
		return nil
	}
	switch sig {
	case models.SigKill, models.SigTerminate, models.SigInterrupt:
		return c.cmd.Process.Kill()
	default:
		return models.NewError(models.KindProcess, "signal-unsupported",
			fmt.Errorf("signal %q not deliverable on this platform", sig))
	}
}

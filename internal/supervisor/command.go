// Package supervisor launches, signals, waits on, and terminates child
// processes. Each supervised command is a Job driven by a strictly ordered
// inbox of control orders.
package supervisor

import (
	"fmt"
	"sort"

	"github.com/watchexec/watchexec/internal/models"
)

// Grouping selects how the child is isolated for signalling purposes.
type Grouping string

// Grouping modes.
const (
	GroupProcessGroup Grouping = "group"
	GroupSession      Grouping = "session"
	GroupNone         Grouping = "none"
)

// Shell describes the shell a command string is handed to.
type Shell struct {
	Program string
	Flags   []string
}

// DefaultShell returns the POSIX shell invocation, `sh -c`, on every
// platform.
func DefaultShell() Shell {
	return Shell{Program: "sh", Flags: []string{"-c"}}
}

// Command describes one child process to launch. Either Exec is set (direct
// argv) or Shell+ShellCommand (a command string run through a shell).
type Command struct {
	// Exec is the direct program path plus argument vector.
	Exec []string

	// Shell and ShellCommand select shell mode.
	Shell        *Shell
	ShellCommand string

	Workdir  string
	Env      map[string]string
	Grouping Grouping
}

// Validate rejects inconsistent command descriptions.
func (c Command) Validate() error {
	direct := len(c.Exec) > 0
	shell := c.Shell != nil || c.ShellCommand != ""
	switch {
	case direct && shell:
		return models.NewError(models.KindConfiguration, "command-ambiguous",
			fmt.Errorf("command has both a direct program and a shell spec"))
	case !direct && c.ShellCommand == "":
		return models.NewError(models.KindConfiguration, "command-empty",
			fmt.Errorf("no command given"))
	case shell && c.Shell == nil:
		return models.NewError(models.KindConfiguration, "command-no-shell",
			fmt.Errorf("shell command string without a shell"))
	}
	return nil
}

// Argv resolves the concrete argument vector to spawn.
func (c Command) Argv() []string {
	if len(c.Exec) > 0 {
		return c.Exec
	}
	argv := append([]string{c.Shell.Program}, c.Shell.Flags...)
	return append(argv, c.ShellCommand)
}

// String renders the command for logs.
func (c Command) String() string {
	if len(c.Exec) > 0 {
		return fmt.Sprintf("%v", c.Exec)
	}
	return fmt.Sprintf("%s %v %q", c.Shell.Program, c.Shell.Flags, c.ShellCommand)
}

// sortedEnv flattens an environment map into deterministic KEY=VALUE form.
func sortedEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// Package commands is the CLI surface: one root command mapping the flag set
// onto the orchestrator's configuration.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/watchexec/watchexec/internal/models"
	"github.com/watchexec/watchexec/internal/orchestrator"
	"github.com/watchexec/watchexec/internal/output"
)

// flagValues collects every CLI option before validation.
type flagValues struct {
	// watching
	watch             []string
	watchNonRecursive []string
	watchFile         string
	pollInterval      time.Duration
	projectOrigin     string

	// filtering
	exts          []string
	filters       []string
	filterFiles   []string
	ignores       []string
	ignoreFiles   []string
	filterProgs   []string
	fsEvents      []string
	noMeta        bool
	ignoreNothing bool

	// action
	onBusyUpdate   string
	restart        bool
	signal         string
	stopSignal     string
	stopTimeout    time.Duration
	mapSignals     []string
	debounce       time.Duration
	delayRun       time.Duration
	postpone       bool
	interactive    bool
	stdinQuit      bool
	onlyEmitEvents bool
	once           bool

	// command
	shell          string
	noShell        bool
	envs           []string
	workdir        string
	sockets        []string
	wrapProcess    string
	noProcessGroup bool

	// output
	clear        string
	colorMode    string
	quiet        bool
	bell         bool
	timings      bool
	printEvents  bool
	emitEventsTo string
	logFile      string
	verbose      int
}

// Execute runs the CLI and returns the process exit code.
func Execute(version string) int {
	args, err := ExpandArgfiles(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	var (
		flags    flagValues
		exitCode int
	)

	root := &cobra.Command{
		Use:           "watchexec [flags] <command> [args...]",
		Short:         "Execute commands when watched files change",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(flags.verbose, flags.logFile)

			cfg, err := buildConfig(&flags, args)
			if err != nil {
				return err
			}

			out := output.New(os.Stdout, os.Stderr, cfg.Output)
			w := orchestrator.New(orchestrator.NewLive(*cfg), out, slog.Default())

			code, err := w.Run(context.Background())
			if err != nil {
				return err
			}
			exitCode = code
			return nil
		},
	}

	registerFlags(root, &flags)
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		reportError(err)
		return 2
	}
	return exitCode
}

func registerFlags(root *cobra.Command, f *flagValues) {
	fl := root.Flags()
	fl.SetInterspersed(false)

	// watching
	fl.StringArrayVarP(&f.watch, "watch", "w", nil, "Watch a path recursively (repeatable; default: current directory)")
	fl.StringArrayVarP(&f.watchNonRecursive, "watch-non-recursive", "W", nil, "Watch a path non-recursively (repeatable)")
	fl.StringVar(&f.watchFile, "watch-file", "", "Watch the paths listed in this file, one per line ('-' for stdin)")
	fl.DurationVar(&f.pollInterval, "poll", 0, "Poll for changes at this interval instead of using native notifications")
	fl.StringVar(&f.projectOrigin, "project-origin", "", "Override the project origin directory")

	// filtering
	fl.StringSliceVarP(&f.exts, "exts", "e", nil, "Only run when files with these extensions change (comma separated)")
	fl.StringArrayVarP(&f.filters, "filter", "f", nil, "Only run when paths matching this glob change (repeatable)")
	fl.StringArrayVar(&f.filterFiles, "filter-file", nil, "Load allow globs from this file (repeatable)")
	fl.StringArrayVarP(&f.ignores, "ignore", "i", nil, "Don't run when paths matching this glob change (repeatable)")
	fl.StringArrayVar(&f.ignoreFiles, "ignore-file", nil, "Load ignore globs from this file (repeatable)")
	fl.StringArrayVar(&f.filterProgs, "filter-prog", nil, "Reject events for which this program exits non-zero (repeatable)")
	fl.StringSliceVar(&f.fsEvents, "fs-events", nil, "Only react to these filesystem event kinds (access, create, remove, rename, modify, metadata)")
	fl.BoolVar(&f.noMeta, "no-meta", false, "Shorthand for dropping metadata events from --fs-events")
	fl.BoolVar(&f.ignoreNothing, "ignore-nothing", false, "Disable every ignore glob and ignore file")

	// action
	fl.StringVarP(&f.onBusyUpdate, "on-busy-update", "o", "do-nothing", "What to do when events arrive while the command runs: queue, do-nothing, restart, signal")
	fl.BoolVarP(&f.restart, "restart", "r", false, "Shorthand for --on-busy-update=restart")
	fl.StringVarP(&f.signal, "signal", "s", "", "Send this signal on busy update instead (implies --on-busy-update=signal)")
	fl.StringVar(&f.stopSignal, "stop-signal", "TERM", "Signal sent to stop the command")
	fl.DurationVar(&f.stopTimeout, "stop-timeout", 10*time.Second, "Grace period before a stop escalates to a force-kill")
	fl.StringArrayVar(&f.mapSignals, "map-signal", nil, "Rewrite received signals before delivery, as SRC:DST (repeatable; empty DST discards)")
	fl.DurationVarP(&f.debounce, "debounce", "d", 50*time.Millisecond, "Quiet period before a batch of events is released")
	fl.DurationVar(&f.delayRun, "delay-run", 0, "Sleep before each command start")
	fl.BoolVarP(&f.postpone, "postpone", "p", false, "Don't run the command until the first accepted change")
	fl.BoolVar(&f.interactive, "interactive", false, "Enable single-key commands on stdin (r restart, p pause, q quit)")
	fl.BoolVar(&f.stdinQuit, "stdin-quit", false, "Exit when stdin reaches EOF")
	fl.BoolVar(&f.onlyEmitEvents, "only-emit-events", false, "Emit accepted events to stdout instead of running a command")
	fl.BoolVarP(&f.once, "once", "1", false, "Exit with the command's code after its first completion")

	// command
	fl.StringVar(&f.shell, "shell", "", "Shell to run the command with, or 'none' for direct execution")
	fl.BoolVarP(&f.noShell, "no-shell", "n", false, "Shorthand for --shell=none")
	fl.StringArrayVarP(&f.envs, "env", "E", nil, "Extra environment variable for the command, as KEY=VALUE (repeatable)")
	fl.StringVar(&f.workdir, "workdir", "", "Working directory for the command")
	fl.StringArrayVar(&f.sockets, "socket", nil, "Listening socket to pass to the command, as PORT or TYPE::ADDR (repeatable)")
	fl.StringVar(&f.wrapProcess, "wrap-process", "group", "Process isolation mode: group, session, none")
	fl.BoolVar(&f.noProcessGroup, "no-process-group", false, "Deprecated alias for --wrap-process=none")
	_ = fl.MarkDeprecated("no-process-group", "use --wrap-process=none")

	// output
	fl.StringVarP(&f.clear, "clear", "c", "", "Clear the screen before each run ('clear' or 'reset')")
	fl.Lookup("clear").NoOptDefVal = "clear"
	fl.StringVar(&f.colorMode, "color", "auto", "Colourise status output: auto, always, never")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "Don't print watchexec's own status messages")
	fl.BoolVar(&f.bell, "bell", false, "Ring the terminal bell on command completion")
	fl.BoolVar(&f.timings, "timings", false, "Log command start/stop durations")
	fl.BoolVar(&f.printEvents, "print-events", false, "Log every accepted event")
	fl.StringVar(&f.emitEventsTo, "emit-events-to", "none", "Describe triggering events to the command: none, environment, stdio, json-stdio, file, json-file")
	fl.StringVar(&f.logFile, "log-file", "", "Write logs to this file instead of stderr")
	fl.CountVarP(&f.verbose, "verbose", "v", "Increase log verbosity (repeatable)")
}

// setupLogging installs the slog default: JSON on stderr (or the log file),
// level raised by -v.
func setupLogging(verbose int, logFile string) {
	var sink io.Writer = os.Stderr
	if logFile != "" {
		if f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			sink = f
		} else {
			fmt.Fprintf(os.Stderr, "failed to open log file, logging to stderr: %v\n", err)
		}
	}

	level := slog.LevelWarn
	switch {
	case verbose >= 2:
		level = slog.LevelDebug
	case verbose == 1:
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: level})))
}

// reportError renders a failure, surfacing diagnostic context and
// remediation hints when present.
func reportError(err error) {
	fmt.Fprintln(os.Stderr, "watchexec:", err)

	var diag models.Diagnostic
	if errors.As(err, &diag) {
		for k, v := range diag.Context() {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", k, v)
		}
		if hint := diag.SuggestedAction(); hint != "" {
			fmt.Fprintf(os.Stderr, "  hint: %s\n", hint)
		}
	}
}

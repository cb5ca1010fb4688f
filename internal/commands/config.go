package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/watchexec/watchexec/internal/action"
	"github.com/watchexec/watchexec/internal/filter"
	"github.com/watchexec/watchexec/internal/models"
	"github.com/watchexec/watchexec/internal/orchestrator"
	"github.com/watchexec/watchexec/internal/output"
	"github.com/watchexec/watchexec/internal/source"
	"github.com/watchexec/watchexec/internal/supervisor"
)

// buildConfig validates the flag set and assembles the runtime
// configuration. Every failure is a configuration diagnostic.
func buildConfig(f *flagValues, cmdArgs []string) (*orchestrator.Config, error) {
	cfg := &orchestrator.Config{}

	if err := buildWatching(f, cfg); err != nil {
		return nil, err
	}
	if err := buildFiltering(f, cfg); err != nil {
		return nil, err
	}
	if err := buildAction(f, cfg); err != nil {
		return nil, err
	}
	if err := buildCommand(f, cfg, cmdArgs); err != nil {
		return nil, err
	}

	mode, err := supervisor.ParseEmitMode(f.emitEventsTo)
	if err != nil {
		return nil, err
	}
	cfg.EmitMode = mode
	cfg.Sockets = f.sockets
	cfg.PrintEvents = f.printEvents
	cfg.Debounce = f.debounce
	cfg.Keyboard = source.KeyboardConfig{
		Interactive: f.interactive,
		StdinQuit:   f.stdinQuit,
	}
	cfg.Output = output.Options{
		Quiet:   f.quiet,
		Bell:    f.bell,
		Timings: f.timings,
		Color:   output.ColorMode(f.colorMode),
	}

	return cfg, nil
}

func buildWatching(f *flagValues, cfg *orchestrator.Config) error {
	var roots []filter.WatchedPath

	add := func(path string, recursive bool) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			return models.NewError(models.KindConfiguration, "watch-path",
				fmt.Errorf("resolving watch path %q: %w", path, err))
		}
		roots = append(roots, filter.WatchedPath{Path: abs, Recursive: recursive})
		return nil
	}

	for _, p := range f.watch {
		if err := add(p, true); err != nil {
			return err
		}
	}
	for _, p := range f.watchNonRecursive {
		if err := add(p, false); err != nil {
			return err
		}
	}
	if f.watchFile != "" {
		paths, err := ReadWatchFile(f.watchFile)
		if err != nil {
			return err
		}
		for _, p := range paths {
			if err := add(p, true); err != nil {
				return err
			}
		}
	}
	if len(roots) == 0 {
		if err := add(".", true); err != nil {
			return err
		}
	}

	origin := f.projectOrigin
	if origin == "" {
		origin = roots[0].Path
	}
	abs, err := filepath.Abs(origin)
	if err != nil {
		return models.NewError(models.KindConfiguration, "project-origin", err)
	}

	cfg.Roots = roots
	cfg.PollInterval = f.pollInterval
	cfg.Filter.Origin = abs
	cfg.Filter.Roots = roots
	return nil
}

func buildFiltering(f *flagValues, cfg *orchestrator.Config) error {
	if len(f.fsEvents) > 0 {
		kinds := make(map[models.FSKind]bool)
		for _, name := range f.fsEvents {
			switch k := models.FSKind(strings.ToLower(strings.TrimSpace(name))); k {
			case models.FSAccess, models.FSCreate, models.FSRemove,
				models.FSRename, models.FSModify, models.FSMetadata:
				kinds[k] = true
			default:
				return models.NewError(models.KindConfiguration, "fs-events",
					fmt.Errorf("unknown filesystem event kind %q", name))
			}
		}
		cfg.Filter.Kinds = kinds
	}
	if f.noMeta {
		if cfg.Filter.Kinds == nil {
			cfg.Filter.Kinds = filter.DefaultKinds()
		}
		cfg.Filter.Kinds[models.FSMetadata] = false
	}

	for _, ext := range f.exts {
		cfg.Filter.Extensions = append(cfg.Filter.Extensions,
			strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}
	cfg.Filter.AllowGlobs = f.filters

	for _, path := range f.filterFiles {
		file, err := filter.LoadIgnoreFile(path)
		if err != nil {
			return models.NewError(models.KindConfiguration, "filter-file",
				fmt.Errorf("loading filter file %s: %w", path, err))
		}
		for _, rule := range file.Rules {
			if rule.Negate {
				continue
			}
			cfg.Filter.AllowGlobs = append(cfg.Filter.AllowGlobs, rule.Pattern)
		}
	}

	if !f.ignoreNothing {
		cfg.Filter.IgnoreGlobs = f.ignores
		for _, path := range f.ignoreFiles {
			file, err := filter.LoadIgnoreFile(path)
			if err != nil {
				return models.NewError(models.KindConfiguration, "ignore-file",
					fmt.Errorf("loading ignore file %s: %w", path, err))
			}
			cfg.Filter.IgnoreFiles = append(cfg.Filter.IgnoreFiles, file)
		}
	}

	for i, src := range f.filterProgs {
		name := fmt.Sprintf("filter-prog-%d", i+1)
		prog, err := filter.CompileProgram(name, src)
		if err != nil {
			return err
		}
		cfg.Filter.Programs = append(cfg.Filter.Programs, prog)
	}
	return nil
}

func buildAction(f *flagValues, cfg *orchestrator.Config) error {
	busy := action.BusyMode(f.onBusyUpdate)
	switch busy {
	case action.BusyQueue, action.BusyDoNothing, action.BusyRestart, action.BusySignal:
	default:
		return models.NewError(models.KindConfiguration, "on-busy-update",
			fmt.Errorf("unknown on-busy-update mode %q", f.onBusyUpdate))
	}
	if f.restart {
		busy = action.BusyRestart
	}

	var busySignal models.Signal
	if f.signal != "" {
		sig, err := models.ParseSignal(f.signal)
		if err != nil {
			return err
		}
		busySignal = sig
		busy = action.BusySignal
	}

	stopSignal, err := models.ParseSignal(f.stopSignal)
	if err != nil {
		return err
	}

	signalMap := make(map[models.Signal]models.Signal)
	for _, spec := range f.mapSignals {
		from, to, err := models.ParseSignalMapping(spec)
		if err != nil {
			return err
		}
		signalMap[from] = to
	}

	clearMode := action.ClearNone
	switch f.clear {
	case "", "none":
	case "clear":
		clearMode = action.ClearScreen
	case "reset":
		clearMode = action.ClearReset
	default:
		return models.NewError(models.KindConfiguration, "clear-mode",
			fmt.Errorf("unknown clear mode %q", f.clear))
	}

	cfg.Action = action.Config{
		OnBusy:         busy,
		BusySignal:     busySignal,
		SignalMap:      signalMap,
		DelayRun:       f.delayRun,
		Postpone:       f.postpone,
		Clear:          clearMode,
		Once:           f.once,
		OnlyEmitEvents: f.onlyEmitEvents,
		StdinQuit:      f.stdinQuit,
	}
	cfg.StopSignal = stopSignal
	cfg.StopTimeout = f.stopTimeout
	return nil
}

func buildCommand(f *flagValues, cfg *orchestrator.Config, cmdArgs []string) error {
	if len(cmdArgs) == 0 {
		if f.onlyEmitEvents {
			return nil
		}
		return models.NewError(models.KindConfiguration, "command-missing",
			fmt.Errorf("no command given; pass one after the flags (or after --)"))
	}

	env, err := parseEnvPairs(f.envs)
	if err != nil {
		return err
	}

	grouping := supervisor.Grouping(f.wrapProcess)
	switch grouping {
	case supervisor.GroupProcessGroup, supervisor.GroupSession, supervisor.GroupNone:
	default:
		return models.NewError(models.KindConfiguration, "wrap-process",
			fmt.Errorf("unknown wrap-process mode %q", f.wrapProcess))
	}
	if f.noProcessGroup {
		grouping = supervisor.GroupNone
	}

	cmd := supervisor.Command{
		Workdir:  f.workdir,
		Env:      env,
		Grouping: grouping,
	}

	shell := f.shell
	if f.noShell {
		shell = "none"
	}
	switch {
	case shell == "none":
		cmd.Exec = cmdArgs
	default:
		prog := shell
		flags := []string{"-c"}
		if prog == "" {
			def := supervisor.DefaultShell()
			prog, flags = def.Program, def.Flags
		}
		cmd.Shell = &supervisor.Shell{Program: prog, Flags: flags}
		cmd.ShellCommand = strings.Join(cmdArgs, " ")
	}

	if err := cmd.Validate(); err != nil {
		return err
	}
	cfg.Command = cmd
	return nil
}

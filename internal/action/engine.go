package action

import (
	"log/slog"
	"time"

	"github.com/watchexec/watchexec/internal/debounce"
	"github.com/watchexec/watchexec/internal/models"
)

// BusyMode selects what a fresh batch does to an already-running command.
type BusyMode string

// On-busy-update modes.
const (
	BusyQueue     BusyMode = "queue"
	BusyDoNothing BusyMode = "do-nothing"
	BusyRestart   BusyMode = "restart"
	BusySignal    BusyMode = "signal"
)

// ClearMode selects terminal clearing before each run.
type ClearMode string

// Clear modes.
const (
	ClearNone   ClearMode = "none"
	ClearScreen ClearMode = "clear"
	ClearReset  ClearMode = "reset"
)

// Config is the engine's live policy.
type Config struct {
	OnBusy     BusyMode
	BusySignal models.Signal // delivered in BusySignal mode

	// SignalMap rewrites received signals before delivery. A mapping to
	// SigNone discards the delivery.
	SignalMap map[models.Signal]models.Signal

	DelayRun time.Duration
	Postpone bool
	Clear    ClearMode

	// Once exits with the child's code after the first completion.
	Once bool

	// OnlyEmitEvents suppresses command handling entirely; batches are
	// emitted by the orchestrator instead.
	OnlyEmitEvents bool

	StdinQuit bool
}

// Engine turns batches into outcomes. It is driven from a single goroutine;
// the pause flag is plain state.
type Engine struct {
	cfg    Config
	paused bool
	log    *slog.Logger
}

// New builds an engine. Zero-value modes fall back to defaults.
func New(cfg Config, log *slog.Logger) *Engine {
	if cfg.OnBusy == "" {
		cfg.OnBusy = BusyDoNothing
	}
	if cfg.BusySignal == models.SigNone {
		cfg.BusySignal = models.SigTerminate
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{cfg: cfg, log: log}
}

// Reconfigure swaps the policy at a safe point (between batches).
func (e *Engine) Reconfigure(cfg Config) {
	paused := e.paused
	*e = *New(cfg, e.log)
	e.paused = paused
}

// Paused reports whether the engine is currently ignoring batches.
func (e *Engine) Paused() bool { return e.paused }

// Startup returns the implicit initial outcome: a Start unless postponed.
func (e *Engine) Startup() Outcome {
	if e.cfg.Postpone || e.cfg.OnlyEmitEvents {
		return DoNothing{}
	}
	return e.start()
}

// start builds the decorated Start outcome: screen clearing and the
// configured startup delay are applied to every start.
func (e *Engine) start() Outcome {
	var start Outcome = Start{}
	if e.cfg.DelayRun > 0 {
		start = Sequence{A: Sleep{Duration: e.cfg.DelayRun}, B: start}
	}
	if e.cfg.Clear != ClearNone && e.cfg.Clear != "" {
		start = Both{A: Clear{Reset: e.cfg.Clear == ClearReset}, B: start}
	}
	return start
}

// Decide maps one batch to an outcome. It is invoked once per batch and does
// not know whether the command is running: busy-dependent choices are left
// as IfRunning nodes for Resolve to settle.
func (e *Engine) Decide(batch debounce.Batch) Outcome {
	var outcomes []Outcome
	triggering := false

	for _, ev := range batch.Events {
		for _, sig := range ev.Signals() {
			outcomes = append(outcomes, e.decideSignal(sig))
		}
		for _, key := range ev.Keyboards() {
			outcomes = append(outcomes, e.decideKey(key))
		}
		if len(ev.Completions()) > 0 {
			if e.cfg.Once {
				outcomes = append(outcomes, Exit{})
			}
			continue
		}
		if ev.HasSource(models.SourceFilesystem, models.SourceKeyboard) && len(ev.Signals()) == 0 && len(ev.Keyboards()) == 0 {
			triggering = true
		}
	}

	if triggering && !e.paused && !e.cfg.OnlyEmitEvents {
		outcomes = append(outcomes, e.decideBusy())
	}

	return Seq(outcomes...)
}

// decideSignal applies the signal map, then the default policy: forward the
// mapped signal; unmapped interrupt/terminate additionally request exit.
func (e *Engine) decideSignal(sig models.Signal) Outcome {
	if mapped, ok := e.cfg.SignalMap[sig]; ok {
		if mapped == models.SigNone {
			e.log.Debug("discarding signal per mapping", "signal", sig)
			return DoNothing{}
		}
		return IfRunning{Then: Signal{Sig: mapped}, Else: DoNothing{}}
	}

	switch sig {
	case models.SigInterrupt, models.SigTerminate:
		return Both{
			A: IfRunning{Then: Signal{Sig: sig}, Else: DoNothing{}},
			B: Exit{},
		}
	default:
		return IfRunning{Then: Signal{Sig: sig}, Else: DoNothing{}}
	}
}

func (e *Engine) decideKey(key models.Keycode) Outcome {
	switch key {
	case "r":
		return IfRunning{Then: Seq(Stop{}, e.start()), Else: e.start()}
	case "p":
		e.paused = !e.paused
		e.log.Info("interactive pause toggled", "paused", e.paused)
		return DoNothing{}
	case "q":
		return Exit{}
	case models.KeyEOF:
		if e.cfg.StdinQuit {
			return Exit{}
		}
		return DoNothing{}
	default:
		return DoNothing{}
	}
}

// decideBusy maps the on-busy-update mode to an outcome for a triggering
// batch.
func (e *Engine) decideBusy() Outcome {
	start := e.start()
	switch e.cfg.OnBusy {
	case BusyQueue:
		return IfRunning{Then: Sequence{A: Wait{}, B: start}, Else: start}
	case BusyRestart:
		return IfRunning{Then: Sequence{A: Stop{}, B: start}, Else: start}
	case BusySignal:
		return IfRunning{Then: Signal{Sig: e.cfg.BusySignal}, Else: start}
	default: // do-nothing
		return IfRunning{Then: DoNothing{}, Else: start}
	}
}

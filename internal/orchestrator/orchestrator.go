package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/watchexec/watchexec/internal/action"
	"github.com/watchexec/watchexec/internal/debounce"
	"github.com/watchexec/watchexec/internal/filter"
	"github.com/watchexec/watchexec/internal/models"
	"github.com/watchexec/watchexec/internal/output"
	"github.com/watchexec/watchexec/internal/queue"
	"github.com/watchexec/watchexec/internal/source"
	"github.com/watchexec/watchexec/internal/supervisor"
)

// closedChan is a pre-closed settle channel for instantaneous outcomes.
var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Watchexec runs the whole pipeline for one invocation.
type Watchexec struct {
	live *Live
	out  *output.Writer
	log  *slog.Logger
}

// New builds the orchestrator around a live configuration handle.
func New(live *Live, out *output.Writer, log *slog.Logger) *Watchexec {
	if log == nil {
		log = slog.Default()
	}
	return &Watchexec{live: live, out: out, log: log}
}

// Live exposes the configuration handle for reconfiguration while running.
func (w *Watchexec) Live() *Live { return w.live }

// Run wires everything up and drives the pipeline until an Exit outcome, a
// critical error, or ctx cancellation. The int result is the process exit
// code.
func (w *Watchexec) Run(ctx context.Context) (int, error) {
	cfg := w.live.Get()

	q := queue.New(cfg.QueueCapacity)

	sockets, err := supervisor.OpenSockets(cfg.Sockets)
	if err != nil {
		return 1, err
	}
	defer sockets.Close()

	var eventsFile *supervisor.EventsFile
	if cfg.EmitMode == supervisor.EmitFile || cfg.EmitMode == supervisor.EmitJSONFile {
		eventsFile, err = supervisor.NewEventsFile()
		if err != nil {
			return 1, models.NewError(models.KindConfiguration, "events-file", err)
		}
		defer eventsFile.Close()
	}

	// completion events re-enter the pipeline; when the queue is full they
	// are dropped and counted rather than deadlocking the job task
	onEnd := func(pid int, end models.CompletionTag) {
		ev := models.Event{Tags: []models.Tag{
			models.ProcessTag{PID: pid},
			end,
			models.SourceTag{Source: models.SourceInternal},
		}}
		if err := q.TrySend(ev, models.PriorityLow); err != nil && !errors.Is(err, queue.ErrClosed) {
			w.log.Warn("completion event dropped", "error", err)
		}
	}

	jobCtx, jobCancel := context.WithCancel(context.Background())
	defer jobCancel()
	job := supervisor.NewJob(cfg.Command, sockets, onEnd, w.log)
	go job.Run(jobCtx)

	srcCtx, srcCancel := context.WithCancel(context.Background())
	defer srcCancel()

	fs := source.NewFS(q, w.log)
	fs.Reconfigure(source.FSConfig{Roots: cfg.Roots, PollInterval: cfg.PollInterval})
	go func() {
		if err := fs.Run(srcCtx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.Error("filesystem source failed", "error", err)
		}
	}()

	signals := source.NewSignals(q, w.log)
	go func() {
		if err := signals.Run(srcCtx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.Error("signal source failed", "error", err)
		}
	}()

	keyboard := source.NewKeyboard(q, cfg.Keyboard, w.log)
	go func() {
		if err := keyboard.Run(srcCtx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.Error("keyboard source failed", "error", err)
		}
	}()

	debCtx, debCancel := context.WithCancel(context.Background())
	defer debCancel()
	deb := debounce.New(q, cfg.Debounce, w.log)
	go deb.Run(debCtx)

	eng := action.New(cfg.Action, w.log)
	stack := filter.NewStack(cfg.Filter, w.log)
	r := &runner{
		watch:      w,
		job:        job,
		cfg:        cfg,
		eventsFile: eventsFile,
	}

	sub := w.live.Subscribe()

	var lastCompletion *models.CompletionTag

	// the implicit initial start, unless postponed
	if exit := r.applyTree(ctx, eng.Startup()); exit {
		return w.shutdown(q, job, deb, srcCancel, 0)
	}

	for {
		select {
		case <-ctx.Done():
			return w.shutdown(q, job, deb, srcCancel, w.exitCode(cfg, lastCompletion))

		case <-sub:
			cfg = w.live.Get()
			r.cfg = cfg
			stack = filter.NewStack(cfg.Filter, w.log)
			eng.Reconfigure(cfg.Action)
			fs.Reconfigure(source.FSConfig{Roots: cfg.Roots, PollInterval: cfg.PollInterval})
			job.Reconfigure(cfg.Command)
			w.log.Debug("configuration reconciled")

		case batch, ok := <-deb.Batches():
			if !ok {
				// the queue should only close during shutdown; reaching this
				// point mid-run is an orchestration invariant violation
				return 1, models.NewError(models.KindCritical, "queue-closed",
					errors.New("event queue closed unexpectedly"))
			}

			events := batch.Events
			if !batch.Urgent {
				events = filterEvents(ctx, stack, events)
			}
			if len(events) == 0 {
				continue
			}

			if cfg.PrintEvents {
				w.out.PrintEvents(events)
			}

			for _, ev := range events {
				for _, c := range ev.Completions() {
					c := c
					lastCompletion = &c
					r.completed()
				}
			}

			if cfg.Action.OnlyEmitEvents {
				w.emitBatch(cfg, events)
			}

			outcome := eng.Decide(debounce.Batch{Events: events, Urgent: batch.Urgent})
			r.prepare(cfg, events)
			if exit := r.applyTree(ctx, outcome); exit {
				return w.shutdown(q, job, deb, srcCancel, w.exitCode(cfg, lastCompletion))
			}
		}
	}
}

// filterEvents applies the stack to each event, dropping rejects.
func filterEvents(ctx context.Context, stack *filter.Stack, events []models.Event) []models.Event {
	var kept []models.Event
	for _, ev := range events {
		if stack.Accept(ctx, ev) {
			kept = append(kept, ev)
		}
	}
	return kept
}

// emitBatch writes the batch to stdout for --only-emit-events.
func (w *Watchexec) emitBatch(cfg *Config, events []models.Event) {
	switch cfg.EmitMode {
	case supervisor.EmitJSONStdio, supervisor.EmitJSONFile:
		if err := w.out.EmitJSON(events); err != nil {
			w.log.Error("failed to emit events", "error", err)
		}
	default:
		w.out.EmitSimple(supervisor.SimpleFormat(events))
	}
}

// exitCode resolves the watcher's own exit code: the last child's code in
// once mode, clean otherwise.
func (w *Watchexec) exitCode(cfg *Config, last *models.CompletionTag) int {
	if cfg.Action.Once && last != nil {
		return last.ExitCode()
	}
	return 0
}

// shutdown runs the ordered teardown: close the queue so the debouncer can
// drain deterministically, stop the job with force-after-timeout, then abort
// the remaining source tasks.
func (w *Watchexec) shutdown(
	q *queue.Queue,
	job *supervisor.Job,
	deb *debounce.Debouncer,
	srcCancel context.CancelFunc,
	code int,
) (int, error) {
	cfg := w.live.Get()

	q.Close()

	stopped := job.Stop(cfg.StopSignal, cfg.StopTimeout)
	select {
	case <-stopped:
	case <-time.After(cfg.StopTimeout + 2*time.Second):
		w.log.Error("job did not stop within grace plus margin")
		<-job.Kill()
	}

	srcCancel()

	// drain whatever the debouncer still releases so it can observe the
	// closed queue and finish
	for range deb.Batches() {
	}

	if dropped := q.Dropped(); dropped > 0 {
		w.log.Warn("events were dropped under backpressure", "count", dropped)
	}
	w.out.Status("stopped")
	return code, nil
}

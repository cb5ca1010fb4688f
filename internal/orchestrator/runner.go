package orchestrator

import (
	"context"
	"time"

	"github.com/watchexec/watchexec/internal/action"
	"github.com/watchexec/watchexec/internal/models"
	"github.com/watchexec/watchexec/internal/supervisor"
)

// runner applies outcome trees to the job, carrying the per-batch payload
// and the timing bookkeeping.
type runner struct {
	watch      *Watchexec
	job        *supervisor.Job
	cfg        *Config
	eventsFile *supervisor.EventsFile

	payload   supervisor.RunPayload
	startedAt time.Time
}

// prepare computes the event payload the next Start will inject.
func (r *runner) prepare(cfg *Config, events []models.Event) {
	payload, err := supervisor.BuildPayload(cfg.EmitMode, events, r.eventsFile)
	if err != nil {
		r.watch.log.Warn("failed to build event payload", "error", err)
		payload = supervisor.RunPayload{}
	}
	r.payload = payload
}

// completed reports a child completion for timings and the bell.
func (r *runner) completed() {
	if !r.startedAt.IsZero() {
		r.watch.out.Timing("command finished", time.Since(r.startedAt))
		r.startedAt = time.Time{}
	}
	r.watch.out.Bell()
}

// applyTree resolves and applies an outcome, returning whether the watcher
// should exit.
func (r *runner) applyTree(ctx context.Context, o action.Outcome) bool {
	resolved := action.Resolve(o, r.job.Alive())
	_, exit := r.apply(ctx, resolved)
	return exit
}

// apply executes one resolved outcome node. The returned channel closes when
// the node's effect has settled; Sequence waits on it, Both does not.
func (r *runner) apply(ctx context.Context, o action.Outcome) (<-chan struct{}, bool) {
	switch v := o.(type) {
	case action.DoNothing:
		return closedChan, false

	case action.Start:
		r.startedAt = time.Now()
		return r.job.Start(r.payload), false

	case action.Stop:
		return r.job.Stop(r.cfg.StopSignal, r.cfg.StopTimeout), false

	case action.Wait:
		return r.job.Wait(), false

	case action.Signal:
		return r.job.Signal(v.Sig), false

	case action.Sleep:
		ch := make(chan struct{})
		go func() {
			defer close(ch)
			select {
			case <-time.After(v.Duration):
			case <-ctx.Done():
			}
		}()
		return ch, false

	case action.Clear:
		r.watch.out.Clear(v.Reset)
		return closedChan, false

	case action.Exit:
		return closedChan, true

	case action.Both:
		_, exitA := r.apply(ctx, v.A)
		settle, exitB := r.apply(ctx, v.B)
		return settle, exitA || exitB

	case action.Sequence:
		settle, exitA := r.apply(ctx, v.A)
		if exitA {
			return settle, true
		}
		select {
		case <-settle:
		case <-ctx.Done():
			return closedChan, false
		}
		return r.apply(ctx, v.B)

	default:
		r.watch.log.Warn("unknown outcome, ignoring", "outcome", o.String())
		return closedChan, false
	}
}

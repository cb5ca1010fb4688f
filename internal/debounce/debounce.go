// Package debounce coalesces bursts of events from the priority queue into
// batches, so that a flurry of filesystem writes triggers one command run.
package debounce

import (
	"context"
	"log/slog"
	"time"

	"github.com/watchexec/watchexec/internal/models"
	"github.com/watchexec/watchexec/internal/queue"
)

// DefaultQuiet is the default quiet period after which a batch closes.
const DefaultQuiet = 50 * time.Millisecond

// SoftLimit caps batch growth. A batch reaching this size is released early;
// events past the limit simply open the next batch.
const SoftLimit = 4096

// Batch is the unit handed to the action engine: the coalesced events plus
// whether they arrived at urgent priority.
type Batch struct {
	Events []models.Event
	Urgent bool
}

// Debouncer consumes the queue and releases batches on its output channel.
type Debouncer struct {
	queue *queue.Queue
	quiet time.Duration
	out   chan Batch
	log   *slog.Logger
}

// New builds a debouncer reading from q. A zero quiet period means every
// non-urgent event is released as its own batch.
func New(q *queue.Queue, quiet time.Duration, log *slog.Logger) *Debouncer {
	if log == nil {
		log = slog.Default()
	}
	return &Debouncer{
		queue: q,
		quiet: quiet,
		out:   make(chan Batch),
		log:   log,
	}
}

// Batches is the output channel. It is closed when the queue closes and the
// final batch has drained, so ranging over it observes shutdown.
func (d *Debouncer) Batches() <-chan Batch { return d.out }

// promptRelease reports whether the event should flush the in-flight batch
// immediately instead of waiting out the quiet period. Completions and
// signals must reach the action engine promptly; they also must not stretch
// the window of an unrelated filesystem burst.
func promptRelease(ev models.Event) bool {
	return len(ev.Signals()) > 0 || len(ev.Completions()) > 0
}

// Run consumes the queue until it closes or ctx ends. It owns the output
// channel and closes it on return.
func (d *Debouncer) Run(ctx context.Context) error {
	defer close(d.out)

	// Pump the queue into a channel so the main loop can select over items
	// and the quiet timer together. The pump ends when the queue closes or
	// ctx is cancelled.
	items := make(chan queue.Item)
	go func() {
		defer close(items)
		for {
			item, ok, err := d.queue.Recv(ctx)
			if err != nil || !ok {
				return
			}
			select {
			case items <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		pending    []models.Event
		quietTimer *time.Timer
		quietC     <-chan time.Time
	)

	stopTimer := func() {
		if quietTimer != nil {
			quietTimer.Stop()
			quietTimer = nil
			quietC = nil
		}
	}

	emit := func(b Batch) bool {
		select {
		case d.out <- b:
			return true
		case <-ctx.Done():
			return false
		}
	}

	flush := func() bool {
		stopTimer()
		if len(pending) == 0 {
			return true
		}
		b := Batch{Events: pending}
		pending = nil
		return emit(b)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-quietC:
			if !flush() {
				return ctx.Err()
			}

		case item, ok := <-items:
			if !ok {
				// queue closed (or ctx ended): drain the open batch
				flush()
				return ctx.Err()
			}

			if item.Priority == models.PriorityUrgent {
				// urgent events bypass batching and jump the open batch
				if !emit(Batch{Events: []models.Event{item.Event}, Urgent: true}) {
					return ctx.Err()
				}
				continue
			}

			pending = append(pending, item.Event)

			switch {
			case promptRelease(item.Event):
				if !flush() {
					return ctx.Err()
				}
			case len(pending) >= SoftLimit:
				d.log.Debug("batch soft limit reached, releasing early", "size", len(pending))
				if !flush() {
					return ctx.Err()
				}
			case d.quiet <= 0:
				if !flush() {
					return ctx.Err()
				}
			default:
				stopTimer()
				quietTimer = time.NewTimer(d.quiet)
				quietC = quietTimer.C
			}
		}
	}
}

package source

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"

	"github.com/watchexec/watchexec/internal/models"
	"github.com/watchexec/watchexec/internal/queue"
)

// watchedSignals are the deliveries the signal source subscribes to.
var watchedSignals = []models.Signal{
	models.SigHangup,
	models.SigInterrupt,
	models.SigQuit,
	models.SigTerminate,
	models.SigUser1,
	models.SigUser2,
}

// Signals forwards OS signals delivered to the watcher into the pipeline.
// Interrupt, terminate, and quit are published urgent; the rest high.
type Signals struct {
	queue *queue.Queue
	log   *slog.Logger
}

// NewSignals builds the signal source.
func NewSignals(q *queue.Queue, log *slog.Logger) *Signals {
	if log == nil {
		log = slog.Default()
	}
	return &Signals{queue: q, log: log}
}

// Run subscribes and forwards until ctx ends.
func (s *Signals) Run(ctx context.Context) error {
	var subscribe []os.Signal
	for _, sig := range watchedSignals {
		if osSig, ok := sig.OS(); ok {
			subscribe = append(subscribe, osSig)
		}
	}

	ch := make(chan os.Signal, 8)
	signal.Notify(ch, subscribe...)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case osSig := <-ch:
			sig, ok := models.FromOS(osSig)
			if !ok {
				s.log.Warn("unrecognised signal delivery", "signal", osSig)
				continue
			}

			pri := models.PriorityHigh
			if sig.IsUrgent() {
				pri = models.PriorityUrgent
			}

			ev := models.Event{Tags: []models.Tag{
				models.SignalTag{Signal: sig},
				models.SourceTag{Source: models.SourceOS},
			}}
			if err := s.queue.Send(ctx, ev, pri); err != nil {
				if errors.Is(err, queue.ErrClosed) {
					return nil
				}
				return err
			}
		}
	}
}

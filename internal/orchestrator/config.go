// Package orchestrator wires the pipeline together: sources into the
// priority queue, queue into the debouncer, batches through the filter stack
// and action engine, and outcomes onto the supervisor. It owns component
// lifetimes and the live configuration.
package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/watchexec/watchexec/internal/action"
	"github.com/watchexec/watchexec/internal/filter"
	"github.com/watchexec/watchexec/internal/models"
	"github.com/watchexec/watchexec/internal/output"
	"github.com/watchexec/watchexec/internal/source"
	"github.com/watchexec/watchexec/internal/supervisor"
)

// Config is the full runtime configuration of the pipeline.
type Config struct {
	// watching
	Roots        []filter.WatchedPath
	PollInterval time.Duration

	// filtering
	Filter filter.Config

	// action policy
	Action      action.Config
	StopSignal  models.Signal
	StopTimeout time.Duration

	// command
	Command supervisor.Command
	Sockets []string

	// emission
	EmitMode    supervisor.EmitMode
	PrintEvents bool

	// pipeline tuning
	QueueCapacity int
	Debounce      time.Duration

	Keyboard source.KeyboardConfig

	Output output.Options
}

// withDefaults fills the zero values.
func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 4096
	}
	if c.StopSignal == models.SigNone {
		c.StopSignal = models.SigTerminate
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = supervisor.DefaultStopTimeout
	}
	return c
}

// Live is the observable configuration handle. Readers get an immutable
// snapshot; Update atomically swaps a new version in and notifies
// subscribers, who reconcile at their next safe point.
type Live struct {
	v atomic.Pointer[Config]

	mu   sync.Mutex
	subs []chan struct{}
}

// NewLive seeds the handle.
func NewLive(cfg Config) *Live {
	l := &Live{}
	cfg = cfg.withDefaults()
	l.v.Store(&cfg)
	return l
}

// Get returns the current snapshot. The returned value must not be mutated.
func (l *Live) Get() *Config { return l.v.Load() }

// Update copies the current configuration, applies mutate, swaps the result
// in, and notifies every subscriber.
func (l *Live) Update(mutate func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := *l.v.Load()
	mutate(&next)
	next = next.withDefaults()
	l.v.Store(&next)

	for _, sub := range l.subs {
		select {
		case sub <- struct{}{}:
		default:
		}
	}
}

// Subscribe registers for change notifications. The channel never blocks the
// publisher; a pending notification coalesces with later ones.
func (l *Live) Subscribe() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan struct{}, 1)
	l.subs = append(l.subs, ch)
	return ch
}

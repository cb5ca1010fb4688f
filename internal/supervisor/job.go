package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/watchexec/watchexec/internal/models"
)

// State is the job's position in its lifecycle.
type State int

// Job states.
const (
	Pending State = iota
	Running
	Stopping
	Finished
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// DefaultStopTimeout is the grace period before a stop escalates to a
// force-kill.
const DefaultStopTimeout = 10 * time.Second

type orderKind int

const (
	orderStart orderKind = iota
	orderStop
	orderKill
	orderSignal
	orderSetEnv
	orderReconfigure
	orderWait
)

// order is one control message. done, when non-nil, is closed once the
// order's effect has settled (for stop: the child has exited).
type order struct {
	kind    orderKind
	sig     models.Signal
	grace   time.Duration
	env     map[string]string
	cmd     *Command
	payload RunPayload
	done    chan struct{}
}

// CompletionFunc receives the completion of each child run.
type CompletionFunc func(pid int, end models.CompletionTag)

// Job supervises one command. Orders are processed strictly in FIFO order by
// a single task; state is owned by that task.
type Job struct {
	cmd     Command
	orders  chan order
	sockets *SocketSet
	onEnd   CompletionFunc
	log     *slog.Logger

	// alive mirrors (state == Running || state == Stopping) for readers
	// outside the job task.
	alive atomic.Bool

	// extra environment set via SetEnv orders, merged into every spawn
	extraEnv map[string]string
}

// NewJob builds a job for cmd. onEnd is invoked from the job task whenever a
// child finishes; it must not block for long.
func NewJob(cmd Command, sockets *SocketSet, onEnd CompletionFunc, log *slog.Logger) *Job {
	if log == nil {
		log = slog.Default()
	}
	if onEnd == nil {
		onEnd = func(int, models.CompletionTag) {}
	}
	return &Job{
		cmd:      cmd,
		orders:   make(chan order, 64),
		sockets:  sockets,
		onEnd:    onEnd,
		log:      log,
		extraEnv: make(map[string]string),
	}
}

// Alive reports whether a child process currently exists for this job.
func (j *Job) Alive() bool { return j.alive.Load() }

func (j *Job) send(o order) <-chan struct{} {
	if o.done == nil {
		o.done = make(chan struct{})
	}
	j.orders <- o
	return o.done
}

// Start asks the job to spawn its command with the given payload. No-op when
// a child is already alive.
func (j *Job) Start(payload RunPayload) <-chan struct{} {
	return j.send(order{kind: orderStart, payload: payload})
}

// Stop requests a graceful stop: sig now, force-kill after grace. The
// returned channel closes when the child has fully exited (immediately if
// none is alive).
func (j *Job) Stop(sig models.Signal, grace time.Duration) <-chan struct{} {
	return j.send(order{kind: orderStop, sig: sig, grace: grace})
}

// Kill force-terminates the child immediately.
func (j *Job) Kill() <-chan struct{} {
	return j.send(order{kind: orderKill})
}

// Signal delivers sig to the child (its whole group when grouping is on).
func (j *Job) Signal(sig models.Signal) <-chan struct{} {
	return j.send(order{kind: orderSignal, sig: sig})
}

// SetEnv merges extra environment variables into subsequent spawns.
func (j *Job) SetEnv(env map[string]string) <-chan struct{} {
	return j.send(order{kind: orderSetEnv, env: env})
}

// Reconfigure swaps the command description used by future starts.
func (j *Job) Reconfigure(cmd Command) <-chan struct{} {
	return j.send(order{kind: orderReconfigure, cmd: &cmd})
}

// Wait returns a channel closed when the current child exits; closed
// immediately when no child is alive.
func (j *Job) Wait() <-chan struct{} {
	return j.send(order{kind: orderWait})
}

// child bundles the live process handles owned by the job task.
type child struct {
	cmd  *exec.Cmd
	pgid int
	exit chan *os.ProcessState
}

// Run is the job task. It processes orders until ctx ends; cancellation with
// a live child force-kills it so no orphans survive.
func (j *Job) Run(ctx context.Context) error {
	state := Pending
	var (
		cur        *child
		graceTimer *time.Timer
		graceC     <-chan time.Time
		waiters    []chan struct{}
	)

	setState := func(s State) {
		state = s
		j.alive.Store(s == Running || s == Stopping)
	}

	stopGrace := func() {
		if graceTimer != nil {
			graceTimer.Stop()
			graceTimer = nil
			graceC = nil
		}
	}

	finish := func(ps *os.ProcessState) {
		stopGrace()
		end := models.CompletionFromState(ps)
		pid := 0
		if ps != nil {
			pid = ps.Pid()
		}
		cur = nil
		setState(Finished)
		for _, w := range waiters {
			close(w)
		}
		waiters = nil
		j.onEnd(pid, end)
	}

	for {
		var exitC chan *os.ProcessState
		if cur != nil {
			exitC = cur.exit
		}

		select {
		case <-ctx.Done():
			// kill-on-drop: never leave a child behind
			if cur != nil {
				j.killChild(cur)
				finish(<-cur.exit)
			}
			return ctx.Err()

		case ps := <-exitC:
			finish(ps)

		case <-graceC:
			if cur != nil && state == Stopping {
				j.log.Warn("grace period expired, force-killing", "pid", cur.cmd.Process.Pid)
				j.killChild(cur)
			}

		case o := <-j.orders:
			switch o.kind {
			case orderStart:
				if state == Running || state == Stopping {
					// guarantees at most one child per job
					close(o.done)
					continue
				}
				spawned, err := j.spawn(o.payload)
				if err != nil {
					j.log.Error("spawn failed", "command", j.cmd.String(), "error", err)
					close(o.done)
					setState(Finished)
					for _, w := range waiters {
						close(w)
					}
					waiters = nil
					// report the failure as an error-disposition completion
					// so the pipeline stays uniform
					j.onEnd(0, models.CompletionError(127))
					continue
				}
				cur = spawned
				setState(Running)
				close(o.done)

			case orderStop:
				if state != Running {
					// a second stop while Stopping must not restart the
					// grace timer or spawn anything
					if state == Stopping {
						waiters = append(waiters, o.done)
					} else {
						close(o.done)
					}
					continue
				}
				sig := o.sig
				if sig == models.SigNone {
					sig = models.SigTerminate
				}
				grace := o.grace
				if grace <= 0 {
					grace = DefaultStopTimeout
				}
				j.signalChild(cur, sig)
				setState(Stopping)
				stopGrace()
				graceTimer = time.NewTimer(grace)
				graceC = graceTimer.C
				waiters = append(waiters, o.done)

			case orderKill:
				if state == Running || state == Stopping {
					j.killChild(cur)
					waiters = append(waiters, o.done)
				} else {
					close(o.done)
				}

			case orderSignal:
				if state == Running || state == Stopping {
					j.signalChild(cur, o.sig)
				}
				close(o.done)

			case orderSetEnv:
				for k, v := range o.env {
					j.extraEnv[k] = v
				}
				close(o.done)

			case orderReconfigure:
				j.cmd = *o.cmd
				close(o.done)

			case orderWait:
				if state == Running || state == Stopping {
					waiters = append(waiters, o.done)
				} else {
					close(o.done)
				}
			}
		}
	}
}

// spawn builds and starts the child process.
func (j *Job) spawn(payload RunPayload) (*child, error) {
	if err := j.cmd.Validate(); err != nil {
		return nil, err
	}

	argv := j.cmd.Argv()
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = j.cmd.Workdir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	env := os.Environ()
	env = append(env, sortedEnv(j.cmd.Env)...)
	env = append(env, sortedEnv(j.extraEnv)...)
	env = append(env, sortedEnv(j.sockets.Env())...)
	env = append(env, sortedEnv(payload.Env)...)
	cmd.Env = env

	cmd.ExtraFiles = j.sockets.Files()

	if payload.Stdin != nil {
		cmd.Stdin = strings.NewReader(string(payload.Stdin))
	} else {
		cmd.Stdin = os.Stdin
	}

	setGrouping(cmd, j.cmd.Grouping)

	if err := cmd.Start(); err != nil {
		return nil, models.NewError(models.KindProcess, "spawn",
			fmt.Errorf("spawning %s: %w", j.cmd.String(), err))
	}

	c := &child{
		cmd:  cmd,
		pgid: processGroup(cmd),
		exit: make(chan *os.ProcessState, 1),
	}
	go func() {
		_ = cmd.Wait()
		c.exit <- cmd.ProcessState
	}()

	j.log.Debug("spawned", "pid", cmd.Process.Pid, "pgid", c.pgid, "command", j.cmd.String())
	return c, nil
}

func (j *Job) signalChild(c *child, sig models.Signal) {
	if err := deliverSignal(c, j.cmd.Grouping, sig); err != nil {
		j.log.Warn("signal delivery failed", "signal", sig, "error", err)
	}
}

func (j *Job) killChild(c *child) {
	if err := deliverSignal(c, j.cmd.Grouping, models.SigKill); err != nil {
		j.log.Warn("force-kill failed", "error", err)
	}
}

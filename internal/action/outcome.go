// Package action decides what to do with the supervised command when a batch
// of events arrives, expressed as a composable Outcome tree.
package action

import (
	"fmt"
	"time"

	"github.com/watchexec/watchexec/internal/models"
)

// Outcome describes what the supervisor should do next. Outcomes compose:
// any outcome applied to any job state yields a well-defined sequence of
// primitive steps.
type Outcome interface {
	isOutcome()
	String() string
}

// DoNothing stops processing the action silently.
type DoNothing struct{}

// Start launches the command if it is not running.
type Start struct{}

// Stop gracefully stops the command if it is running.
type Stop struct{}

// Wait blocks until the running command completes; nothing if not running.
type Wait struct{}

// Exit requests watchexec shut down.
type Exit struct{}

// Signal delivers a signal to the running command.
type Signal struct {
	Sig models.Signal
}

// Sleep pauses the job task for a duration. Cancellable.
type Sleep struct {
	Duration time.Duration
}

// Clear clears the terminal; Reset performs a hard terminal reset instead.
type Clear struct {
	Reset bool
}

// IfRunning resolves to Then when the command is running, Else otherwise.
type IfRunning struct {
	Then Outcome
	Else Outcome
}

// Both applies A then B without waiting for A to settle in between.
type Both struct {
	A Outcome
	B Outcome
}

// Sequence applies A, waits for it to settle (a stop completing, a sleep
// elapsing), then applies B.
type Sequence struct {
	A Outcome
	B Outcome
}

func (DoNothing) isOutcome() {}
func (Start) isOutcome()     {}
func (Stop) isOutcome()      {}
func (Wait) isOutcome()      {}
func (Exit) isOutcome()      {}
func (Signal) isOutcome()    {}
func (Sleep) isOutcome()     {}
func (Clear) isOutcome()     {}
func (IfRunning) isOutcome() {}
func (Both) isOutcome()      {}
func (Sequence) isOutcome()  {}

func (DoNothing) String() string { return "do-nothing" }
func (Start) String() string     { return "start" }
func (Stop) String() string      { return "stop" }
func (Wait) String() string      { return "wait" }
func (Exit) String() string      { return "exit" }
func (o Signal) String() string  { return "signal(" + string(o.Sig) + ")" }
func (o Sleep) String() string   { return "sleep(" + o.Duration.String() + ")" }
func (o Clear) String() string {
	if o.Reset {
		return "reset-screen"
	}
	return "clear-screen"
}
func (o IfRunning) String() string {
	return fmt.Sprintf("if-running(%s, %s)", o.Then, o.Else)
}
func (o Both) String() string {
	return fmt.Sprintf("both(%s, %s)", o.A, o.B)
}
func (o Sequence) String() string {
	return fmt.Sprintf("seq(%s, %s)", o.A, o.B)
}

// Resolve flattens IfRunning branches against the current running state,
// leaving a tree of unconditional outcomes.
func Resolve(o Outcome, running bool) Outcome {
	switch v := o.(type) {
	case IfRunning:
		if running {
			return Resolve(v.Then, running)
		}
		return Resolve(v.Else, running)
	case Both:
		return Both{A: Resolve(v.A, running), B: Resolve(v.B, running)}
	case Sequence:
		return Sequence{A: Resolve(v.A, running), B: Resolve(v.B, running)}
	default:
		return o
	}
}

// Seq chains outcomes left to right, waiting for each to settle. DoNothing
// entries are elided.
func Seq(outcomes ...Outcome) Outcome {
	var acc Outcome = DoNothing{}
	for _, o := range outcomes {
		if _, skip := o.(DoNothing); skip {
			continue
		}
		if _, empty := acc.(DoNothing); empty {
			acc = o
			continue
		}
		acc = Sequence{A: acc, B: o}
	}
	return acc
}

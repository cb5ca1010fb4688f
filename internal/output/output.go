// Package output is the single sink for user-facing output: accepted-event
// printing, batch emission for --only-emit-events, screen clearing, the
// bell, and command timing lines. Keeping it in one place means the child's
// own stdout/stderr never interleaves with half-written status lines.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/watchexec/watchexec/internal/models"
)

// ColorMode selects colourisation of status output.
type ColorMode string

// Color modes.
const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// Writer is the configured output sink.
type Writer struct {
	out io.Writer
	err io.Writer

	quiet   bool
	bell    bool
	timings bool

	status *color.Color
	detail *color.Color
}

// Options configures a Writer.
type Options struct {
	Quiet   bool
	Bell    bool
	Timings bool
	Color   ColorMode
}

// New builds a writer on the given streams. Color auto mode enables colour
// only when stderr is a terminal.
func New(out, errw io.Writer, opts Options) *Writer {
	w := &Writer{
		out:     out,
		err:     errw,
		quiet:   opts.Quiet,
		bell:    opts.Bell,
		timings: opts.Timings,
		status:  color.New(color.FgYellow),
		detail:  color.New(color.Faint),
	}

	enable := false
	switch opts.Color {
	case ColorAlways:
		enable = true
	case ColorNever:
		enable = false
	default:
		if f, ok := errw.(*os.File); ok {
			enable = isatty.IsTerminal(f.Fd())
		}
	}
	if enable {
		w.status.EnableColor()
		w.detail.EnableColor()
	} else {
		w.status.DisableColor()
		w.detail.DisableColor()
	}
	return w
}

// Status prints a short watcher status line unless quiet.
func (w *Writer) Status(format string, args ...any) {
	if w.quiet {
		return
	}
	fmt.Fprintf(w.err, "%s %s\n", w.status.Sprint("[watchexec]"), fmt.Sprintf(format, args...))
}

// PrintEvents logs each accepted event, for --print-events.
func (w *Writer) PrintEvents(events []models.Event) {
	for i, ev := range events {
		fmt.Fprintf(w.err, "%s\n", w.detail.Sprintf("event %d: %s", i, ev.String()))
	}
}

// EmitJSON writes the batch as JSON lines to stdout, for --only-emit-events
// with a JSON --emit-events-to mode.
func (w *Writer) EmitJSON(events []models.Event) error {
	enc := json.NewEncoder(w.out)
	for _, ev := range events {
		if ev.IsEmpty() {
			continue
		}
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}

// EmitSimple writes the batch in the `kind:path` line format to stdout.
func (w *Writer) EmitSimple(payload string) {
	io.WriteString(w.out, payload)
}

// Clear erases the screen; reset performs a hard terminal reset instead.
func (w *Writer) Clear(reset bool) {
	if reset {
		// RIS plus a cursor home, clears scrollback on most terminals
		fmt.Fprint(w.out, "\x1bc\x1b[H\x1b[2J")
		return
	}
	fmt.Fprint(w.out, "\x1b[H\x1b[2J")
}

// Bell rings the terminal bell when enabled.
func (w *Writer) Bell() {
	if !w.bell {
		return
	}
	fmt.Fprint(w.out, "\a")
}

// Timing reports a command's wall-clock duration when --timings is on.
func (w *Writer) Timing(what string, elapsed time.Duration) {
	if !w.timings {
		return
	}
	w.Status("%s in %s", what, elapsed.Round(time.Millisecond))
}

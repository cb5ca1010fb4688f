package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Signal is a normalised signal name. The zero value means "no signal" and is
// used by signal maps to discard a delivery.
type Signal string

// Normalised signal names.
const (
	SigNone            Signal = ""
	SigHangup          Signal = "hangup"
	SigInterrupt       Signal = "interrupt"
	SigQuit            Signal = "quit"
	SigTerminate       Signal = "terminate"
	SigKill            Signal = "kill"
	SigUser1           Signal = "user1"
	SigUser2           Signal = "user2"
	SigContinue        Signal = "continue"
	SigSuspend         Signal = "suspend"
	SigTerminalSuspend Signal = "terminal-suspend"
)

// signalAliases maps the accepted spellings (uppercased, SIG prefix stripped)
// to normalised signals.
var signalAliases = map[string]Signal{
	"HUP":              SigHangup,
	"HANGUP":           SigHangup,
	"INT":              SigInterrupt,
	"INTERRUPT":        SigInterrupt,
	"QUIT":             SigQuit,
	"TERM":             SigTerminate,
	"TERMINATE":        SigTerminate,
	"KILL":             SigKill,
	"USR1":             SigUser1,
	"USER1":            SigUser1,
	"USR2":             SigUser2,
	"USER2":            SigUser2,
	"CONT":             SigContinue,
	"CONTINUE":         SigContinue,
	"STOP":             SigSuspend,
	"SUSPEND":          SigSuspend,
	"TSTP":             SigTerminalSuspend,
	"TERMINAL-SUSPEND": SigTerminalSuspend,
}

// signalNumbers maps conventional (Linux) signal numbers to normalised
// signals, for the numeric spelling accepted on the command line.
var signalNumbers = map[int]Signal{
	1:  SigHangup,
	2:  SigInterrupt,
	3:  SigQuit,
	9:  SigKill,
	10: SigUser1,
	12: SigUser2,
	15: SigTerminate,
	18: SigContinue,
	19: SigSuspend,
	20: SigTerminalSuspend,
}

// ParseSignal parses a signal from any of the accepted forms: `SIGTERM`,
// `TERM`, `terminate`, or `15`. Matching is case-insensitive.
func ParseSignal(s string) (Signal, error) {
	in := strings.ToUpper(strings.TrimSpace(s))
	if in == "" {
		return SigNone, NewError(KindConfiguration, "signal-empty", fmt.Errorf("empty signal name"))
	}
	if n, err := strconv.Atoi(in); err == nil {
		if sig, ok := signalNumbers[n]; ok {
			return sig, nil
		}
		return SigNone, NewError(KindConfiguration, "signal-unknown", fmt.Errorf("unsupported signal number %d", n))
	}
	in = strings.TrimPrefix(in, "SIG")
	if sig, ok := signalAliases[in]; ok {
		return sig, nil
	}
	return SigNone, NewError(KindConfiguration, "signal-unknown", fmt.Errorf("unknown signal %q", s))
}

// ParseSignalMapping parses one `SRC:DST` pair for --map-signal. An empty DST
// discards the source signal.
func ParseSignalMapping(s string) (from, to Signal, err error) {
	src, dst, found := strings.Cut(s, ":")
	if !found {
		return SigNone, SigNone, NewError(KindConfiguration, "signal-map-syntax",
			fmt.Errorf("signal mapping %q must be of the form SRC:DST", s))
	}
	from, err = ParseSignal(src)
	if err != nil {
		return SigNone, SigNone, err
	}
	if strings.TrimSpace(dst) == "" {
		return from, SigNone, nil
	}
	to, err = ParseSignal(dst)
	if err != nil {
		return SigNone, SigNone, err
	}
	return from, to, nil
}

// IsUrgent reports whether a delivery of this signal to the main process is
// queued at Urgent priority, bypassing filtering.
func (s Signal) IsUrgent() bool {
	switch s {
	case SigInterrupt, SigTerminate, SigQuit:
		return true
	default:
		return false
	}
}

func (s Signal) String() string { return string(s) }

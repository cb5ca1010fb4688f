//go:build unix

package models

import (
	"os"
	"syscall"
)

// CompletionFromState derives a completion tag from the wait status of an
// exited child.
func CompletionFromState(state *os.ProcessState) CompletionTag {
	if state == nil {
		return CompletionTag{Disposition: DispositionUnknown}
	}

	if ws, ok := state.Sys().(syscall.WaitStatus); ok {
		switch {
		case ws.Signaled():
			if sig, ok := FromOS(ws.Signal()); ok {
				return CompletionSignal(sig)
			}
			return CompletionTag{Disposition: DispositionSignal}
		case ws.Stopped():
			code := int64(ws.StopSignal())
			return CompletionTag{Disposition: DispositionStop, Code: &code}
		case ws.Continued():
			return CompletionTag{Disposition: DispositionContinued}
		}
	}

	if code := state.ExitCode(); code != 0 {
		return CompletionError(int64(code))
	}
	return CompletionSuccess()
}

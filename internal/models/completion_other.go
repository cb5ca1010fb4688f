//go:build !unix

package models

import "os"

// CompletionFromState derives a completion tag from an exited child.
func CompletionFromState(state *os.ProcessState) CompletionTag {
	if state == nil {
		return CompletionTag{Disposition: DispositionUnknown}
	}
	if code := state.ExitCode(); code != 0 {
		return CompletionError(int64(code))
	}
	return CompletionSuccess()
}

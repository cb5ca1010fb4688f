//go:build unix

package models

import (
	"os"

	"golang.org/x/sys/unix"
)

var osSignals = map[Signal]unix.Signal{
	SigHangup:          unix.SIGHUP,
	SigInterrupt:       unix.SIGINT,
	SigQuit:            unix.SIGQUIT,
	SigTerminate:       unix.SIGTERM,
	SigKill:            unix.SIGKILL,
	SigUser1:           unix.SIGUSR1,
	SigUser2:           unix.SIGUSR2,
	SigContinue:        unix.SIGCONT,
	SigSuspend:         unix.SIGSTOP,
	SigTerminalSuspend: unix.SIGTSTP,
}

// OS returns the platform signal for s, or false when the signal has no
// platform equivalent (including SigNone).
func (s Signal) OS() (os.Signal, bool) {
	sig, ok := osSignals[s]
	if !ok {
		return nil, false
	}
	return sig, true
}

// Unix returns the raw unix signal number for s, for kill(2) on process
// groups.
func (s Signal) Unix() (unix.Signal, bool) {
	sig, ok := osSignals[s]
	return sig, ok
}

// FromOS normalises a platform signal received from os/signal.Notify.
func FromOS(sig os.Signal) (Signal, bool) {
	for name, sys := range osSignals {
		if sys == sig {
			return name, true
		}
	}
	return SigNone, false
}

package hfp

import "time"

// Clock abstracts timer scheduling so the callsetup-emulation and
// dial-timeout timers (spec §4.4) can be driven deterministically in
// tests, the way the pump's watchdog (internal/pump) is.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the minimal subset of *time.Timer the session needs.
type Timer interface {
	// Stop cancels the timer; it returns true if the call stops the
	// timer, false if the timer has already expired or been stopped.
	Stop() bool
}

type realClock struct{}

// RealClock is the production Clock backed by the standard library.
var RealClock Clock = realClock{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

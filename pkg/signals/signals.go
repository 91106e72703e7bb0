// Package signals provides the critical-section primitive used by the move
// engine: a bracketed region during which termination signals are captured
// and buffered rather than acted upon, then re-raised on exit.
package signals

import (
	"os"
	"os/signal"
)

// Deferral represents an active deferral of termination signals. It must be
// resolved exactly once.
type Deferral struct {
	// deferred is the channel capturing termination signals for the duration
	// of the deferral.
	deferred chan os.Signal
}

// Defer begins capturing termination signals. While the returned Deferral is
// unresolved, termination signals are buffered instead of terminating the
// process. Deferrals must not be nested.
func Defer() *Deferral {
	// Buffer both termination signals so that delivery never blocks the
	// runtime's signal dispatch.
	deferred := make(chan os.Signal, len(TerminationSignals))
	signal.Notify(deferred, TerminationSignals...)
	return &Deferral{deferred: deferred}
}

// Resolve ends the deferral and re-raises any signal that arrived while it
// was active. A re-raised signal is delivered through the process' normal
// signal disposition, so it reaches any handler the embedding program has
// registered, or terminates the process if there is none.
func (d *Deferral) Resolve() {
	signal.Stop(d.deferred)
	for {
		select {
		case captured := <-d.deferred:
			raise(captured)
		default:
			return
		}
	}
}

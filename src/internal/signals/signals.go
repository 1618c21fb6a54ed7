// Package signals lists the signals that stop hootjobs.
package signals

import (
	"os"
	"syscall"
)

// TerminationSignals contains the signals on which "hootjobs serve" shuts down.  Pass it to
// signal.NotifyContext.
var TerminationSignals = []os.Signal{
	os.Interrupt,
	syscall.SIGTERM,
}

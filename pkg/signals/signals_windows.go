package signals

import (
	"os"
	"syscall"
)

// TerminationSignals are those signals treated as requesting termination and
// therefore subject to deferral. SIGINT is the only POSIX signal supported by
// Go on Windows.
var TerminationSignals = []os.Signal{
	syscall.SIGINT,
}

// raise re-delivers a captured signal to the current process. Windows has no
// kill-style re-delivery mechanism for console events, so the process exits
// with the conventional interrupted-process code instead.
func raise(os.Signal) {
	os.Exit(130)
}

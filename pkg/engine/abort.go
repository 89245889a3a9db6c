package engine

import (
	"os"

	"github.com/flashcore/ooce/internal/logger"
)

// exitFunc is indirected so tests can substitute a non-exiting hook instead
// of tearing down the test binary.
var exitFunc = os.Exit

// Abort logs reason at error level and terminates the process. No package
// in this module calls it: the scheduler logs a kernel error and completes
// the task, and the I/O executor reports exhausted hazard retries to the
// request's callback as ErrHazardExhausted.
func Abort(reason string, args ...any) {
	logger.Error(reason, args...)
	exitFunc(1)
}

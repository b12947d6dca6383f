// Package errorhandler provides process-wide panic recovery and critical
// error reporting.
package errorhandler

import (
	"fmt"
	"os"
	"runtime/debug"
	"sync"

	"github.com/breki/kozmotic/internal/apperr"
	"github.com/breki/kozmotic/internal/logging"
)

var (
	mu              sync.RWMutex
	logToConsole    = true
	exitOnCritical  = false
	recoveryEnabled = true
)

// Init configures the global handler.
// logToConsole: also print critical errors to stderr
// exitOnCritical: exit(1) after HandleCriticalError
// recoveryEnabled: HandlePanic recovers instead of re-panicking
func Init(console, exit, recovery bool) {
	mu.Lock()
	defer mu.Unlock()
	logToConsole = console
	exitOnCritical = exit
	recoveryEnabled = recovery
}

// HandlePanic recovers from a panic and logs it. Must be deferred directly.
func HandlePanic() {
	mu.RLock()
	enabled := recoveryEnabled
	mu.RUnlock()

	if !enabled {
		return
	}
	if r := recover(); r != nil {
		logging.Error("Recovered from panic: %v\n%s", r, debug.Stack())
	}
}

// HandleCriticalError logs err with context and optionally exits
func HandleCriticalError(err error, msg string) {
	if err == nil {
		return
	}

	mu.RLock()
	console, exit := logToConsole, exitOnCritical
	mu.RUnlock()

	logging.Error("%s: %v", msg, err)
	if console {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	}
	if exit {
		os.Exit(1)
	}
}

// Recover runs fn and converts a panic into an Internal error
func Recover(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Recovered from panic: %v\n%s", r, debug.Stack())
			err = apperr.New(apperr.Internal, "internal error: %v", r)
		}
	}()
	return fn()
}

// ABOUTME: Entry point for kozmotic, the notification sound player for agents.
// ABOUTME: Every invocation prints one result envelope on stdout and exits 0, 1 or 2.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/breki/kozmotic/internal/envelope"
	"github.com/breki/kozmotic/internal/errorhandler"
	"github.com/breki/kozmotic/internal/logging"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	// logToConsole=true: errors will be shown on stderr
	// exitOnCritical=false: the envelope decides the exit code
	// recoveryEnabled=true: recover from panics
	errorhandler.Init(true, false, true)

	// SIGINT/SIGTERM cancel the playback; the device is released and an
	// INTERRUPTED envelope is still printed
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := func() (code int) {
		code = envelope.ExitSystem
		defer errorhandler.HandlePanic()
		return newCLI(os.Stdout, os.Stderr).execute(ctx, os.Args[1:])
	}()

	stop()
	logging.Close()
	os.Exit(code)
}

package envelope

import "github.com/breki/kozmotic/internal/apperr"

// Process exit codes
const (
	ExitSuccess = 0
	ExitSystem  = 1 // device, timeout, interrupt, internal
	ExitInput   = 2 // the caller asked for something invalid
)

// ExitCode maps an invocation result onto the process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	return ExitCodeForKind(apperr.KindOf(err))
}

// ExitCodeForKind maps a kind onto its exit code
func ExitCodeForKind(kind apperr.Kind) int {
	switch kind.Class() {
	case apperr.ClassInput:
		return ExitInput
	case apperr.ClassSystem:
		return ExitSystem
	}
	return ExitSystem
}

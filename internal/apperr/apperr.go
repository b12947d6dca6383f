// Package apperr defines the closed set of failure kinds reported by kozmotic
// and their mapping onto process exit classes.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies one failure category. The set is closed: every Kind has
// exactly one stable code and exactly one exit class.
type Kind int

const (
	// InvalidSourceSelection means zero or multiple sound sources were given.
	InvalidSourceSelection Kind = iota + 1
	// UnknownPreset means the preset name is not in the registry.
	UnknownPreset
	// FrequencyOutOfRange means a tone frequency is outside [20, 20000] Hz.
	FrequencyOutOfRange
	// FileNotFound means the custom sound file does not exist.
	FileNotFound
	// UnsupportedFormat means the custom sound file cannot be decoded.
	UnsupportedFormat
	// InvalidVolume means the volume is outside [0.0, 1.0].
	InvalidVolume
	// InvalidArgument covers any other malformed delivery parameter or flag.
	InvalidArgument
	// PlaybackDeviceError means the output device is unavailable or failed.
	PlaybackDeviceError
	// Timeout means the global time budget ran out before all repeats completed.
	Timeout
	// Interrupted means the invocation was cancelled by a signal.
	Interrupted
	// Internal is an unexpected failure (recovered panic, encoding error).
	Internal
)

// Class groups kinds by the exit code they produce.
type Class int

const (
	// ClassInput is for validation and input errors.
	ClassInput Class = iota + 1
	// ClassSystem is for device and system errors.
	ClassSystem
)

// Kinds returns every defined Kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		InvalidSourceSelection,
		UnknownPreset,
		FrequencyOutOfRange,
		FileNotFound,
		UnsupportedFormat,
		InvalidVolume,
		InvalidArgument,
		PlaybackDeviceError,
		Timeout,
		Interrupted,
		Internal,
	}
}

// Code returns the stable UPPER_SNAKE_CASE code for the kind.
func (k Kind) Code() string {
	switch k {
	case InvalidSourceSelection:
		return "INVALID_SOURCE_SELECTION"
	case UnknownPreset:
		return "UNKNOWN_PRESET"
	case FrequencyOutOfRange:
		return "FREQUENCY_OUT_OF_RANGE"
	case FileNotFound:
		return "FILE_NOT_FOUND"
	case UnsupportedFormat:
		return "UNSUPPORTED_FORMAT"
	case InvalidVolume:
		return "INVALID_VOLUME"
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case PlaybackDeviceError:
		return "PLAYBACK_DEVICE_ERROR"
	case Timeout:
		return "TIMEOUT"
	case Interrupted:
		return "INTERRUPTED"
	case Internal:
		return "INTERNAL"
	}
	return "INTERNAL"
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return k.Code()
}

// Class returns the exit class of the kind.
func (k Kind) Class() Class {
	switch k {
	case InvalidSourceSelection,
		UnknownPreset,
		FrequencyOutOfRange,
		FileNotFound,
		UnsupportedFormat,
		InvalidVolume,
		InvalidArgument:
		return ClassInput
	case PlaybackDeviceError,
		Timeout,
		Interrupted,
		Internal:
		return ClassSystem
	}
	return ClassSystem
}

// Error is a kinded failure. Details carries kind-specific fields that are
// echoed to the caller (known preset names, range bounds, elapsed time).
// Partial carries whatever result was produced before the failure.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Partial any
	Err     error
}

// New creates a kinded error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a kinded error that wraps a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// With adds a detail field and returns the error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithPartial attaches a partial result and returns the error for chaining.
func (e *Error) WithPartial(partial any) *Error {
	e.Partial = partial
	return e
}

// KindOf reports the kind of err. Errors that carry no kind are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// As returns the kinded error inside err, converting unkinded errors to
// Internal so callers always get a populated value.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(Internal, err, "unexpected failure")
}

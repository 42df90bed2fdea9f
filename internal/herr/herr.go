// Package herr defines the typed error kinds used across the engine,
// grouped by the subsystem that raises them (spec §7).
package herr

import "errors"

// Kind identifies an error's subsystem and code (spec §7).
type Kind int

const (
	// Transport
	NotConnected Kind = iota
	ProtocolViolation
	SyscallError
	UserDisconnect

	// Configuration
	BadScoConfig
	ServiceConflict
	NoKernelSupport

	// Protocol
	CommandRejected
	CommandAborted
	BadParameter

	// Stream
	DuplexMismatch
	FormatMismatch
	NoClock
	BadPumpConfig
	DataExhausted
	SoundcardFailed
	WatchdogTimeout
	AlreadyOpen
	NoMem
)

func (k Kind) String() string {
	switch k {
	case NotConnected:
		return "NotConnected"
	case ProtocolViolation:
		return "ProtocolViolation"
	case SyscallError:
		return "SyscallError"
	case UserDisconnect:
		return "UserDisconnect"
	case BadScoConfig:
		return "BadScoConfig"
	case ServiceConflict:
		return "ServiceConflict"
	case NoKernelSupport:
		return "NoKernelSupport"
	case CommandRejected:
		return "CommandRejected"
	case CommandAborted:
		return "CommandAborted"
	case BadParameter:
		return "BadParameter"
	case DuplexMismatch:
		return "DuplexMismatch"
	case FormatMismatch:
		return "FormatMismatch"
	case NoClock:
		return "NoClock"
	case BadPumpConfig:
		return "BadPumpConfig"
	case DataExhausted:
		return "DataExhausted"
	case SoundcardFailed:
		return "SoundcardFailed"
	case WatchdogTimeout:
		return "WatchdogTimeout"
	case AlreadyOpen:
		return "AlreadyOpen"
	case NoMem:
		return "NoMem"
	default:
		return "Unknown"
	}
}

// Error is a typed, wrappable engine error.
type Error struct {
	Kind   Kind
	Scope  string // e.g. "hfp", "sco", "pump"
	Reason string
	Err    error // optional underlying cause
}

func (e *Error) Error() string {
	msg := e.Scope + ": " + e.Kind.String()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, herr.New(herr.CommandAborted, "", "", nil)) style
// checks work, and so callers can use the sentinel-style helpers below.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New builds an *Error.
func New(kind Kind, scope, reason string, cause error) *Error {
	return &Error{Kind: kind, Scope: scope, Reason: reason, Err: cause}
}

// Wrap attaches scope/kind to an existing error.
func Wrap(kind Kind, scope string, cause error) *Error {
	return &Error{Kind: kind, Scope: scope, Err: cause}
}

// KindOf extracts the Kind from err, if err is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// HasKind reports whether err is (or wraps) an *Error of the given kind.
func HasKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

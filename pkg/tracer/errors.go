// Package tracer implements the inferior-control engine: process lifecycle,
// register and memory access, and software breakpoints for a single traced
// process on Linux/x86-64.
package tracer

import (
	"errors"
	"fmt"
)

// Kind classifies the errors this package can return.
type Kind int

const (
	// LaunchFailed indicates fork/exec/dup2 failed in the child, reported
	// back through the StatusPipe, or personality(2) failed in the parent
	// just before the fork.
	LaunchFailed Kind = iota
	// AttachFailed indicates the kernel refused PTRACE_ATTACH.
	AttachFailed
	// WaitFailed indicates wait4 returned an OS error.
	WaitFailed
	// RegisterIOFailed indicates a register get/set syscall failed.
	RegisterIOFailed
	// MemoryIOFailed indicates a memory read or write syscall failed.
	MemoryIOFailed
	// BreakpointNotFound indicates a lookup by id or address missed.
	BreakpointNotFound
	// DuplicateAddress indicates a breakpoint already exists at an address.
	DuplicateAddress
	// ParseError indicates malformed REPL input.
	ParseError
	// UnsupportedOperation indicates a request this package deliberately refuses.
	UnsupportedOperation
)

func (k Kind) String() string {
	switch k {
	case LaunchFailed:
		return "launch failed"
	case AttachFailed:
		return "attach failed"
	case WaitFailed:
		return "wait failed"
	case RegisterIOFailed:
		return "register I/O failed"
	case MemoryIOFailed:
		return "memory I/O failed"
	case BreakpointNotFound:
		return "breakpoint not found"
	case DuplicateAddress:
		return "duplicate breakpoint address"
	case ParseError:
		return "parse error"
	case UnsupportedOperation:
		return "unsupported operation"
	default:
		return "unknown error"
	}
}

// Error is the error type returned by every fallible operation in this
// package. The core never panics or aborts on an inferior error: every
// failure is surfaced as a value of this type.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %s: %s", e.Kind, e.Msg, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	}
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, tracer.ErrBreakpointNotFound) match any *Error of
// the same Kind, the same way the sentinel family below is compared.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func wrapError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Sentinels so callers can errors.Is against a specific kind without
// constructing an *Error, the same package-level sentinel-value idiom as
// io.EOF or os.ErrNotExist.
var (
	ErrLaunchFailed         = &Error{Kind: LaunchFailed}
	ErrAttachFailed         = &Error{Kind: AttachFailed}
	ErrWaitFailed           = &Error{Kind: WaitFailed}
	ErrRegisterIOFailed     = &Error{Kind: RegisterIOFailed}
	ErrMemoryIOFailed       = &Error{Kind: MemoryIOFailed}
	ErrBreakpointNotFound   = &Error{Kind: BreakpointNotFound}
	ErrDuplicateAddress     = &Error{Kind: DuplicateAddress}
	ErrParseError           = &Error{Kind: ParseError}
	ErrUnsupportedOperation = &Error{Kind: UnsupportedOperation}
)

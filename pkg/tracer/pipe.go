package tracer

// StatusPipe models the parent↔child, one-shot error channel used while
// launching the tracee over a close-on-exec pipe: an empty message means
// the child reached exec successfully, a non-empty one is the error the
// child hit between fork and exec.
//
// A hand-rolled fork()+pipe2() implementation (as a native debugger written
// in C or Rust would use) is not a safe operation to perform from ordinary
// Go code: forking a garbage-collected, multi-threaded runtime outside of
// the runtime's own carefully controlled, single-threaded
// syscall.forkAndExecInChild would leave the child with a potentially
// inconsistent heap and live goroutines it can never run. Go already
// performs the exact fork/exec-with-error-pipe dance this component
// describes inside syscall.ForkExec, using a close-on-exec pipe of its own
// to report anything that goes wrong between fork and exec (including a
// failed PTRACE_TRACEME, requested through SysProcAttr). The personality(2)
// call that disables ASLR runs in the parent before the fork, so its failure
// is reported by Launch directly, not through this channel. StatusPipe is
// therefore a thin, directly testable adapter
// over that built-in contract rather than a duplicate implementation of it.
type StatusPipe struct {
	childErr error
}

// newStatusPipe wraps the error (if any) that syscall.ForkExec's internal
// pipe reported from the child.
func newStatusPipe(childErr error) *StatusPipe {
	return &StatusPipe{childErr: childErr}
}

// Read returns the child's error message, or "" if the child reached exec
// successfully. It never returns a Go error itself: by the time the parent
// can call Read, the pipe I/O has already happened inside ForkExec.
func (p *StatusPipe) Read() string {
	if p.childErr == nil {
		return ""
	}
	return p.childErr.Error()
}

// Failed reports whether the child reported an error before exec.
func (p *StatusPipe) Failed() bool {
	return p.childErr != nil
}

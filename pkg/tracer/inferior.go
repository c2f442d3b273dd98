package tracer

import (
	"os"
	"runtime"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// State is the coarse lifecycle state of an Inferior.
type State int

const (
	StateStopped State = iota
	StateRunning
	StateExited
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// StopReason reports why Wait returned: a clean exit, a fatal signal, or a
// stop the tracer can inspect and resume from.
type StopReason struct {
	State    State
	ExitCode int
	Signal   unix.Signal
}

// personalityAddrNoRandomize is ADDR_NO_RANDOMIZE, the personality(2) flag
// that disables ASLR for a process's own mappings. Declared locally rather
// than trusting it to be exported under this exact name by every version of
// golang.org/x/sys/unix.
const personalityAddrNoRandomize = 0x0040000

// Inferior is a single traced process: its pid, its register mirror, its
// memory access path, and its breakpoint bookkeeping. Every blocking call on
// an Inferior (Launch, Attach, Wait, Resume, SingleStep) must run on the
// same OS thread, because Linux's ptrace tracer/tracee relationship is a
// per-thread relationship, not a per-process one; runtime.LockOSThread
// pins the calling goroutine to one OS thread for the Inferior's entire
// lifetime so the Go scheduler can never hand its ptrace calls to a
// different thread than the one that attached.
type Inferior struct {
	pid      int
	state    State
	regs     *RegisterFile
	mem      *MemoryIO
	bpts     *BreakpointTable
	lastStop StopReason

	// attached is true whenever this Inferior holds a ptrace tracer
	// relationship it must tear down itself (detach, SIGCONT) on Close —
	// true for both Launch and Attach, since both trace from the start.
	attached bool
	// autoterm is true when this Inferior's own Launch call is what
	// brought the tracee into existence, so Close must SIGKILL and reap it
	// rather than leave it running detached — true only for Launch.
	autoterm bool
}

func newInferiorAfterStop(pid int, attached, autoterm bool) *Inferior {
	return &Inferior{
		pid:      pid,
		regs:     newRegisterFile(),
		mem:      newMemoryIO(pid),
		bpts:     newBreakpointTable(),
		state:    StateStopped,
		attached: attached,
		autoterm: autoterm,
	}
}

// Launch forks and execs path with args, tracing it from the very first
// instruction. The child is stopped with SIGTRAP immediately after execve
// returns, before any of its own code runs (the kernel's standard
// PTRACE_TRACEME behavior). The child inherits the debugger's stdin,
// stdout, and stderr.
func Launch(path string, args []string) (*Inferior, error) {
	return LaunchWithOutput(path, args, nil)
}

// LaunchWithOutput is Launch with the child's stdout redirected to the
// given file. The test harness uses this to capture what a target prints;
// a nil stdout inherits the debugger's own.
func LaunchWithOutput(path string, args []string, stdout *os.File) (*Inferior, error) {
	runtime.LockOSThread()

	// personality(2) is a process attribute: it survives fork and exec
	// alike, so setting it here in the parent just before forking disables
	// ASLR for the child without needing a SysProcAttr hook that runs
	// between fork and exec (syscall.SysProcAttr has no such field). The
	// parent's own future mappings are affected too, which is harmless for
	// a single-purpose debugger process.
	if _, _, errno := unix.Syscall(unix.SYS_PERSONALITY, uintptr(personalityAddrNoRandomize), 0, 0); errno != 0 {
		runtime.UnlockOSThread()
		return nil, wrapError(LaunchFailed, "personality", errno)
	}

	outFd := uintptr(1)
	if stdout != nil {
		outFd = stdout.Fd()
	}
	argv := append([]string{path}, args...)
	attr := &syscall.ProcAttr{
		Files: []uintptr{0, outFd, 2},
		Sys: &syscall.SysProcAttr{
			Ptrace: true,
		},
	}
	pid, forkErr := syscall.ForkExec(path, argv, attr)
	pipe := newStatusPipe(forkErr)
	if pipe.Failed() {
		runtime.UnlockOSThread()
		return nil, wrapError(LaunchFailed, pipe.Read(), forkErr)
	}

	inf := newInferiorAfterStop(pid, true, true)
	if _, err := inf.waitRaw(); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	if err := inf.refreshRegisters(); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	return inf, nil
}

// Attach begins tracing an already-running process by pid.
func Attach(pid int) (*Inferior, error) {
	runtime.LockOSThread()

	if err := unix.PtraceAttach(pid); err != nil {
		runtime.UnlockOSThread()
		return nil, wrapError(AttachFailed, "ptrace_attach", err)
	}
	inf := newInferiorAfterStop(pid, true, false)
	if _, err := inf.waitRaw(); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	if err := inf.refreshRegisters(); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	return inf, nil
}

// PID returns the tracee's process id.
func (inf *Inferior) PID() int { return inf.pid }

// State returns the Inferior's last-known lifecycle state.
func (inf *Inferior) State() State { return inf.state }

// LastStop returns the StopReason from the most recent Wait.
func (inf *Inferior) LastStop() StopReason { return inf.lastStop }

func (inf *Inferior) waitRaw() (StopReason, error) {
	var ws unix.WaitStatus
	_, err := unix.Wait4(inf.pid, &ws, 0, nil)
	if err != nil {
		return StopReason{}, wrapError(WaitFailed, "wait4", err)
	}
	var reason StopReason
	switch {
	case ws.Exited():
		reason.State = StateExited
		reason.ExitCode = ws.ExitStatus()
	case ws.Signaled():
		reason.State = StateTerminated
		reason.Signal = ws.Signal()
	case ws.Stopped():
		reason.State = StateStopped
		reason.Signal = ws.StopSignal()
	}
	inf.state = reason.State
	inf.lastStop = reason
	return reason, nil
}

// Wait blocks until the tracee changes state, then refreshes the register
// mirror if it stopped. A stop caused by hitting an installed breakpoint's
// INT3 leaves the kernel-reported PC one byte past the patch; Wait rewinds
// it back to the breakpoint's own address so callers see the address they
// set the breakpoint at, not the byte after it.
func (inf *Inferior) Wait() (StopReason, error) {
	reason, err := inf.waitRaw()
	if err != nil {
		return reason, err
	}
	if reason.State != StateStopped {
		return reason, nil
	}
	if err := inf.refreshRegisters(); err != nil {
		return reason, err
	}
	if reason.Signal == unix.SIGTRAP {
		pc := inf.PC()
		if site, ok := inf.bpts.FindAt(pc.Sub(1)); ok && site.enabled {
			if err := inf.SetPC(pc.Sub(1)); err != nil {
				return reason, err
			}
		}
	}
	return reason, nil
}

// Resume lets the tracee run until the next stop, stepping over an
// installed breakpoint at the current PC first if needed.
func (inf *Inferior) Resume() error {
	if inf.state == StateExited || inf.state == StateTerminated {
		return newError(UnsupportedOperation, "inferior is not running")
	}
	if _, err := inf.stepOverBreakpointIfNeeded(); err != nil {
		return err
	}
	if err := unix.PtraceCont(inf.pid, 0); err != nil {
		return wrapError(WaitFailed, "ptrace_cont", err)
	}
	inf.state = StateRunning
	return nil
}

// SingleStep executes exactly one machine instruction. If the tracee is
// sitting on an installed breakpoint, the step-over protocol already
// advances it by one instruction, so SingleStep reports that result instead
// of stepping a second time.
func (inf *Inferior) SingleStep() (StopReason, error) {
	stepped, err := inf.stepOverBreakpointIfNeeded()
	if err != nil {
		return StopReason{}, err
	}
	if stepped {
		return inf.lastStop, nil
	}
	if err := unix.PtraceSingleStep(inf.pid); err != nil {
		return StopReason{}, wrapError(WaitFailed, "ptrace_singlestep", err)
	}
	return inf.Wait()
}

// stepOverBreakpointIfNeeded disables, single-steps past, and re-enables an
// installed breakpoint sitting at the current PC. It reports whether a step
// was actually taken.
func (inf *Inferior) stepOverBreakpointIfNeeded() (bool, error) {
	pc := inf.PC()
	site, ok := inf.bpts.FindAt(pc)
	if !ok || !site.enabled {
		return false, nil
	}
	if err := inf.DisableBreakpoint(site); err != nil {
		return false, err
	}
	if err := unix.PtraceSingleStep(inf.pid); err != nil {
		return false, wrapError(WaitFailed, "ptrace_singlestep", err)
	}
	if _, err := inf.waitRaw(); err != nil {
		return false, err
	}
	if err := inf.refreshRegisters(); err != nil {
		return false, err
	}
	if err := inf.EnableBreakpoint(site); err != nil {
		return false, err
	}
	return true, nil
}

func (inf *Inferior) refreshRegisters() error {
	regs := (*unix.PtraceRegs)(unsafe.Pointer(&inf.regs.mirror[gprBlockOffset]))
	if err := unix.PtraceGetRegs(inf.pid, regs); err != nil {
		return wrapError(RegisterIOFailed, "ptrace_getregs", err)
	}
	fp := (*userFPRegs)(unsafe.Pointer(&inf.regs.mirror[fprBlockOffset]))
	if err := ptraceGetFPRegsRaw(inf.pid, fp); err != nil {
		return wrapError(RegisterIOFailed, "ptrace_getfpregs", err)
	}
	for i := 0; i < 8; i++ {
		off := debugBlockOffset + 8*i
		word, err := ptracePeekUserRaw(inf.pid, off)
		if err != nil {
			return wrapError(RegisterIOFailed, "ptrace_peekuser", err)
		}
		inf.regs.setClongAt(off, uint64(word))
	}
	return nil
}

// ReadRegister returns the current value of a register from the mirror.
func (inf *Inferior) ReadRegister(info *RegisterInfo) RegisterValue {
	return inf.regs.Read(info)
}

// WriteRegister writes value into the mirror and flushes it through to the
// kernel. An FPR write flushes the whole x87/SSE block with
// PTRACE_SETFPREGS (the kernel has no narrower interface for it); any other
// register rounds its mirror offset down to an 8-byte boundary and pokes
// that one word into the user area, which covers full GPRs, sub-register
// views (including the +1-offset high-byte ones, which still land inside
// their parent's word), and debug registers alike.
func (inf *Inferior) WriteRegister(value RegisterValue) error {
	inf.regs.Write(value)
	if value.Info.Class == ClassFPR {
		fp := (*userFPRegs)(unsafe.Pointer(&inf.regs.mirror[fprBlockOffset]))
		if err := ptraceSetFPRegsRaw(inf.pid, fp); err != nil {
			return wrapError(RegisterIOFailed, "ptrace_setfpregs", err)
		}
		return nil
	}
	aligned := value.Info.Offset &^ 7
	word := inf.regs.ClongAt(aligned)
	if err := ptracePokeUserRaw(inf.pid, aligned, word); err != nil {
		return wrapError(RegisterIOFailed, "ptrace_pokeuser", err)
	}
	return nil
}

// PC returns the tracee's current instruction pointer.
func (inf *Inferior) PC() VirtualAddress {
	return VirtualAddress(ReadRegisterAs[uint64](inf.regs.Read(registerPC)))
}

// SetPC writes the tracee's instruction pointer.
func (inf *Inferior) SetPC(addr VirtualAddress) error {
	return inf.WriteRegister(NewUintValue(registerPC, addr.Uint64()))
}

// SP returns the tracee's current stack pointer.
func (inf *Inferior) SP() VirtualAddress {
	return VirtualAddress(ReadRegisterAs[uint64](inf.regs.Read(registerSP)))
}

// Memory returns the Inferior's memory-access path.
func (inf *Inferior) Memory() *MemoryIO { return inf.mem }

// Breakpoints returns the Inferior's breakpoint table.
func (inf *Inferior) Breakpoints() *BreakpointTable { return inf.bpts }

// SetBreakpoint registers a new, disabled breakpoint site at addr. No
// tracee memory is touched until the site is enabled.
func (inf *Inferior) SetBreakpoint(addr VirtualAddress) (*BreakpointSite, error) {
	return inf.bpts.Create(addr)
}

// EnableBreakpoint captures the original instruction byte at the site's
// address, then patches the tracee's memory with an INT3 there. On failure
// the site stays disabled and its saved byte unchanged. The surrounding
// seven bytes of the poked word are preserved by MemoryIO.Write's
// read-modify-write.
func (inf *Inferior) EnableBreakpoint(site *BreakpointSite) error {
	if site.enabled {
		return nil
	}
	orig, err := inf.mem.ReadFull(site.Address, 1)
	if err != nil {
		return err
	}
	if err := inf.mem.Write(site.Address, []byte{0xCC}); err != nil {
		return err
	}
	site.savedByte = orig[0]
	site.hasSaved = true
	site.enabled = true
	return nil
}

// DisableBreakpoint restores the site's saved original byte and clears it.
func (inf *Inferior) DisableBreakpoint(site *BreakpointSite) error {
	if !site.enabled {
		return nil
	}
	if err := inf.mem.Write(site.Address, []byte{site.savedByte}); err != nil {
		return err
	}
	site.enabled = false
	site.hasSaved = false
	return nil
}

// RemoveBreakpoint disables (if needed) and deletes a site by id.
func (inf *Inferior) RemoveBreakpoint(id int) error {
	site, ok := inf.bpts.FindByID(id)
	if !ok {
		return newError(BreakpointNotFound, "no breakpoint with id")
	}
	if site.enabled {
		if err := inf.DisableBreakpoint(site); err != nil {
			return err
		}
	}
	return inf.bpts.Delete(id)
}

// EnableAllBreakpoints enables every registered site.
func (inf *Inferior) EnableAllBreakpoints() error {
	for _, s := range inf.bpts.All() {
		if err := inf.EnableBreakpoint(s); err != nil {
			return err
		}
	}
	return nil
}

// DisableAllBreakpoints disables every registered site.
func (inf *Inferior) DisableAllBreakpoints() error {
	for _, s := range inf.bpts.All() {
		if err := inf.DisableBreakpoint(s); err != nil {
			return err
		}
	}
	return nil
}

// ClearAllBreakpoints disables and removes every registered site.
func (inf *Inferior) ClearAllBreakpoints() error {
	if err := inf.DisableAllBreakpoints(); err != nil {
		return err
	}
	inf.bpts.Clear()
	return nil
}

// Close tears the Inferior down following the same two-part teardown the
// process model documents: if attached, a still-running tracee is SIGKILLed
// and reaped first; a tracee that is still alive and stopped has its
// breakpoint bytes restored so the process image is left as it would have
// been without the debugger, is detached, and let continue (SIGCONT); then,
// if autoterm (the Inferior's own Launch started this
// process, as opposed to Attach joining one that already existed), it is
// unconditionally SIGKILLed and reaped, since nothing else owns its
// lifetime. The OS thread locked for this Inferior's lifetime is released
// last. Close is best-effort, the same way a destructor that cannot itself
// fail is best-effort: it keeps going through each step so a process is
// never left half torn-down, and returns the last error encountered, if
// any.
func (inf *Inferior) Close() error {
	defer runtime.UnlockOSThread()

	if inf.pid == 0 {
		return nil
	}
	var lastErr error
	if inf.attached {
		if inf.state == StateRunning {
			if err := unix.Kill(inf.pid, unix.SIGKILL); err != nil {
				lastErr = wrapError(WaitFailed, "kill", err)
			} else {
				inf.waitRaw()
			}
		}
		if inf.state != StateExited && inf.state != StateTerminated {
			if err := inf.DisableAllBreakpoints(); err != nil {
				lastErr = err
			}
			if err := unix.PtraceDetach(inf.pid); err != nil {
				lastErr = wrapError(WaitFailed, "ptrace_detach", err)
			}
			if err := unix.Kill(inf.pid, unix.SIGCONT); err != nil {
				lastErr = wrapError(WaitFailed, "kill", err)
			}
		}
	}
	if inf.autoterm && inf.state != StateExited && inf.state != StateTerminated {
		if err := unix.Kill(inf.pid, unix.SIGKILL); err != nil {
			lastErr = wrapError(WaitFailed, "kill", err)
		} else {
			inf.waitRaw()
		}
	}
	return lastErr
}

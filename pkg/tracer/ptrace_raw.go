package tracer

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// golang.org/x/sys/unix wraps PTRACE_GETREGS/SETREGS/PEEKDATA/POKEDATA and
// PTRACE_TRACEME as PtraceGetRegs/PtraceSetRegs/PtracePeekData/
// PtracePokeData/PtraceTraceMe, but has no typed wrapper for
// PTRACE_GETFPREGS/SETFPREGS or PTRACE_PEEKUSER/POKEUSER on linux/amd64. The
// Rust original reaches for a raw libc::ptrace(2) call for exactly these
// requests too; the Go equivalent is unix.Syscall6 against SYS_PTRACE.

const (
	ptraceGetFPRegs = 14
	ptraceSetFPRegs = 15
	ptracePeekUser  = 3
	ptracePokeUser  = 6
)

func ptraceGetFPRegsRaw(pid int, fpregs *userFPRegs) error {
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, ptraceGetFPRegs, uintptr(pid), 0, uintptr(unsafe.Pointer(fpregs)), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func ptraceSetFPRegsRaw(pid int, fpregs *userFPRegs) error {
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, ptraceSetFPRegs, uintptr(pid), 0, uintptr(unsafe.Pointer(fpregs)), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func ptracePeekUserRaw(pid int, offset int) (int64, error) {
	var word int64
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, ptracePeekUser, uintptr(pid), uintptr(offset), uintptr(unsafe.Pointer(&word)), 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return word, nil
}

func ptracePokeUserRaw(pid int, offset int, word int64) error {
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, ptracePokeUser, uintptr(pid), uintptr(offset), uintptr(word), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

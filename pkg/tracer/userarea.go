package tracer

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// userFPRegs mirrors the kernel's struct user_fpregs_struct (x86_64),
// i.e. the legacy x87/SSE area returned by PTRACE_GETFPREGS. There is no
// ready-made binding for it in golang.org/x/sys/unix (unlike PtraceRegs for
// PTRACE_GETREGS), so it is re-declared here byte-for-byte from the kernel
// headers, the same way the Rust original pulls in libc::user_fpregs_struct.
type userFPRegs struct {
	Cwd      uint16
	Swd      uint16
	Ftw      uint16
	Fop      uint16
	Rip      uint64
	Rdp      uint64
	Mxcsr    uint32
	MxcrMask uint32
	StSpace  [32]uint32 // st0..st7, 16 bytes each
	XmmSpace [64]uint32 // xmm0..xmm15, 16 bytes each
	Padding  [24]uint32
}

// userArea mirrors glibc/the kernel's struct user (x86_64): the fixed-layout
// blob PTRACE_PEEKUSER/PTRACE_POKEUSER index into. RegisterInfo.Offset is
// always relative to the start of this struct, which is why the debug
// registers' offsets (computed below) land at the real u_debugreg offset
// instead of some package-private scheme.
type userArea struct {
	Regs       unix.PtraceRegs
	FPValid    int32
	_          int32
	I387       userFPRegs
	USize      [3]uint64
	StartCode  uint64
	StartStack uint64
	Signal     int64
	Reserved   int32
	_          int32
	UAr0       uint64
	UFPState   uint64
	Magic      uint64
	UComm      [32]byte
	UDebugReg  [8]uint64
}

// userAreaSize is the size in bytes of the RegisterFile's mirror buffer.
var userAreaSize = int(unsafe.Sizeof(userArea{}))

var (
	gprBlockOffset   = int(unsafe.Offsetof(userArea{}.Regs))
	fprBlockOffset   = int(unsafe.Offsetof(userArea{}.I387))
	debugBlockOffset = int(unsafe.Offsetof(userArea{}.UDebugReg))

	userAreaGPRSize = int(unsafe.Sizeof(userArea{}.Regs))
	userAreaFPRSize = int(unsafe.Sizeof(userArea{}.I387))
)

func fpOffset(field uintptr) int {
	return fprBlockOffset + int(field)
}

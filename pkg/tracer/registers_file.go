package tracer

import (
	"encoding/binary"
	"unsafe"
)

// RegisterFile is a byte-addressable mirror of the kernel's user-area for
// one inferior. It is refreshed wholesale whenever the tracee stops and
// written through to the kernel register-by-register on write. Exactly one
// RegisterFile exists per Inferior.
type RegisterFile struct {
	mirror []byte
}

func newRegisterFile() *RegisterFile {
	// The mirror is backed by a real userArea so the in-place casts the
	// Inferior performs against the GPR and FPR blocks (PtraceRegs,
	// userFPRegs) are always correctly aligned.
	area := new(userArea)
	return &RegisterFile{mirror: unsafe.Slice((*byte)(unsafe.Pointer(area)), userAreaSize)}
}

// Read copies info.Size bytes from the mirror into a fresh RegisterValue.
func (rf *RegisterFile) Read(info *RegisterInfo) RegisterValue {
	var v RegisterValue
	v.Info = info
	copy(v.raw[:info.Size], rf.mirror[info.Offset:info.Offset+info.Size])
	return v
}

// Write copies value.Info.Size bytes from the value's payload into the
// mirror at value.Info.Offset. For ah/bh/ch/dh the offset already carries
// the +1 high-byte adjustment baked in by the catalog.
func (rf *RegisterFile) Write(value RegisterValue) {
	info := value.Info
	copy(rf.mirror[info.Offset:info.Offset+info.Size], value.Bytes())
}

// ClongAt reads a naturally aligned 8-byte word from the mirror. The
// Inferior uses this to assemble the 8-byte units PTRACE_POKEUSER requires
// when a sub-register write needs to be folded back into its parent word.
func (rf *RegisterFile) ClongAt(offset int) int64 {
	return int64(binary.LittleEndian.Uint64(rf.mirror[offset : offset+8]))
}

// setClongAt installs an 8-byte word at offset, used when refreshing debug
// registers from PTRACE_PEEKUSER.
func (rf *RegisterFile) setClongAt(offset int, val uint64) {
	binary.LittleEndian.PutUint64(rf.mirror[offset:offset+8], val)
}

// gprBlock returns the mirror's GPR block (the PTRACE_GETREGS layout) as an
// in-place byte view. Inferior.refreshRegisters does not go through it; it
// casts the mirror to *unix.PtraceRegs directly.
func (rf *RegisterFile) gprBlock() []byte {
	return rf.mirror[gprBlockOffset : gprBlockOffset+userAreaGPRSize]
}

// fprBlock returns the mirror's x87/SSE block (the PTRACE_GETFPREGS layout)
// as an in-place byte view. Like gprBlock, it is not used by
// Inferior.refreshRegisters, which casts the mirror to *userFPRegs.
func (rf *RegisterFile) fprBlock() []byte {
	return rf.mirror[fprBlockOffset : fprBlockOffset+userAreaFPRSize]
}

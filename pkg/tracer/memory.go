package tracer

import (
	"golang.org/x/sys/unix"
)

// memoryPageSize is the granularity Read splits the remote side at. Linux
// x86-64 pages are 4 KiB; splitting the remote iovec on page boundaries
// means a fault in one page still returns every byte from the pages before
// it, instead of failing the whole read.
const memoryPageSize = 4096

// MemoryIO reads and writes the tracee's address space. Reads go through
// process_vm_readv(2), a single-syscall scatter/gather read that avoids the
// per-word ptrace(PEEKTEXT) round trip; writes still have to go through
// PTRACE_POKEDATA, since process_vm_writev requires the same capabilities
// but the kernel only lets a ptracing parent write via ptrace itself.
type MemoryIO struct {
	pid int
}

func newMemoryIO(pid int) *MemoryIO {
	return &MemoryIO{pid: pid}
}

// Read copies up to n bytes from the tracee starting at addr. The local
// buffer is one contiguous allocation; the remote side is split into
// page-sized chunks so that a read crossing into an unmapped page still
// yields the bytes from the pages before the fault. The returned slice is
// truncated to the byte count the kernel actually transferred, so its
// length may be shorter than n.
func (m *MemoryIO) Read(addr VirtualAddress, n int) ([]byte, error) {
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	local := []unix.Iovec{{Base: &buf[0], Len: uint64(n)}}
	remote := make([]unix.RemoteIovec, 0, n/memoryPageSize+2)
	for off := 0; off < n; {
		next := addr.Add(uint64(off)).Uint64()
		chunk := memoryPageSize - int(next%memoryPageSize)
		if chunk > n-off {
			chunk = n - off
		}
		remote = append(remote, unix.RemoteIovec{Base: uintptr(next), Len: chunk})
		off += chunk
	}
	read, err := unix.ProcessVMReadv(m.pid, local, remote, 0)
	if err != nil {
		return nil, wrapError(MemoryIOFailed, "process_vm_readv", err)
	}
	return buf[:read], nil
}

// ReadFull is Read, except a transfer shorter than n is an error instead of
// a truncated result. Callers that go on to overlay and write back the
// bytes (breakpoint patching, sub-word writes) need the whole range.
func (m *MemoryIO) ReadFull(addr VirtualAddress, n int) ([]byte, error) {
	buf, err := m.Read(addr, n)
	if err != nil {
		return nil, err
	}
	if len(buf) != n {
		return nil, newError(MemoryIOFailed, "short process_vm_readv read")
	}
	return buf, nil
}

// ReadClean is like Read, but for any breakpoint site address inside the
// range it substitutes the saved original byte in place of the installed
// 0xCC, so disassembly and display never see the debugger's own patches.
func (m *MemoryIO) ReadClean(addr VirtualAddress, n int, bpts *BreakpointTable) ([]byte, error) {
	buf, err := m.Read(addr, n)
	if err != nil {
		return nil, err
	}
	for _, site := range bpts.All() {
		saved, ok := site.SavedByte()
		if !ok || !site.Enabled() {
			continue
		}
		if site.Address.Less(addr) || !site.Address.Less(addr.Add(uint64(len(buf)))) {
			continue
		}
		buf[site.Address.Uint64()-addr.Uint64()] = saved
	}
	return buf, nil
}

// Write copies buf into the tracee starting at addr, using PTRACE_POKEDATA
// one machine word (8 bytes) at a time. A write that doesn't start and end
// on a word boundary first reads back the boundary word(s) so the bytes
// outside buf are preserved.
func (m *MemoryIO) Write(addr VirtualAddress, buf []byte) error {
	const wordSize = 8
	start := addr.Uint64()
	end := start + uint64(len(buf))
	alignedStart := start - (start % wordSize)
	alignedEnd := end
	if rem := end % wordSize; rem != 0 {
		alignedEnd = end + (wordSize - rem)
	}

	full := make([]byte, alignedEnd-alignedStart)
	if start != alignedStart || end != alignedEnd {
		existing, err := m.ReadFull(VirtualAddress(alignedStart), len(full))
		if err != nil {
			return err
		}
		copy(full, existing)
	}
	copy(full[start-alignedStart:], buf)

	for off := uint64(0); off < uint64(len(full)); off += wordSize {
		word := full[off : off+wordSize]
		if n, err := unix.PtracePokeData(m.pid, uintptr(alignedStart+off), word); err != nil || n != wordSize {
			if err == nil {
				err = newError(MemoryIOFailed, "short ptrace_pokedata write")
			}
			return wrapError(MemoryIOFailed, "ptrace_pokedata", err)
		}
	}
	return nil
}

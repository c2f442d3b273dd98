package tracer

import "fmt"

// VirtualAddress is an address in the inferior's virtual address space.
// Arithmetic wraps modulo 2^64; callers must not construct addresses
// outside the tracee's mapped space themselves — the kernel will fail the
// operation that uses them.
type VirtualAddress uint64

// Add returns addr+off.
func (addr VirtualAddress) Add(off uint64) VirtualAddress {
	return VirtualAddress(uint64(addr) + off)
}

// Sub returns addr-off.
func (addr VirtualAddress) Sub(off uint64) VirtualAddress {
	return VirtualAddress(uint64(addr) - off)
}

// Uint64 returns the address as a plain uint64.
func (addr VirtualAddress) Uint64() uint64 {
	return uint64(addr)
}

// String renders the address as 0x-prefixed hex.
func (addr VirtualAddress) String() string {
	return fmt.Sprintf("0x%x", uint64(addr))
}

// Less implements the total order required for sorting breakpoint lists.
func (addr VirtualAddress) Less(other VirtualAddress) bool {
	return addr < other
}

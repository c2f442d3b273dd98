// Package elfaddr resolves a symbol, or another address recorded in an ELF
// executable such as its entry point, to the address it is mapped at inside
// a running, traced process — needed to set a breakpoint on a function by
// name rather than by a raw runtime address the user has to compute by hand.
// It works with the ELF file's virtual addresses; raw file offsets are not
// translated (no section headers are read).
package elfaddr

import (
	"bufio"
	"debug/elf"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Resolver answers address questions about one ELF file loaded into one
// traced process.
type Resolver struct {
	file     *elf.File
	loadBias uint64
	pie      bool
}

// Open parses the ELF headers of path and records whether it is
// position-independent (ET_DYN), which determines whether its addresses
// need a load-bias correction once mapped into a process.
func Open(path string) (*Resolver, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfaddr: open %s: %w", path, err)
	}
	return &Resolver{file: f, pie: f.Type == elf.ET_DYN}, nil
}

// Close releases the underlying file.
func (r *Resolver) Close() error {
	return r.file.Close()
}

// EntryAddress returns the file-relative address of the binary's entry
// point (the ELF header's e_entry field), usable as a breakpoint target
// without needing a symbol table lookup.
func (r *Resolver) EntryAddress() uint64 {
	return r.file.Entry
}

// SymbolAddress returns the file-relative virtual address of a symbol, as
// recorded in the ELF symbol table (no load-bias applied).
func (r *Resolver) SymbolAddress(name string) (uint64, error) {
	syms, err := r.file.Symbols()
	if err != nil {
		return 0, fmt.Errorf("elfaddr: read symbols: %w", err)
	}
	for _, s := range syms {
		if s.Name == name {
			return s.Value, nil
		}
	}
	return 0, fmt.Errorf("elfaddr: symbol %q not found", name)
}

// LoadBiasFromMaps computes the runtime load bias for pid by reading
// /proc/<pid>/maps and finding the first mapping backed by path. For a
// non-PIE (ET_EXEC) binary the bias is always zero: its virtual addresses
// are absolute already.
func (r *Resolver) LoadBiasFromMaps(pid int, path string) (uint64, error) {
	if !r.pie {
		r.loadBias = 0
		return 0, nil
	}
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return 0, fmt.Errorf("elfaddr: open maps: %w", err)
	}
	defer f.Close()

	base := basename(path)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasSuffix(line, base) && !strings.Contains(line, path) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		rangeField := fields[0]
		start, _, ok := strings.Cut(rangeField, "-")
		if !ok {
			continue
		}
		addr, err := strconv.ParseUint(start, 16, 64)
		if err != nil {
			continue
		}
		r.loadBias = addr
		return addr, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("elfaddr: scan maps: %w", err)
	}
	return 0, fmt.Errorf("elfaddr: %s not mapped in pid %d", path, pid)
}

// RuntimeAddress applies the load bias recorded by LoadBiasFromMaps to a
// file-relative virtual address.
func (r *Resolver) RuntimeAddress(fileAddr uint64) uint64 {
	return r.loadBias + fileAddr
}

func basename(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

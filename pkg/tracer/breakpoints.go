package tracer

import (
	"fmt"
	"sort"
)

// BreakpointSite is a single software breakpoint: an address patched with an
// INT3 (0xCC) opcode while enabled, plus the original byte needed to restore
// the tracee's code when the site is disabled or removed. The saved byte is
// captured at enable time and cleared again on disable, so it is only
// meaningful while the patch is actually installed.
type BreakpointSite struct {
	ID      int
	Address VirtualAddress

	enabled   bool
	savedByte byte
	hasSaved  bool
}

// Enabled reports whether the INT3 patch is currently installed.
func (s *BreakpointSite) Enabled() bool { return s.enabled }

// SavedByte returns the original instruction byte captured when the site
// was enabled. ok is false while the site is disabled.
func (s *BreakpointSite) SavedByte() (b byte, ok bool) {
	return s.savedByte, s.hasSaved
}

// BreakpointTable owns every BreakpointSite for one Inferior. Patch and
// restore of the INT3 byte is the Inferior's job (it alone knows how to read
// and write tracee memory); the table only tracks bookkeeping.
type BreakpointTable struct {
	nextID int
	sites  map[int]*BreakpointSite
	byAddr map[VirtualAddress]*BreakpointSite
}

func newBreakpointTable() *BreakpointTable {
	return &BreakpointTable{
		nextID: 1,
		sites:  make(map[int]*BreakpointSite),
		byAddr: make(map[VirtualAddress]*BreakpointSite),
	}
}

// Create registers a new, disabled breakpoint site at addr.
func (t *BreakpointTable) Create(addr VirtualAddress) (*BreakpointSite, error) {
	if existing, ok := t.byAddr[addr]; ok {
		return nil, newError(DuplicateAddress,
			fmt.Sprintf("breakpoint %d already set at %s", existing.ID, addr))
	}
	site := &BreakpointSite{
		ID:      t.nextID,
		Address: addr,
	}
	t.nextID++
	t.sites[site.ID] = site
	t.byAddr[addr] = site
	return site, nil
}

// Delete removes a site from the table. The caller must have already
// restored the original byte in tracee memory if the site was installed.
func (t *BreakpointTable) Delete(id int) error {
	site, ok := t.sites[id]
	if !ok {
		return newError(BreakpointNotFound, "no breakpoint with id")
	}
	delete(t.sites, id)
	delete(t.byAddr, site.Address)
	return nil
}

// FindByID looks up a site by id.
func (t *BreakpointTable) FindByID(id int) (*BreakpointSite, bool) {
	site, ok := t.sites[id]
	return site, ok
}

// FindAt looks up a site by address.
func (t *BreakpointTable) FindAt(addr VirtualAddress) (*BreakpointSite, bool) {
	site, ok := t.byAddr[addr]
	return site, ok
}

// All returns every site, ordered by id, for stable REPL listing.
func (t *BreakpointTable) All() []*BreakpointSite {
	out := make([]*BreakpointSite, 0, len(t.sites))
	for _, site := range t.sites {
		out = append(out, site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve interprets a REPL argument as either a breakpoint id or an
// address: any value greater than the largest id currently in the table is
// taken to be an address, matching the ambiguity rule used by commands that
// accept either.
func (t *BreakpointTable) Resolve(value uint64) (*BreakpointSite, bool) {
	maxID := 0
	for id := range t.sites {
		if id > maxID {
			maxID = id
		}
	}
	if int(value) <= maxID {
		site, ok := t.sites[int(value)]
		return site, ok
	}
	site, ok := t.byAddr[VirtualAddress(value)]
	return site, ok
}

// Clear empties the table; the caller is responsible for having already
// restored every installed site's bytes in tracee memory.
func (t *BreakpointTable) Clear() {
	t.sites = make(map[int]*BreakpointSite)
	t.byAddr = make(map[VirtualAddress]*BreakpointSite)
}

package tracer

import "testing"

func TestBreakpointTableCreateAndFind(t *testing.T) {
	bt := newBreakpointTable()
	site, err := bt.Create(VirtualAddress(0x1000))
	if err != nil {
		t.Fatal(err)
	}
	if site.ID != 1 {
		t.Errorf("first site id = %d, want 1", site.ID)
	}
	if site.Enabled() {
		t.Error("a fresh site must start disabled")
	}
	if _, ok := site.SavedByte(); ok {
		t.Error("a disabled site must have no saved byte")
	}
	if found, ok := bt.FindAt(VirtualAddress(0x1000)); !ok || found != site {
		t.Errorf("FindAt did not return the created site")
	}
}

func TestBreakpointTableDuplicateAddress(t *testing.T) {
	bt := newBreakpointTable()
	if _, err := bt.Create(VirtualAddress(0x1000)); err != nil {
		t.Fatal(err)
	}
	_, err := bt.Create(VirtualAddress(0x1000))
	if err == nil {
		t.Fatal("expected a duplicate-address error")
	}
	if got := err.(*Error).Kind; got != DuplicateAddress {
		t.Errorf("got Kind %v, want DuplicateAddress", got)
	}
}

func TestBreakpointTableDelete(t *testing.T) {
	bt := newBreakpointTable()
	site, _ := bt.Create(VirtualAddress(0x2000))
	if err := bt.Delete(site.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := bt.FindByID(site.ID); ok {
		t.Error("site should be gone after Delete")
	}
	if err := bt.Delete(site.ID); err == nil {
		t.Error("expected BreakpointNotFound deleting twice")
	}
}

func TestBreakpointTableResolveIDVsAddress(t *testing.T) {
	bt := newBreakpointTable()
	site, _ := bt.Create(VirtualAddress(0x2000)) // id 1

	// A value <= the largest id is interpreted as an id.
	if found, ok := bt.Resolve(1); !ok || found != site {
		t.Error("Resolve(1) should match by id")
	}
	// A value larger than the largest id is interpreted as an address.
	if found, ok := bt.Resolve(0x2000); !ok || found != site {
		t.Error("Resolve(0x2000) should match by address")
	}
}

func TestBreakpointTableClear(t *testing.T) {
	bt := newBreakpointTable()
	bt.Create(VirtualAddress(0x1000))
	bt.Create(VirtualAddress(0x2000))
	bt.Clear()
	if len(bt.All()) != 0 {
		t.Error("table should be empty after Clear")
	}
}

func TestBreakpointTableIDsKeepIncreasing(t *testing.T) {
	bt := newBreakpointTable()
	first, _ := bt.Create(VirtualAddress(0x1000))
	bt.Delete(first.ID)
	second, _ := bt.Create(VirtualAddress(0x1000))
	if second.ID <= first.ID {
		t.Errorf("ids must keep increasing: got %d after deleting %d", second.ID, first.ID)
	}
}

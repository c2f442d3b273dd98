package elfaddr

import (
	"os"
	"testing"
)

func TestOpenSelfExecutable(t *testing.T) {
	path, err := os.Executable()
	if err != nil {
		t.Skipf("os.Executable: %v", err)
	}
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%s): %v", path, err)
	}
	defer r.Close()

	if r.EntryAddress() == 0 {
		t.Error("EntryAddress() = 0, want the ELF header's e_entry")
	}
}

func TestLoadBiasAgainstSelf(t *testing.T) {
	path, err := os.Executable()
	if err != nil {
		t.Skipf("os.Executable: %v", err)
	}
	if _, err := os.Stat("/proc/self/maps"); err != nil {
		t.Skip("no /proc filesystem available")
	}
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%s): %v", path, err)
	}
	defer r.Close()

	bias, err := r.LoadBiasFromMaps(os.Getpid(), path)
	if err != nil {
		t.Fatalf("LoadBiasFromMaps: %v", err)
	}
	entry := r.EntryAddress()
	if got := r.RuntimeAddress(entry); got != bias+entry {
		t.Errorf("RuntimeAddress(%#x) = %#x, want %#x", entry, got, bias+entry)
	}
}

func TestSymbolAddressMissing(t *testing.T) {
	path, err := os.Executable()
	if err != nil {
		t.Skipf("os.Executable: %v", err)
	}
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%s): %v", path, err)
	}
	defer r.Close()

	if _, err := r.SymbolAddress("definitely.not.a.symbol"); err == nil {
		t.Error("expected an error for an unknown symbol")
	}
}

func TestBasename(t *testing.T) {
	cases := map[string]string{
		"/usr/bin/sleep": "sleep",
		"sleep":          "sleep",
		"/":              "",
	}
	for in, want := range cases {
		if got := basename(in); got != want {
			t.Errorf("basename(%q) = %q, want %q", in, got, want)
		}
	}
}

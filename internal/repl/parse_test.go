package repl

import (
	"bytes"
	"testing"
)

func TestParseU64(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
		ok   bool
	}{
		{"0", 0, true},
		{"42", 42, true},
		{"0x2a", 0x2a, true},
		{"0XdeadBEEF", 0xdeadbeef, true},
		{"0x", 0, false},
		{"nope", 0, false},
		{"-1", 0, false},
	}
	for _, c := range cases {
		got, err := parseU64(c.in)
		if (err == nil) != c.ok {
			t.Errorf("parseU64(%q) error = %v, want ok=%v", c.in, err, c.ok)
			continue
		}
		if c.ok && got != c.want {
			t.Errorf("parseU64(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseByteVec(t *testing.T) {
	got, err := parseByteVec("[1,2,255]", 3)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{1, 2, 255}) {
		t.Errorf("got % x", got)
	}
	if _, err := parseByteVec("[1,2]", 3); err == nil {
		t.Error("expected an error for too few bytes")
	}
	if _, err := parseByteVec("1,2,3", 3); err == nil {
		t.Error("expected an error without brackets")
	}
	if _, err := parseByteVec("[1,2,999]", 3); err == nil {
		t.Error("expected an error for an out-of-range byte")
	}
}

func TestParseHexBytes(t *testing.T) {
	got, err := parseHexBytes("[0x48,0x65,0x6c]")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0x48, 0x65, 0x6c}) {
		t.Errorf("got % x", got)
	}
	if _, err := parseHexBytes("[0xzz]"); err == nil {
		t.Error("expected an error for a bad hex literal")
	}
}

func TestHasPrefixCommand(t *testing.T) {
	if !hasPrefixCommand("continue", "c") {
		t.Error("c should match continue")
	}
	if !hasPrefixCommand("continue", "continue") {
		t.Error("the full word should match itself")
	}
	if hasPrefixCommand("continue", "") {
		t.Error("the empty word must match nothing")
	}
	if hasPrefixCommand("continue", "continued") {
		t.Error("a longer word must not match")
	}
}

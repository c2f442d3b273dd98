package disasm

import "testing"

func TestDecodeSimpleInstructions(t *testing.T) {
	cases := []struct {
		name string
		code []byte
		want string
	}{
		{"nop", []byte{0x90}, "nop"},
		{"ret", []byte{0xc3}, "ret"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			inst, err := Decode(c.code, 0x1000)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if inst.Length != len(c.code) {
				t.Errorf("Length = %d, want %d", inst.Length, len(c.code))
			}
			if inst.Address != 0x1000 {
				t.Errorf("Address = 0x%x, want 0x1000", inst.Address)
			}
		})
	}
}

func TestDecodeRetIsRecognized(t *testing.T) {
	inst, err := Decode([]byte{0xc3}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !inst.IsRet() {
		t.Error("expected 0xc3 to decode as RET")
	}
	if inst.IsCall() {
		t.Error("RET must not be reported as CALL")
	}
}

func TestDecodeNStopsAtBufferEnd(t *testing.T) {
	// int3; nop; ret — three one-byte instructions.
	code := []byte{0xcc, 0x90, 0xc3}
	insts, err := DecodeN(code, 0x2000, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 3 {
		t.Fatalf("got %d instructions, want 3", len(insts))
	}
	if insts[2].Address != 0x2002 {
		t.Errorf("third instruction address = 0x%x, want 0x2002", insts[2].Address)
	}
}

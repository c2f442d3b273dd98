// Package disasm decodes x86-64 machine code for display in the debugger's
// REPL. It is a thin adapter over golang.org/x/arch/x86/x86asm, the same
// role a disassembly-formatting function plays for a fixed-width
// instruction set, generalized to a variable-length, ambiguous-without-
// context ISA.
package disasm

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// Instruction is one decoded instruction: its address, its length in bytes,
// and its rendered syntax.
type Instruction struct {
	Address uint64
	Length  int
	Text    string
	raw     x86asm.Inst
}

// Decode decodes a single instruction from the start of code, which must
// hold at least the architecture's maximum instruction length (15 bytes)
// unless the buffer legitimately ends there.
func Decode(code []byte, addr uint64) (Instruction, error) {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return Instruction{}, fmt.Errorf("disasm: decode at 0x%x: %w", addr, err)
	}
	return Instruction{
		Address: addr,
		Length:  inst.Len,
		Text:    x86asm.GNUSyntax(inst, addr, nil),
		raw:     inst,
	}, nil
}

// DecodeN decodes up to n consecutive instructions starting at addr, reading
// from code. It stops early, without error, if it runs out of bytes to
// decode another full instruction.
func DecodeN(code []byte, addr uint64, n int) ([]Instruction, error) {
	out := make([]Instruction, 0, n)
	off := 0
	for i := 0; i < n && off < len(code); i++ {
		inst, err := Decode(code[off:], addr+uint64(off))
		if err != nil {
			return out, err
		}
		out = append(out, inst)
		off += inst.Length
	}
	return out, nil
}

// IsCall reports whether the decoded instruction is a CALL.
func (in Instruction) IsCall() bool {
	return in.raw.Op == x86asm.CALL
}

// IsRet reports whether the decoded instruction is a RET.
func (in Instruction) IsRet() bool {
	return in.raw.Op == x86asm.RET
}

// String renders the instruction the way the REPL prints a disassembly
// line: address, then syntax.
func (in Instruction) String() string {
	return fmt.Sprintf("0x%016x: %s", in.Address, in.Text)
}

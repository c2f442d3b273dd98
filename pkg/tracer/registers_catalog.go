package tracer

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Class identifies which kernel-level register block a register lives in.
type Class int

const (
	ClassGPR Class = iota
	ClassSubGPR
	ClassFPR
	ClassDR
)

func (c Class) String() string {
	switch c {
	case ClassGPR:
		return "gpr"
	case ClassSubGPR:
		return "sub-gpr"
	case ClassFPR:
		return "fpr"
	case ClassDR:
		return "dr"
	default:
		return "unknown"
	}
}

// Format identifies how a register's raw bytes should be interpreted.
type Format int

const (
	FormatUInt Format = iota
	FormatDouble
	FormatLongDouble
	FormatVector
)

func (f Format) String() string {
	switch f {
	case FormatUInt:
		return "uint"
	case FormatDouble:
		return "double"
	case FormatLongDouble:
		return "long double"
	case FormatVector:
		return "vector"
	default:
		return "unknown"
	}
}

// RegisterInfo describes one named register: where it lives in the
// user-area mirror, how wide it is, and how its bytes should be read back.
// The catalog of all RegisterInfo values is built once at package init and
// is never mutated afterwards.
type RegisterInfo struct {
	Name    string
	ID      int
	Class   Class
	Format  Format
	Size    int
	DwarfID int // -1 means "no DWARF mapping"
	Offset  int // byte offset into the userArea mirror
}

var (
	registerByName  = map[string]*RegisterInfo{}
	registerByID    = map[int]*RegisterInfo{}
	registerByDwarf = map[int]*RegisterInfo{}
	// RegisterInfos holds every catalog entry, sorted by ID (so ID can be
	// used as a dense array index).
	RegisterInfos []*RegisterInfo

	// Convenience lookups used by the Inferior and REPL.
	registerPC *RegisterInfo
	registerSP *RegisterInfo
	registerFP *RegisterInfo
)

// RegisterByName looks up a register by its mnemonic (e.g. "rax", "xmm0").
func RegisterByName(name string) (*RegisterInfo, error) {
	ri, ok := registerByName[name]
	if !ok {
		return nil, newError(ParseError, "unrecognized register "+name)
	}
	return ri, nil
}

// RegisterByDwarfID looks up a register by its DWARF register number.
// DWARF id -1 never resolves, matching the catalog's "no mapping" sentinel.
func RegisterByDwarfID(id int) (*RegisterInfo, bool) {
	if id == -1 {
		return nil, false
	}
	ri, ok := registerByDwarf[id]
	return ri, ok
}

type catalogBuilder struct {
	nextID int
}

func (b *catalogBuilder) add(name string, class Class, format Format, dwarfID, size, offset int) *RegisterInfo {
	ri := &RegisterInfo{
		Name:    name,
		ID:      b.nextID,
		Class:   class,
		Format:  format,
		Size:    size,
		DwarfID: dwarfID,
		Offset:  offset,
	}
	b.nextID++
	if _, exists := registerByName[name]; exists {
		panic("tracer: duplicate register name " + name)
	}
	registerByName[name] = ri
	registerByID[ri.ID] = ri
	if dwarfID != -1 {
		if _, exists := registerByDwarf[dwarfID]; exists {
			panic(fmt.Sprintf("tracer: duplicate dwarf id %d for %s", dwarfID, name))
		}
		registerByDwarf[dwarfID] = ri
	}
	RegisterInfos = append(RegisterInfos, ri)
	return ri
}

// gprFieldOffset returns the byte offset of a named field within
// unix.PtraceRegs, relative to the start of the userArea mirror.
func gprFieldOffset(name string) int {
	var r unix.PtraceRegs
	base := gprBlockOffset
	switch name {
	case "rax":
		return base + int(unsafe.Offsetof(r.Rax))
	case "rdx":
		return base + int(unsafe.Offsetof(r.Rdx))
	case "rcx":
		return base + int(unsafe.Offsetof(r.Rcx))
	case "rbx":
		return base + int(unsafe.Offsetof(r.Rbx))
	case "rsi":
		return base + int(unsafe.Offsetof(r.Rsi))
	case "rdi":
		return base + int(unsafe.Offsetof(r.Rdi))
	case "rbp":
		return base + int(unsafe.Offsetof(r.Rbp))
	case "rsp":
		return base + int(unsafe.Offsetof(r.Rsp))
	case "r8":
		return base + int(unsafe.Offsetof(r.R8))
	case "r9":
		return base + int(unsafe.Offsetof(r.R9))
	case "r10":
		return base + int(unsafe.Offsetof(r.R10))
	case "r11":
		return base + int(unsafe.Offsetof(r.R11))
	case "r12":
		return base + int(unsafe.Offsetof(r.R12))
	case "r13":
		return base + int(unsafe.Offsetof(r.R13))
	case "r14":
		return base + int(unsafe.Offsetof(r.R14))
	case "r15":
		return base + int(unsafe.Offsetof(r.R15))
	case "rip":
		return base + int(unsafe.Offsetof(r.Rip))
	case "eflags":
		return base + int(unsafe.Offsetof(r.Eflags))
	case "cs":
		return base + int(unsafe.Offsetof(r.Cs))
	case "fs":
		return base + int(unsafe.Offsetof(r.Fs))
	case "gs":
		return base + int(unsafe.Offsetof(r.Gs))
	case "ss":
		return base + int(unsafe.Offsetof(r.Ss))
	case "ds":
		return base + int(unsafe.Offsetof(r.Ds))
	case "es":
		return base + int(unsafe.Offsetof(r.Es))
	case "orig_rax":
		return base + int(unsafe.Offsetof(r.Orig_rax))
	default:
		panic("tracer: unknown gpr field " + name)
	}
}

func init() {
	b := &catalogBuilder{}

	type gpr64 struct {
		name    string
		dwarfID int
	}
	gprs := []gpr64{
		{"rax", 0}, {"rdx", 1}, {"rcx", 2}, {"rbx", 3},
		{"rsi", 4}, {"rdi", 5}, {"rbp", 6}, {"rsp", 7},
		{"r8", 8}, {"r9", 9}, {"r10", 10}, {"r11", 11},
		{"r12", 12}, {"r13", 13}, {"r14", 14}, {"r15", 15},
		{"rip", 16}, {"eflags", 49},
		{"cs", 51}, {"ss", 52}, {"ds", 53}, {"es", 50}, {"fs", 54}, {"gs", 55},
	}
	for _, g := range gprs {
		b.add(g.name, ClassGPR, FormatUInt, g.dwarfID, 8, gprFieldOffset(g.name))
	}
	b.add("orig_rax", ClassGPR, FormatUInt, -1, 8, gprFieldOffset("orig_rax"))

	// Legacy 32-bit-extended GPRs (eax, ebx, ...) and their 16/8-bit views
	// all alias the parent 8-byte slot.
	type subView struct {
		name32, name16, nameLo string
		nameHi                 string // "" when there is no high-byte alias
		parent                 string
	}
	subs := []subView{
		{"eax", "ax", "al", "ah", "rax"},
		{"edx", "dx", "dl", "dh", "rdx"},
		{"ecx", "cx", "cl", "ch", "rcx"},
		{"ebx", "bx", "bl", "bh", "rbx"},
		{"esi", "si", "sil", "", "rsi"},
		{"edi", "di", "dil", "", "rdi"},
		{"ebp", "bp", "bpl", "", "rbp"},
		{"esp", "sp", "spl", "", "rsp"},
	}
	for _, s := range subs {
		parentOff := gprFieldOffset(s.parent)
		b.add(s.name32, ClassSubGPR, FormatUInt, -1, 4, parentOff)
		b.add(s.name16, ClassSubGPR, FormatUInt, -1, 2, parentOff)
		b.add(s.nameLo, ClassSubGPR, FormatUInt, -1, 1, parentOff)
		if s.nameHi != "" {
			b.add(s.nameHi, ClassSubGPR, FormatUInt, -1, 1, parentOff+1)
		}
	}
	for _, r := range []string{"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"} {
		parentOff := gprFieldOffset(r)
		b.add(r+"d", ClassSubGPR, FormatUInt, -1, 4, parentOff)
		b.add(r+"w", ClassSubGPR, FormatUInt, -1, 2, parentOff)
		b.add(r+"b", ClassSubGPR, FormatUInt, -1, 1, parentOff)
	}

	var fp userFPRegs
	b.add("fcw", ClassFPR, FormatUInt, 65, 2, fpOffset(unsafe.Offsetof(fp.Cwd)))
	b.add("fsw", ClassFPR, FormatUInt, 66, 2, fpOffset(unsafe.Offsetof(fp.Swd)))
	b.add("ftw", ClassFPR, FormatUInt, -1, 2, fpOffset(unsafe.Offsetof(fp.Ftw)))
	b.add("fop", ClassFPR, FormatUInt, -1, 2, fpOffset(unsafe.Offsetof(fp.Fop)))
	b.add("frip", ClassFPR, FormatUInt, -1, 8, fpOffset(unsafe.Offsetof(fp.Rip)))
	b.add("frdp", ClassFPR, FormatUInt, -1, 8, fpOffset(unsafe.Offsetof(fp.Rdp)))
	b.add("mxcsr", ClassFPR, FormatUInt, 64, 4, fpOffset(unsafe.Offsetof(fp.Mxcsr)))
	b.add("mxcsrmask", ClassFPR, FormatUInt, -1, 4, fpOffset(unsafe.Offsetof(fp.MxcrMask)))

	stSpaceOff := fpOffset(unsafe.Offsetof(fp.StSpace))
	for i := 0; i < 8; i++ {
		b.add(fmt.Sprintf("st%d", i), ClassFPR, FormatLongDouble, 33+i, 16, stSpaceOff+16*i)
	}
	for i := 0; i < 8; i++ {
		b.add(fmt.Sprintf("mm%d", i), ClassFPR, FormatVector, 41+i, 8, stSpaceOff+16*i)
	}
	xmmSpaceOff := fpOffset(unsafe.Offsetof(fp.XmmSpace))
	for i := 0; i < 16; i++ {
		b.add(fmt.Sprintf("xmm%d", i), ClassFPR, FormatVector, 17+i, 16, xmmSpaceOff+16*i)
	}

	for i := 0; i < 8; i++ {
		b.add(fmt.Sprintf("dr%d", i), ClassDR, FormatUInt, -1, 8, debugBlockOffset+8*i)
	}

	registerPC, _ = RegisterByName("rip")
	registerSP, _ = RegisterByName("rsp")
	registerFP, _ = RegisterByName("rbp")
}

package repl

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/basso-oss/godbg/internal/elfaddr"
	"github.com/basso-oss/godbg/pkg/disasm"
	"github.com/basso-oss/godbg/pkg/tracer"
)

// errQuit is returned by handleCommand to unwind Run's loop on "quit".
var errQuit = errors.New("quit")

func handleCommand(inf *tracer.Inferior, execPath, line string, out io.Writer) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	command := args[0]

	switch {
	case hasPrefixCommand("continue", command):
		return cmdContinue(inf, out)
	case hasPrefixCommand("step", command):
		return cmdStep(inf, out)
	case hasPrefixCommand("quit", command):
		return errQuit
	case hasPrefixCommand("help", command):
		printHelp(out, args[1:])
		return nil
	case hasPrefixCommand("registers", command):
		return cmdRegister(inf, args[1:], out)
	case hasPrefixCommand("breakpoint", command):
		return cmdBreakpoint(inf, execPath, args[1:], out)
	case hasPrefixCommand("memory", command):
		return cmdMemory(inf, args[1:], out)
	case hasPrefixCommand("disassemble", command):
		return cmdDisassemble(inf, args[1:], out)
	default:
		return fmt.Errorf("unrecognized command: %s", command)
	}
}

func printHelp(out io.Writer, args []string) {
	if len(args) == 0 {
		fmt.Fprint(out, `Available commands:

    continue
    step
    registers
    breakpoint
    memory
    disassemble
    quit
`)
		return
	}
	switch {
	case hasPrefixCommand("registers", args[0]):
		fmt.Fprint(out, `Usage: registers (subcommand)

Available subcommands:

    read <register>
    read all
    write <register> <value>
`)
	case hasPrefixCommand("breakpoint", args[0]):
		fmt.Fprint(out, `Usage: breakpoint (subcommand)

Available subcommands:

    list
    set <addr|symbol>
    enable <addr|id>
    disable <addr|id>
    clear <addr|id>
`)
	case hasPrefixCommand("memory", args[0]):
		fmt.Fprint(out, `Usage: memory (subcommand)

Available subcommands:

    read <addr> [numbytes]
    write <addr> <bytes>
`)
	}
}

func cmdContinue(inf *tracer.Inferior, out io.Writer) error {
	if err := inf.Resume(); err != nil {
		return err
	}
	reason, err := inf.Wait()
	if err != nil {
		return err
	}
	printStopReason(out, reason)
	return nil
}

func cmdStep(inf *tracer.Inferior, out io.Writer) error {
	reason, err := inf.SingleStep()
	if err != nil {
		return err
	}
	printStopReason(out, reason)
	return nil
}

func printStopReason(out io.Writer, reason tracer.StopReason) {
	switch reason.State {
	case tracer.StateExited:
		fmt.Fprintf(out, "exited with status %d\n", reason.ExitCode)
	case tracer.StateTerminated:
		fmt.Fprintf(out, "terminated by signal %s\n", reason.Signal)
	case tracer.StateStopped:
		fmt.Fprintf(out, "stopped with signal %s\n", reason.Signal)
	}
}

func cmdRegister(inf *tracer.Inferior, args []string, out io.Writer) error {
	if len(args) < 1 {
		printHelp(out, []string{"registers"})
		return nil
	}
	switch {
	case hasPrefixCommand("read", args[0]):
		if len(args) == 1 || hasPrefixCommand("all", args[1]) {
			for _, ri := range tracer.RegisterInfos {
				if ri.Class != tracer.ClassGPR || ri.DwarfID == -1 {
					continue
				}
				fmt.Fprintf(out, "%s:\t%s\n", ri.Name, inf.ReadRegister(ri))
			}
			return nil
		}
		ri, err := tracer.RegisterByName(args[1])
		if err != nil {
			fmt.Fprintf(out, "unrecognized register %s\n", args[1])
			return nil
		}
		fmt.Fprintf(out, "%s:\t%s\n", ri.Name, inf.ReadRegister(ri))
	case hasPrefixCommand("write", args[0]):
		if len(args) != 3 {
			printHelp(out, []string{"registers"})
			return nil
		}
		ri, err := tracer.RegisterByName(args[1])
		if err != nil {
			fmt.Fprintf(out, "unrecognized register %s\n", args[1])
			return nil
		}
		value, err := buildRegisterValue(ri, args[2])
		if err != nil {
			fmt.Fprintln(out, err)
			return nil
		}
		return inf.WriteRegister(value)
	}
	return nil
}

func buildRegisterValue(ri *tracer.RegisterInfo, text string) (tracer.RegisterValue, error) {
	switch ri.Format {
	case tracer.FormatUInt:
		v, err := parseU64(text)
		if err != nil {
			return tracer.RegisterValue{}, errors.New("could not parse value")
		}
		return tracer.NewUintValue(ri, v), nil
	case tracer.FormatDouble:
		v, err := parseFloat(text)
		if err != nil {
			return tracer.RegisterValue{}, errors.New("could not parse value")
		}
		return tracer.NewDoubleValue(ri, v), nil
	case tracer.FormatLongDouble:
		return tracer.RegisterValue{}, errors.New("not supported yet")
	case tracer.FormatVector:
		data, err := parseByteVec(text, ri.Size)
		if err != nil {
			return tracer.RegisterValue{}, errors.New("could not parse value")
		}
		return tracer.NewVectorValue(ri, data), nil
	default:
		return tracer.RegisterValue{}, errors.New("unsupported register format")
	}
}

func cmdBreakpoint(inf *tracer.Inferior, execPath string, args []string, out io.Writer) error {
	if len(args) == 0 {
		printHelp(out, []string{"breakpoint"})
		return nil
	}
	if len(args) == 1 && !hasPrefixCommand("list", args[0]) && !hasPrefixCommand("show", args[0]) {
		return cmdBreakpoint(inf, execPath, []string{"set", args[0]}, out)
	}
	switch {
	case hasPrefixCommand("list", args[0]), hasPrefixCommand("show", args[0]):
		sites := inf.Breakpoints().All()
		if len(sites) == 0 {
			fmt.Fprintln(out, "No breakpoints created")
			return nil
		}
		fmt.Fprintln(out, "Breakpoints:")
		for _, bp := range sites {
			fmt.Fprintf(out, "%d:\t%s\n", bp.ID, bp.Address)
		}
		return nil
	}
	if len(args) < 2 {
		printHelp(out, []string{"breakpoint"})
		return nil
	}
	switch {
	case hasPrefixCommand("set", args[0]):
		addr, err := resolveBreakpointAddress(execPath, inf.PID(), args[1])
		if err != nil {
			fmt.Fprintln(out, err)
			return nil
		}
		site, err := inf.SetBreakpoint(addr)
		if err != nil {
			fmt.Fprintln(out, err)
			return nil
		}
		if err := inf.EnableBreakpoint(site); err != nil {
			fmt.Fprintln(out, err)
			return nil
		}
		fmt.Fprintf(out, "created breaksite %d\n", site.ID)
	case hasPrefixCommand("enable", args[0]), hasPrefixCommand("disable", args[0]):
		enable := hasPrefixCommand("enable", args[0])
		if args[1] == "all" {
			if enable {
				return inf.EnableAllBreakpoints()
			}
			return inf.DisableAllBreakpoints()
		}
		val, err := parseU64(args[1])
		if err != nil {
			fmt.Fprintln(out, "could not parse address or ID")
			return nil
		}
		site, ok := inf.Breakpoints().Resolve(val)
		if !ok {
			fmt.Fprintln(out, "could not find specified breakpoint")
			return nil
		}
		if enable == site.Enabled() {
			fmt.Fprintf(out, "breaksite already %sabled\n", enabledWord(enable))
			return nil
		}
		if enable {
			if err := inf.EnableBreakpoint(site); err != nil {
				fmt.Fprintln(out, err)
				return nil
			}
			fmt.Fprintf(out, "breakpoint %d enabled\n", site.ID)
		} else {
			if err := inf.DisableBreakpoint(site); err != nil {
				fmt.Fprintln(out, err)
				return nil
			}
			fmt.Fprintf(out, "breakpoint %d disabled\n", site.ID)
		}
	case hasPrefixCommand("clear", args[0]):
		if args[1] == "all" {
			return inf.ClearAllBreakpoints()
		}
		val, err := parseU64(args[1])
		if err != nil {
			fmt.Fprintln(out, "could not parse address or ID")
			return nil
		}
		site, ok := inf.Breakpoints().Resolve(val)
		if !ok {
			fmt.Fprintln(out, "could not find breakpoint")
			return nil
		}
		if err := inf.RemoveBreakpoint(site.ID); err != nil {
			fmt.Fprintln(out, err)
		}
	}
	return nil
}

// resolveBreakpointAddress turns a `breakpoint set` argument into a runtime
// address: a plain number is used as-is, anything else is looked up as an
// ELF symbol in execPath and corrected by the tracee's own load bias (needed
// for a PIE binary, a no-op for a non-PIE one).
func resolveBreakpointAddress(execPath string, pid int, token string) (tracer.VirtualAddress, error) {
	if v, err := parseU64(token); err == nil {
		return tracer.VirtualAddress(v), nil
	}
	if execPath == "" {
		return 0, errors.New("could not parse address, and no executable path is known to resolve a symbol against")
	}
	r, err := elfaddr.Open(execPath)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	fileAddr, err := r.SymbolAddress(token)
	if err != nil {
		return 0, err
	}
	if _, err := r.LoadBiasFromMaps(pid, execPath); err != nil {
		return 0, err
	}
	return tracer.VirtualAddress(r.RuntimeAddress(fileAddr)), nil
}

func enabledWord(enable bool) string {
	if enable {
		return "en"
	}
	return "dis"
}

func cmdMemory(inf *tracer.Inferior, args []string, out io.Writer) error {
	if len(args) < 2 {
		printHelp(out, []string{"memory"})
		return nil
	}
	switch {
	case hasPrefixCommand("read", args[0]):
		addr, err := parseU64(args[1])
		if err != nil {
			fmt.Fprintln(out, "could not parse address")
			return nil
		}
		n := uint64(32)
		if len(args) >= 3 {
			n, err = parseU64(args[2])
			if err != nil {
				fmt.Fprintln(out, err)
				return nil
			}
		}
		buf, err := inf.Memory().ReadClean(tracer.VirtualAddress(addr), int(n), inf.Breakpoints())
		if err != nil {
			fmt.Fprintln(out, err)
			return nil
		}
		printHexDump(out, addr, buf)
	case hasPrefixCommand("write", args[0]):
		if len(args) < 3 {
			printHelp(out, []string{"memory"})
			return nil
		}
		addr, err := parseU64(args[1])
		if err != nil {
			fmt.Fprintln(out, "could not parse address")
			return nil
		}
		data, err := parseHexBytes(strings.Join(args[2:], ""))
		if err != nil {
			fmt.Fprintln(out, err)
			return nil
		}
		if err := inf.Memory().Write(tracer.VirtualAddress(addr), data); err != nil {
			fmt.Fprintln(out, err)
		}
	}
	return nil
}

func printHexDump(out io.Writer, addr uint64, data []byte) {
	const rowSize = 16
	for off := 0; off < len(data); off += rowSize {
		end := off + rowSize
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(out, "0x%016x:", addr+uint64(off))
		for _, b := range data[off:end] {
			fmt.Fprintf(out, " %02x", b)
		}
		fmt.Fprintln(out)
	}
}

func cmdDisassemble(inf *tracer.Inferior, args []string, out io.Writer) error {
	addr := inf.PC()
	count := 5
	if len(args) >= 1 {
		v, err := parseU64(args[0])
		if err != nil {
			fmt.Fprintln(out, "could not parse address")
			return nil
		}
		addr = tracer.VirtualAddress(v)
	}
	if len(args) >= 2 {
		v, err := parseU64(args[1])
		if err != nil {
			fmt.Fprintln(out, "could not parse count")
			return nil
		}
		count = int(v)
	}
	buf, err := inf.Memory().ReadClean(addr, count*15, inf.Breakpoints())
	if err != nil {
		fmt.Fprintln(out, err)
		return nil
	}
	insts, err := disasm.DecodeN(buf, addr.Uint64(), count)
	if err != nil && len(insts) == 0 {
		fmt.Fprintln(out, err)
		return nil
	}
	for _, in := range insts {
		fmt.Fprintln(out, in.String())
	}
	return nil
}

// Command godbg is an interactive, native-code debugger for ELF executables
// on Linux/x86-64. It either launches a fresh inferior or attaches to an
// already-running one, then hands control to the REPL.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/basso-oss/godbg/internal/repl"
	"github.com/basso-oss/godbg/pkg/tracer"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s -p <pid>\n       %s <path> [args...]\n", os.Args[0], os.Args[0])
}

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	inf, execPath, err := attach(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	defer inf.Close()

	if err := repl.Run(inf, execPath, os.Stdin, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

// attach either joins an already-running process by pid or launches a fresh
// one, and resolves the ELF path the REPL's breakpoint command should read
// symbols from — the path given on the command line when launching, or
// /proc/<pid>/exe when attaching.
func attach(args []string) (*tracer.Inferior, string, error) {
	if len(args) == 2 && args[0] == "-p" {
		pid, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, "", fmt.Errorf("invalid pid: %s", args[1])
		}
		inf, err := tracer.Attach(pid)
		if err != nil {
			return nil, "", err
		}
		execPath, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
		if err != nil {
			execPath = ""
		}
		return inf, execPath, nil
	}
	inf, err := tracer.Launch(args[0], args[1:])
	if err != nil {
		return nil, "", err
	}
	return inf, args[0], nil
}

// Package repl implements godbg's interactive command loop: a line is read,
// split into whitespace-separated arguments, dispatched to a handler by
// shortest-unambiguous-prefix matching against the known command names, and
// a blank line repeats the previous command — the same shape the original
// debugger's main_loop uses, generalized from its line-editing library to
// bufio.Scanner since nothing in the retrieved corpus pulls in a
// third-party line editor.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/basso-oss/godbg/pkg/tracer"
)

// Run reads commands from in and writes output to out until in reaches EOF
// or a command asks to quit. execPath is the traced executable's path on
// disk, if known; it is passed to commands (breakpoint set by symbol name)
// that need to read the ELF file rather than just the running process. An
// empty execPath disables symbol-name resolution but not address-based use.
func Run(inf *tracer.Inferior, execPath string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	var lastLine string
	fmt.Fprintf(out, "pid: %d\n", inf.PID())
	for {
		fmt.Fprint(out, "godbg> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			line = lastLine
		} else {
			lastLine = line
		}
		if line == "" {
			continue
		}
		if err := handleCommand(inf, execPath, line, out); err != nil {
			if err == errQuit {
				return nil
			}
			fmt.Fprintln(out, err)
		}
	}
}

// hasPrefixCommand reports whether full is the command name the user meant
// by typing the (possibly abbreviated) word, i.e. whether full starts with
// word and word is non-empty.
func hasPrefixCommand(full, word string) bool {
	return word != "" && strings.HasPrefix(full, word)
}

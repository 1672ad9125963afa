// Command gocpu8086asm assembles a single raw .asm file and runs it to
// completion, printing its output. It is the minimal counterpart to
// gocpu8086's "run" subcommand for callers who already have assembly text
// and don't want the source-language front end involved at all.
package main

import (
	"fmt"
	"os"

	"gocpu8086/internal/cli"
	"gocpu8086/pkg/assembler"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: gocpu8086asm <file.asm>")
		os.Exit(2)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "read error:", err)
		os.Exit(1)
	}

	prog := assembler.Assemble(string(data))
	if prog.HasErrors() {
		for _, d := range prog.Diagnostics {
			fmt.Fprintf(os.Stderr, "line %d: %s\n", d.Line, d.Message)
		}
		os.Exit(1)
	}

	sess, entries, runErr := cli.RunToCompletion(prog)
	fmt.Print(cli.FormatOutput(entries))
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "run error:", runErr)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "halted=%v error=%q\n", sess.Current().Halted, sess.Current().Error)
}

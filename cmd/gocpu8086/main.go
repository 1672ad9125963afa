// Command gocpu8086 is the batch driver for the full toolchain: compile a
// source file to assembly, assemble and run it, check its final state
// against an assertion script, and export or import a replay payload. It
// keeps the same hand parseable, single-purpose, no-daemon-loop spirit as
// the other cmd/ drivers, but is organized as subcommands since this one
// does more than one job.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gocpu8086/internal/cli"
	"gocpu8086/pkg/assert"
	"gocpu8086/pkg/replay"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "compile":
		err = runCompile(os.Args[2:])
	case "run":
		err = runRun(os.Args[2:])
	case "replay":
		err = runReplay(os.Args[2:])
	case "library":
		err = runLibrary(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: gocpu8086 <compile|run|replay|library> [flags] <file>")
}

// libraryDir is where the "library" subcommand persists named replay
// slots between invocations of this short-lived process.
const libraryDir = ".gocpu8086-sessions"

func openLibrary() (*replay.Library, error) {
	lib := replay.NewLibrary()
	if err := lib.LoadFrom(libraryDir); err != nil {
		return nil, err
	}
	return lib, nil
}

func runCompile(args []string) error {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("compile: expected exactly one source file")
	}

	src, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	result := cli.CompileSource(string(src))
	fmt.Print(cli.FormatDiagnostics(result.Diagnostics))
	if result.AsmCode != "" {
		fmt.Println("--- assembly ---")
		fmt.Print(result.AsmCode)
	}
	return nil
}

func runRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	showAsm := fs.Bool("show-asm", false, "print the generated assembly before running")
	assertPath := fs.String("assert", "", "path to an assertion script to check after the run")
	replayOut := fs.String("replay-out", "", "path to write a replay payload after the run")
	saveAs := fs.String("save-as", "", "save a replay payload under this name in the session library")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("run: expected exactly one source file")
	}

	srcBytes, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	src := string(srcBytes)

	result := cli.CompileSource(src)
	if result.Program == nil || result.Program.HasErrors() {
		fmt.Print(cli.FormatDiagnostics(result.Diagnostics))
		return fmt.Errorf("run: compilation failed")
	}
	if *showAsm {
		fmt.Println("--- assembly ---")
		fmt.Print(result.AsmCode)
	}

	sess, entries, runErr := cli.RunToCompletion(result.Program)
	fmt.Print(cli.FormatOutput(entries))
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "run error:", runErr)
	}
	fmt.Fprintf(os.Stderr, "halted=%v error=%q steps=%d\n", sess.Current().Halted, sess.Current().Error, len(sess.Trace()))

	if *assertPath != "" {
		script, err := os.ReadFile(*assertPath)
		if err != nil {
			return err
		}
		statements, diags := assert.Parse(string(script))
		if len(diags) > 0 {
			for _, d := range diags {
				fmt.Fprintf(os.Stderr, "assertion: line %d: %s\n", d.Line, d.Message)
			}
			return fmt.Errorf("run: assertion script had errors")
		}
		results := assert.Run(statements, sess.Current(), assert.NumericOutputs(sess.Trace()))
		for _, r := range results {
			status := "PASS"
			if !r.Passed {
				status = "FAIL"
			}
			fmt.Printf("[%s] line %d: %s\n", status, r.Statement.Line, r.Statement.Raw)
			if !r.Passed {
				fmt.Printf("       %s\n", r.Message)
			}
		}
		if !assert.AllPassed(results) {
			return fmt.Errorf("run: one or more assertions failed")
		}
	}

	if *replayOut != "" || *saveAs != "" {
		data, err := replay.Export(sess, src, result.AsmCode, time.Now().UnixMilli())
		if err != nil {
			return err
		}
		if *replayOut != "" {
			if err := os.WriteFile(*replayOut, data, 0o644); err != nil {
				return err
			}
		}
		if *saveAs != "" {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			if err := lib.Save(*saveAs, data); err != nil {
				return err
			}
			if err := lib.PersistTo(libraryDir); err != nil {
				return err
			}
		}
	}

	return nil
}

func runLibrary(args []string) error {
	fs := flag.NewFlagSet("library", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("library: expected a subcommand (list|load|delete)")
	}

	lib, err := openLibrary()
	if err != nil {
		return err
	}

	switch fs.Arg(0) {
	case "list":
		for _, name := range lib.List() {
			fmt.Println(name)
		}
		return nil
	case "load":
		if fs.NArg() != 2 {
			return fmt.Errorf("library load: expected a slot name")
		}
		data, err := lib.Load(fs.Arg(1))
		if err != nil {
			return err
		}
		sess, payload, err := replay.Import(data)
		if err != nil {
			return err
		}
		fmt.Printf("version=%d created_at_ms=%d steps=%d\n", payload.Version, payload.CreatedAtMs, len(sess.Trace()))
		fmt.Printf("halted=%v registers=%+v\n", sess.Current().Halted, sess.Current().Registers)
		return nil
	case "delete":
		if fs.NArg() != 2 {
			return fmt.Errorf("library delete: expected a slot name")
		}
		if err := lib.Delete(fs.Arg(1)); err != nil {
			return err
		}
		return lib.PersistTo(libraryDir)
	default:
		return fmt.Errorf("library: unknown subcommand %q", fs.Arg(0))
	}
}

func runReplay(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("replay: expected exactly one replay file")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	sess, payload, err := replay.Import(data)
	if err != nil {
		return err
	}
	fmt.Printf("version=%d created_at_ms=%d steps=%d\n", payload.Version, payload.CreatedAtMs, len(sess.Trace()))
	fmt.Printf("halted=%v registers=%+v\n", sess.Current().Halted, sess.Current().Registers)
	return nil
}

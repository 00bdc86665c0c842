package main

import (
	"flag"
	"fmt"
	"os"
)

const versionString = "e9patch-go 0.1.0"

func main() {
	var (
		targetFlag  = flag.String("target", "x86_64-linux", "target platform (only x86_64-linux is supported)")
		outputFlag  = flag.String("o", "", "output file path (default: <input>.patched)")
		modeFlag    = flag.String("mode", "exec", "binary mode: exec or dso")
		staticFlag  = flag.Bool("static", false, "static loader mode: never relocate patched pages")
		phdrFlag    = flag.String("phdr", "auto", "program header to repurpose: auto, note, relro, stack")
		baseFlag    = flag.Uint64("loader-base", 0, "preferred virtual address for the trampoline mapping (0: auto)")
		trapFlag    = flag.Bool("trap-entry", false, "trap into a debugger at the new entry point instead of continuing")
		rebaseFlag  = flag.Int64("mem-rebase", 0, "ignored for ELF output (a warning is printed when nonzero)")
		verboseFlag = flag.Bool("v", false, "verbose diagnostic output")
		verifyFlag  = flag.Bool("verify", false, "re-parse the output with debug/elf and confirm invariants hold")
		versionFlag = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Println(versionString)
		return
	}

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: e9patch-go [flags] <input-elf>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	opts := resolveOptions(cliFlags{
		target:  *targetFlag,
		output:  *outputFlag,
		mode:    *modeFlag,
		static:  *staticFlag,
		phdr:    *phdrFlag,
		base:    *baseFlag,
		trap:    *trapFlag,
		rebase:  *rebaseFlag,
		verbose: *verboseFlag,
		verify:  *verifyFlag,
	})

	if err := run(args[0], opts); err != nil {
		fmt.Fprintf(os.Stderr, "e9patch-go: %v\n", err)
		os.Exit(1)
	}
}

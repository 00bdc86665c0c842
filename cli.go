package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	env "github.com/xyproto/env/v2"

	"github.com/xyproto/e9patch/internal/elfpatch"
	"github.com/xyproto/e9patch/internal/engine"
)

// cliFlags is the raw set of values main.go parsed from the command
// line, before environment-variable fallbacks are applied.
type cliFlags struct {
	target  string
	output  string
	mode    string
	static  bool
	phdr    string
	base    uint64
	trap    bool
	rebase  int64
	verbose bool
	verify  bool
}

// options is what run() actually consumes, after env fallbacks and
// string flags have been resolved into typed values.
type options struct {
	platform engine.Platform
	output   string
	mode     elfpatch.Mode
	ctx      *elfpatch.Context
	verify   bool
}

// resolveOptions layers environment-variable fallbacks under explicit
// flags: E9_LOADER_BASE, E9_STATIC_LOADER, E9_PHDR_CHOICE,
// E9_TRAP_ENTRY, E9_MEM_REBASE. A flag the user actually passed always
// wins; env vars only fill in values left at their flag.* zero default.
func resolveOptions(f cliFlags) options {
	base := f.base
	if base == 0 {
		if v := env.Str("E9_LOADER_BASE"); v != "" {
			if parsed, err := strconv.ParseUint(v, 0, 64); err == nil {
				base = parsed
			}
		}
	}
	static := f.static || env.Bool("E9_STATIC_LOADER")
	phdr := f.phdr
	if phdr == "" || phdr == "auto" {
		if v := env.Str("E9_PHDR_CHOICE"); v != "" {
			phdr = v
		}
	}
	trap := f.trap || env.Bool("E9_TRAP_ENTRY")
	rebase := f.rebase
	if rebase == 0 {
		if v := env.Str("E9_MEM_REBASE"); v != "" {
			if parsed, err := strconv.ParseInt(v, 0, 64); err == nil {
				rebase = parsed
			}
		}
	}

	platform, err := engine.ParsePlatform(f.target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "e9patch-go: %v\n", err)
		os.Exit(2)
	}

	mode := elfpatch.ModeExecutable
	if strings.EqualFold(f.mode, "dso") {
		mode = elfpatch.ModeSharedObject
	}

	return options{
		platform: platform,
		output:   f.output,
		mode:     mode,
		ctx: &elfpatch.Context{
			LoaderBase:   base,
			StaticLoader: static,
			PHDRChoice:   parsePHDRChoice(phdr),
			TrapEntry:    trap,
			MemRebase:    rebase,
			Verbose:      f.verbose,
		},
		verify: f.verify,
	}
}

func parsePHDRChoice(s string) elfpatch.PHDRChoice {
	switch strings.ToLower(s) {
	case "note":
		return elfpatch.PHDRNote
	case "relro":
		return elfpatch.PHDRRelro
	case "stack":
		return elfpatch.PHDRStack
	default:
		return elfpatch.PHDRAuto
	}
}

// sidecar is the JSON description of what to inject, read from
// <input>.e9.json: the instrumentation decisions (which instructions
// were patched, where the trampoline mappings and their payload bytes
// go, what init functions to register) produced by whatever upstream
// instrumentation pass drives this tool. Byte payloads are hex-encoded.
type sidecar struct {
	Instructions  []sidecarInstruction `json:"instructions"`
	InitFunctions []uint64             `json:"init_functions"`
	Mappings      []sidecarMapping     `json:"mappings"`
	LoaderBlob    string               `json:"loader_blob_hex"`
	MMapHint      *uint64              `json:"mmap_hint,omitempty"`
}

type sidecarInstruction struct {
	Offset uint64 `json:"offset"`
	Addr   uint64 `json:"addr"`
}

type sidecarMapping struct {
	Base    uint64         `json:"base"`
	Size    uint64         `json:"size"`
	Prot    string         `json:"prot"` // any combination of "r", "w", "x"
	Preload bool           `json:"preload"`
	Chunks  []sidecarChunk `json:"chunks"`
}

type sidecarChunk struct {
	Offset uint64 `json:"offset"`
	DataHex string `json:"data_hex"`
}

func loadSidecar(path string) (*sidecar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sidecar %s: %w", path, err)
	}
	var sc sidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("parsing sidecar %s: %w", path, err)
	}
	return &sc, nil
}

func parseProt(s string) elfpatch.Prot {
	var p elfpatch.Prot
	if strings.ContainsRune(s, 'r') {
		p |= elfpatch.ProtRead
	}
	if strings.ContainsRune(s, 'w') {
		p |= elfpatch.ProtWrite
	}
	if strings.ContainsRune(s, 'x') {
		p |= elfpatch.ProtExec
	}
	return p
}

func buildMappings(sc *sidecar) ([]*elfpatch.Mapping, error) {
	mappings := make([]*elfpatch.Mapping, 0, len(sc.Mappings))
	for i, sm := range sc.Mappings {
		m := &elfpatch.Mapping{
			Base:    sm.Base,
			Size:    sm.Size,
			Prot:    parseProt(sm.Prot),
			Preload: sm.Preload,
		}
		for _, sch := range sm.Chunks {
			data, err := hex.DecodeString(sch.DataHex)
			if err != nil {
				return nil, fmt.Errorf("mapping %d chunk at offset 0x%x: %w", i, sch.Offset, err)
			}
			m.Chunks = append(m.Chunks, elfpatch.Chunk{Off: sch.Offset, Data: data})
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

// run reads the input ELF and its JSON sidecar, validates and injects,
// optionally verifies, and writes the patched output. This is
// deliberately the thinnest wiring that makes the core runnable
// end-to-end; the real work happens in package elfpatch.
func run(inputPath string, opts options) error {
	elfpatch.VerboseMode = opts.ctx.Verbose

	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", inputPath, err)
	}

	b, reservations, _, err := elfpatch.Validate(inputPath, raw, opts.mode)
	if err != nil {
		return fmt.Errorf("validating %s: %w", inputPath, err)
	}

	sc, err := loadSidecar(inputPath + ".e9.json")
	if err != nil {
		return err
	}
	ins := make([]elfpatch.Instruction, 0, len(sc.Instructions))
	for _, i := range sc.Instructions {
		ins = append(ins, elfpatch.Instruction{Offset: i.Offset, Addr: i.Addr})
	}
	b.Instructions = elfpatch.NewInstructionIndex(ins)
	b.InitFunctions = sc.InitFunctions
	b.MMapHint = sc.MMapHint

	mappings, err := buildMappings(sc)
	if err != nil {
		return err
	}
	loaderBlob, err := hex.DecodeString(sc.LoaderBlob)
	if err != nil {
		return fmt.Errorf("decoding loader_blob_hex: %w", err)
	}

	report, err := elfpatch.Inject(opts.ctx, b, reservations, mappings, loaderBlob)
	if err != nil {
		return fmt.Errorf("injecting into %s: %w", inputPath, err)
	}

	outPath := opts.output
	if outPath == "" {
		outPath = inputPath + ".patched"
	}
	if err := os.WriteFile(outPath, b.Patched.Bytes(), 0o755); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}

	if opts.verify {
		if err := elfpatch.Verify(b.Patched.Bytes()); err != nil {
			return fmt.Errorf("verifying %s: %w", outPath, err)
		}
	}

	for _, w := range opts.ctx.Warnings {
		fmt.Fprintf(os.Stderr, "e9patch-go: warning: %s\n", w)
	}
	fmt.Fprintf(os.Stderr, "e9patch-go: wrote %s (%d bytes, %d refactors, %d+%d maps)\n",
		outPath, report.OutputSize, report.RefactorCount, report.MappingCounts[0], report.MappingCounts[1])
	return nil
}

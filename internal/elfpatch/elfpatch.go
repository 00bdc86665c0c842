// Package elfpatch is the ELF emission core: it consumes a parsed ELF
// image plus a set of trampoline mappings and injected instructions and
// produces a self-loading patched ELF. The four stages are Validate
// (ELF Validator), PlanRefactors/ApplyRefactors (Refactor Planner),
// EmitMap (Mapping Emitter) and Inject (Loader Injector); the caller
// runs Validate first, and Inject drives the other stages.
package elfpatch

// VerboseMode is a package-level debug switch rather than a logging
// library. cli.go sets it from -v; no code in this package reads it.
var VerboseMode = false

// Sizes and alignment constants for the ELF64 little-endian x86-64
// layout this package reads and writes.
const (
	elfHeaderSize  = 64 // ELF64 header size
	progHeaderSize = 56 // Program header entry size (ELF64)

	pageSize = 0x1000 // 4 KiB page alignment

	// PN_XNUM is the sentinel e_phnum value meaning "the real count is
	// stored in sh_info of section 0"; this package rejects it rather
	// than chasing section headers, since ET_REL is already excluded.
	pnXNUM = 0xffff
)

// ELF e_ident / e_type / e_machine / program-header constants used by
// the validator and injector. Named the way debug/elf names them so a
// reader who knows that package feels at home, but kept local: the
// write path needs exact control over byte layout that debug/elf,
// being read-oriented, doesn't offer.
const (
	elfMag0 = 0x7f
	elfMag1 = 'E'
	elfMag2 = 'L'
	elfMag3 = 'F'

	elfClass64  = 2
	elfData2LSB = 1
	evCurrent   = 1
	elfOSABI    = 0 // ELFOSABI_NONE/SYSV; we don't reject on this field

	etExec = 2
	etDyn  = 3

	emX86_64 = 62

	ptNull    = 0
	ptLoad    = 1
	ptDynamic = 2
	ptInterp  = 3
	ptNote    = 4
	ptPhdr    = 6
	ptGNUEH   = 0x6474e550
	ptGNUStk  = 0x6474e551
	ptGNURelr = 0x6474e552

	pfX = 1
	pfW = 2
	pfR = 4

	dtNull = 0
	dtInit = 12
)

// relativeAddressMin is the lowest address of the "negative half" of
// the 64-bit address space that the dynamic linker may claim for other
// shared objects. Placing anything there is unsafe for every file but
// a PIE, so the Validator reserves it for all non-PIE inputs.
const relativeAddressMin = 0xffff800000000000

func alignDown(x, align uint64) uint64 { return x &^ (align - 1) }
func alignUp(x, align uint64) uint64   { return (x + align - 1) &^ (align - 1) }

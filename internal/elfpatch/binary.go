package elfpatch

import "sort"

// Mode classifies whether the caller asked this file to be treated as
// an executable or a shared object. The Validator rejects an ET_EXEC
// file in shared-object mode; ET_DYN is accepted in both modes (as a
// PIE in executable mode).
type Mode int

const (
	ModeExecutable Mode = iota
	ModeSharedObject
)

func (m Mode) String() string {
	if m == ModeSharedObject {
		return "shared-object"
	}
	return "executable"
}

// Instruction is one entry of Binary.Instructions: the file offset and
// virtual address of a single instruction the upstream instruction
// stream builder placed into the patched image.
type Instruction struct {
	Offset uint64 // file offset of the patched instruction
	Addr   uint64 // virtual address of the patched instruction
}

// InstructionIndex is the ordered-by-offset index backing lower-bound
// lookups over the patched instruction stream. The instruction stream
// itself is produced upstream; this is the index that answers
// lower-bound queries over it.
type InstructionIndex struct {
	entries []Instruction
}

// NewInstructionIndex builds an index from an already-ordered or
// unordered instruction list; it sorts by Offset so LowerBound can
// binary search.
func NewInstructionIndex(ins []Instruction) *InstructionIndex {
	cp := make([]Instruction, len(ins))
	copy(cp, ins)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Offset < cp[j].Offset })
	return &InstructionIndex{entries: cp}
}

// LowerBound returns the earliest instruction whose file offset is >=
// offset, and whether one was found.
func (idx *InstructionIndex) LowerBound(offset uint64) (Instruction, bool) {
	i := sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].Offset >= offset })
	if i == len(idx.entries) {
		return Instruction{}, false
	}
	return idx.entries[i], true
}

// Len reports how many instructions are indexed.
func (idx *InstructionIndex) Len() int { return len(idx.entries) }

// elfPointers records the offsets of the program-header-table entries
// the Validator locates: PT_DYNAMIC, PT_NOTE, PT_GNU_RELRO,
// PT_GNU_STACK. -1 means absent. Offsets rather than pointers, since
// the backing buffer can grow and reallocate.
type elfPointers struct {
	ehdrOff int // always 0 for a well-formed file; kept for symmetry

	phOff   uint64
	phNum   int
	phEntSz int

	dynamicPhdrOff int
	notePhdrOff    int
	relroPhdrOff   int
	stackPhdrOff   int
}

// Binary is the in-progress patch target. It is created by the
// upstream parser (here, Validate) and consumed
// exclusively by this package until Inject completes.
type Binary struct {
	Name string

	OriginalBytes []byte  // immutable snapshot of the input
	Patched       *Buffer // growable work area, the input copied in

	Mode Mode

	elf elfPointers

	Instructions  *InstructionIndex
	InitFunctions []uint64
	MMapHint      *uint64 // caller-supplied mmap() hint for config_elf.mmap; nil leaves it zero
	ConfigBase    uint64  // set by the Injector once it picks a base

	pic bool // true for ET_DYN executables (PIE)
	pie bool
}

// Size is the current logical length of Patched.
func (b *Binary) Size() int { return b.Patched.Len() }

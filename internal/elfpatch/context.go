package elfpatch

import "fmt"

// PHDRChoice selects which non-PT_LOAD program header the injector is
// allowed to repurpose for the trampoline mapping. The zero value,
// PHDRAuto, applies the preference order PT_NOTE, then PT_GNU_RELRO,
// then PT_GNU_STACK.
type PHDRChoice int

const (
	PHDRAuto PHDRChoice = iota
	PHDRNote
	PHDRRelro
	PHDRStack
)

// Context threads the per-run configuration options across an Inject
// call, mirroring the package-level VerboseMode pattern but scoped to
// a single call instead of global state, since a long-lived process
// could run Inject concurrently for unrelated binaries.
type Context struct {
	// LoaderBase is the preferred virtual address for the trampoline
	// mapping. Zero means "let the injector pick".
	LoaderBase uint64

	// StaticLoader: when true, the Refactor Planner is skipped
	// entirely (PlanRefactors returns nil, nil) and patched bytes are
	// never relocated away from their original file offsets.
	StaticLoader bool

	// PHDRChoice picks which program header the injector may repurpose.
	PHDRChoice PHDRChoice

	// TrapEntry prepends a single int3 to the entry shim, so a
	// debugger attached to the process stops right where control
	// first reaches the injected region.
	TrapEntry bool

	// MemRebase is an additional offset that would be folded into
	// every address the injector computes relative to LoaderBase.
	// Ignored for ELF output: the injector instead emits a warning
	// when it is set, since there's no safe way to rebase an ELF
	// image's addresses after the fact without also relocating its
	// own internal pointers.
	MemRebase int64

	// Verbose mirrors VerboseMode but per-call.
	Verbose bool

	// Warnings accumulates conditions worth surfacing (e.g. a large
	// refactor cluster count, or an ignored option) that do not
	// themselves invalidate the result.
	Warnings []string
}

func (c *Context) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

package elfpatch

// InjectionReport summarizes a completed Inject call.
type InjectionReport struct {
	OutputSize    int
	RefactorCount int
	MappingCounts [2]int // preload, postload

	// PhysicalBytes is the total declared size of every preload
	// mapping: bytes read off disk before control reaches the
	// original entry point.
	PhysicalBytes uint64

	// VirtualBytes is the total span, across both the preload and
	// postload mapping arrays, that the new mappings occupy in memory.
	VirtualBytes uint64

	ConfigOffset   int
	ConfigSize     int
	RepurposedPHDR string // "PT_NOTE", "PT_GNU_RELRO", or "PT_GNU_STACK"
	PIE            bool
}

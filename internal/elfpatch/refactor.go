package elfpatch

// PlanRefactors implements the Refactor Planner's clustering pass. It
// is exposed standalone (not only as a step inside Inject) so the
// planner can be exercised and tested without running a full Loader
// Injector pass.
//
// patched and original must be the same length, a multiple of
// pageSize (the planner assumes this on entry — a debug assertion, not
// an input-validation error: callers control both buffers). idx must
// cover every byte patched into patched relative to original: if a
// dirty page has no covering instruction, that is treated as an
// internal bug, not a malformed-input condition, because it reflects
// a violated upstream invariant rather than bad user input.
func PlanRefactors(patched, original []byte, idx *InstructionIndex, mappingSize uint64, static bool) ([]Refactor, error) {
	if static {
		return nil, nil
	}
	if len(patched) != len(original) {
		panic("elfpatch: PlanRefactors requires patched and original of equal length")
	}
	if len(patched)%pageSize != 0 {
		panic("elfpatch: PlanRefactors requires a page-aligned size")
	}

	var refactors []Refactor
	haveCluster := false
	var cluster Refactor

	flush := func() {
		if haveCluster {
			refactors = append(refactors, cluster)
			haveCluster = false
		}
	}

	for off := 0; off < len(patched); off += pageSize {
		page := patched[off : off+pageSize]
		orig := original[off : off+pageSize]
		dirty := false
		for i := range page {
			if page[i] != orig[i] {
				dirty = true
				break
			}
		}
		if !dirty {
			continue
		}

		ins, found := idx.LowerBound(uint64(off))
		if !found {
			return nil, internalError("dirty page at file offset 0x%x has no covering instruction", off)
		}
		pageAddr := alignDown(ins.Addr, pageSize)
		pageOffset := alignDown(ins.Offset, pageSize)
		if pageOffset != uint64(off) {
			// Debug assertion, not a hard input-validation error: the
			// upstream instruction index is assumed complete and
			// self-consistent.
			panic("elfpatch: instruction file offset does not round down to the dirty page offset")
		}

		if haveCluster && pageAddr >= cluster.Addr && pageAddr <= cluster.Addr+cluster.Size+mappingSize {
			end := pageAddr + pageSize
			if end > cluster.Addr+cluster.Size {
				cluster.Size = end - cluster.Addr
			}
			continue
		}

		flush()
		cluster = Refactor{
			Addr:           pageAddr,
			Size:           pageSize,
			OriginalOffset: uint64(off),
		}
		haveCluster = true
	}
	flush()

	return refactors, nil
}

// ApplyRefactors relocates planned refactors: for each refactor, it
// appends its current patched bytes to buf at a new offset, then
// restores the original bytes at their natural offset. Refactors must
// be in ascending OriginalOffset order, as PlanRefactors produces
// them. Returns the refactors with PatchedOffset filled in.
func ApplyRefactors(buf *Buffer, original []byte, refactors []Refactor) ([]Refactor, error) {
	out := make([]Refactor, len(refactors))
	for i, r := range refactors {
		patchedBytes, ok := buf.Slice(int(r.OriginalOffset), int(r.Size))
		if !ok {
			return nil, internalError("refactor range [0x%x,+0x%x) out of bounds", r.OriginalOffset, r.Size)
		}
		cp := append([]byte(nil), patchedBytes...)

		r.PatchedOffset = uint64(buf.Append(cp))

		if int(r.OriginalOffset)+int(r.Size) > len(original) {
			return nil, internalError("refactor range [0x%x,+0x%x) exceeds original image", r.OriginalOffset, r.Size)
		}
		buf.WriteAt(int(r.OriginalOffset), original[r.OriginalOffset:r.OriginalOffset+r.Size])

		out[i] = r
	}
	return out, nil
}

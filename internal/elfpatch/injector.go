package elfpatch

// Inject is the Loader Injector: given a Binary already validated and
// patched in place (b.Patched holds the instrumented image, still at
// its original length), the trampoline Mappings an upstream
// instrumentation pass wants installed at load time, and the opaque
// loader shim blob, it lays out the full injected region, repurposes a
// program header to map it, and rewires either e_entry (Executable
// mode) or DT_INIT (SharedObject mode) to reach it.
//
// The layout below advances a single cursor through b.Patched, mapping
// pages and the trampoline blobs in ahead of the config header so that
// every mapping's final file offset is known before the config header
// and map_record arrays that reference those offsets get written.
func Inject(ctx *Context, b *Binary, reservations *Reservations, mappings []*Mapping, loaderBlob []byte) (*InjectionReport, error) {
	buf := b.Patched

	// Round the work area up to a page boundary before anything gets
	// appended to it, so every later offset lands on a page multiple —
	// a real input file's length is essentially never already
	// page-aligned. PlanRefactors requires patched and original to stay
	// the same length, so pad the original snapshot by the same amount;
	// the padding is zero on both sides and never shows up as a dirty
	// page.
	if pad := buf.AlignUp(pageSize); pad > 0 {
		b.OriginalBytes = append(b.OriginalBytes, make([]byte, pad)...)
	}

	// Relocate dirty pages out of place, restoring the originals at
	// their natural offset so the loader shim can mmap the relocated
	// copies back in at startup.
	refactors, err := PlanRefactors(buf.Bytes(), b.OriginalBytes, b.Instructions, estimateMappingSpan(mappings), ctx.StaticLoader)
	if err != nil {
		return nil, err
	}
	if !ctx.StaticLoader {
		refactors, err = ApplyRefactors(buf, b.OriginalBytes, refactors)
		if err != nil {
			return nil, err
		}
	}
	if len(refactors) > 16 {
		ctx.warnf("large refactor cluster count (%d); trampoline reach may be tight", len(refactors))
	}

	phdrOff, phdrName, err := choosePHDROffset(b, ctx.PHDRChoice)
	if err != nil {
		return nil, err
	}

	// Determine the original continuation target before overwriting
	// e_entry/DT_INIT, and remember where DT_INIT's d_ptr lives so the
	// rewiring step below can patch it once the shim's address is known.
	var continueAddr uint64
	var dynInit DynEntry
	var haveDynInit bool
	switch b.Mode {
	case ModeExecutable:
		ehdr, ok := readEHdr(buf.Bytes())
		if !ok {
			return nil, internalError("could not re-read ELF header before entry rewiring")
		}
		continueAddr = ehdr.Entry
	case ModeSharedObject:
		if b.elf.dynamicPhdrOff < 0 {
			return nil, missingDynamic()
		}
		dph, ok := readPHdr(buf.Bytes(), b.elf.dynamicPhdrOff)
		if !ok {
			return nil, internalError("PT_DYNAMIC program header unreadable")
		}
		entry, found, derr := ScanDynamic(buf.Bytes(), dph.Offset, dph.FileSz)
		if derr != nil {
			return nil, derr
		}
		if !found {
			return nil, missingInit()
		}
		continueAddr = entry.Val
		dynInit = entry
		haveDynInit = true
	}

	// Estimate the injected region's total size before fixing
	// addresses: every size below is independent of where the region
	// ends up, only of what it contains.
	trampolineSize := estimateMappingSpan(mappings)
	shimSize := uint64(EntryShimSize(b.Mode, ctx.TrapEntry))
	estimate := alignUp(uint64(configHeaderSize)+uint64(len(b.InitFunctions))*8+
		estimateMapRecordBytes(mappings)+uint64(len(refactors))*mapRecordSize+
		shimSize+uint64(len(loaderBlob)), pageSize) + trampolineSize

	base, err := pickLoaderBase(reservations, ctx.LoaderBase, estimate)
	if err != nil {
		return nil, err
	}
	if ctx.MemRebase != 0 {
		ctx.warnf("mem_rebase is ignored for ELF output (requested 0x%x)", ctx.MemRebase)
	}
	b.ConfigBase = base

	// Embed every mapping's flattened payload, including merged chains,
	// recording each one's file offset for the map_record pass below.
	fileOffOf := make(map[*Mapping]uint64)
	for _, top := range mappings {
		for _, m := range top.chain() {
			buf.AlignUp(pageSize)
			off := buf.Append(m.Flatten(0xcc))
			fileOffOf[m] = uint64(off)
			m.Offset = uint64(off)
		}
	}

	buf.AlignUp(pageSize)
	configOff := writeConfigHeader(buf, base)
	vaddrOf := func(fileOff int) uint64 { return base + uint64(fileOff-configOff) }

	// inits[] array.
	initsOff := buf.Len()
	for _, addr := range b.InitFunctions {
		var v [8]byte
		leUint64(v[:], addr)
		buf.Append(v[:])
	}

	// One map_record per contiguous populated, page-aligned range of
	// every mapping (and every chain member), in two passes: preload
	// first, then postload. physicalBytes accumulates each mapping's
	// declared total size during the preload pass only; virtualBytes
	// accumulates the actual emitted range lengths across both passes.
	var mapsOff [2]int
	var mapsCount [2]int
	var runningUB uint64
	var physicalBytes, virtualBytes uint64
	for idx, wantPreload := range [2]bool{true, false} {
		mapsOff[idx] = buf.Len()
		for _, top := range mappings {
			for _, m := range top.chain() {
				if m.Preload != wantPreload {
					continue
				}
				if wantPreload {
					physicalBytes += m.Size
				}
				bounds := m.getVirtualBounds(pageSize)
				for _, rg := range bounds {
					addr := int64(m.Base + rg.Lo)
					if _, emitErr := EmitMap(buf, addr, rg.Hi-rg.Lo, fileOffOf[m]+rg.Lo, m.Prot, &runningUB); emitErr != nil {
						return nil, emitErr
					}
					virtualBytes += rg.Hi - rg.Lo
					mapsCount[idx]++
				}
			}
		}
	}

	// Append each refactor's relocated page range to the postload array
	// as a read+execute map_record (never writable): the loader shim
	// must mmap the relocated copy back over the original address
	// before control ever reaches the patched code there.
	for _, r := range refactors {
		if _, emitErr := EmitMap(buf, int64(r.Addr), r.Size, r.PatchedOffset, ProtRead|ProtExec, &runningUB); emitErr != nil {
			return nil, emitErr
		}
		mapsCount[1]++
	}

	if ctx.LoaderBase != 0 && runningUB > base {
		return nil, loaderBaseTooLow(runningUB, base)
	}

	// Mode-dependent entry shim, immediately followed by the opaque
	// loader shim blob with no call or jump between them: execution
	// falls straight through from the shim's last instruction into the
	// blob, which reads config_record.entry itself to continue to the
	// original entry point.
	shimAddr := vaddrOf(buf.Len())
	shimBytes := BuildEntryShim(b.Mode, shimAddr, base, ctx.TrapEntry)
	buf.Append(shimBytes)
	buf.Append(loaderBlob)

	// Rewire the real entry point.
	switch b.Mode {
	case ModeExecutable:
		writeEntry(buf.Bytes(), shimAddr)
	case ModeSharedObject:
		if !haveDynInit {
			return nil, internalError("missing DT_INIT entry despite earlier scan")
		}
		ReplaceInit(buf, dynInit, shimAddr)
	}

	// Repurpose the chosen program header as the PT_LOAD that maps
	// [configOff, buf.Len()) at [base, base+size).
	regionSize := uint64(buf.Len() - configOff)
	ph := &PHdr{
		Type:   ptLoad,
		Flags:  pfR | pfX,
		Offset: uint64(configOff),
		VAddr:  base,
		PAddr:  base,
		FileSz: regionSize,
		MemSz:  regionSize,
		Align:  pageSize,
	}
	if !writePHdr(buf.Bytes(), phdrOff, ph) {
		return nil, internalError("failed to write repurposed program header at file offset 0x%x", phdrOff)
	}

	// Backfill the config header now that everything has a final offset
	// and address. config.entry records the original continuation
	// target (the loader shim blob reads it back to hand off there);
	// the real e_entry/DT_INIT was already rewired above to shimAddr.
	patchUint32(buf, configOff, cfgOffFlags, flagExecutable*boolToUint32(b.Mode == ModeExecutable))
	patchUint32(buf, configOff, cfgOffSize, uint32(regionSize))
	patchUint64(buf, configOff, cfgOffEntry, continueAddr)
	patchUint32(buf, configOff, cfgOffNumMaps0, uint32(mapsCount[0]))
	patchUint32(buf, configOff, cfgOffNumMaps1, uint32(mapsCount[1]))
	patchUint32(buf, configOff, cfgOffMaps0, uint32(mapsOff[0]-configOff))
	patchUint32(buf, configOff, cfgOffMaps1, uint32(mapsOff[1]-configOff))
	patchUint32(buf, configOff, cfgOffNumInits, uint32(len(b.InitFunctions)))
	patchUint32(buf, configOff, cfgOffInits, uint32(initsOff-configOff))
	if haveDynInit {
		patchUint64(buf, configOff, cfgElfOffDynamic, dynamicSegmentVAddr(buf.Bytes(), b.elf.dynamicPhdrOff))
	}
	if b.MMapHint != nil {
		patchUint64(buf, configOff, cfgElfOffMmap, *b.MMapHint)
	}

	return &InjectionReport{
		OutputSize:     buf.Len(),
		RefactorCount:  len(refactors),
		MappingCounts:  mapsCount,
		PhysicalBytes:  physicalBytes,
		VirtualBytes:   virtualBytes,
		ConfigOffset:   configOff,
		ConfigSize:     configHeaderSize,
		RepurposedPHDR: phdrName,
		PIE:            b.pie,
	}, nil
}

func choosePHDROffset(b *Binary, choice PHDRChoice) (int, string, error) {
	switch choice {
	case PHDRNote:
		if b.elf.notePhdrOff >= 0 {
			return b.elf.notePhdrOff, "PT_NOTE", nil
		}
		return 0, "", noInjectionSlot()
	case PHDRRelro:
		if b.elf.relroPhdrOff >= 0 {
			return b.elf.relroPhdrOff, "PT_GNU_RELRO", nil
		}
		return 0, "", noInjectionSlot()
	case PHDRStack:
		if b.elf.stackPhdrOff >= 0 {
			return b.elf.stackPhdrOff, "PT_GNU_STACK", nil
		}
		return 0, "", noInjectionSlot()
	default:
		if b.elf.notePhdrOff >= 0 {
			return b.elf.notePhdrOff, "PT_NOTE", nil
		}
		if b.elf.relroPhdrOff >= 0 {
			return b.elf.relroPhdrOff, "PT_GNU_RELRO", nil
		}
		if b.elf.stackPhdrOff >= 0 {
			return b.elf.stackPhdrOff, "PT_GNU_STACK", nil
		}
		return 0, "", noInjectionSlot()
	}
}

// pickLoaderBase honors an explicit loader_base_option if given,
// otherwise scans the reservation set's sorted ranges for the first
// gap (above the null-guard page) big enough for size bytes, skipping
// over open-ended claims entirely since nothing can be placed above
// one.
func pickLoaderBase(reservations *Reservations, requested, size uint64) (uint64, error) {
	if requested != 0 {
		base := alignUp(requested, pageSize)
		if !reservations.Reserve(base, base+size) {
			return 0, reservationConflict(base, base+size)
		}
		return base, nil
	}
	candidate := uint64(pageSize)
	for _, iv := range reservations.ranges {
		if iv.OpenEnded {
			continue
		}
		if candidate+size <= iv.Lo {
			break
		}
		if iv.Hi > candidate {
			candidate = alignUp(iv.Hi, pageSize)
		}
	}
	if !reservations.Reserve(candidate, candidate+size) {
		return 0, internalError("auto-picked loader base 0x%x unexpectedly conflicts", candidate)
	}
	return candidate, nil
}

func estimateMappingSpan(mappings []*Mapping) uint64 {
	var total uint64
	for _, top := range mappings {
		for _, m := range top.chain() {
			total += alignUp(m.Size, pageSize)
		}
	}
	return total
}

func estimateMapRecordBytes(mappings []*Mapping) uint64 {
	var n uint64
	for _, top := range mappings {
		for _, m := range top.chain() {
			n += uint64(len(m.getVirtualBounds(pageSize)))
		}
	}
	return n * mapRecordSize
}

func boolToUint32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

func leUint64(dst []byte, v uint64) {
	for i := 0; i < 8; i++ {
		dst[i] = byte(v >> (8 * uint(i)))
	}
}

func dynamicSegmentVAddr(buf []byte, phdrOff int) uint64 {
	ph, ok := readPHdr(buf, phdrOff)
	if !ok {
		return 0
	}
	return ph.VAddr
}

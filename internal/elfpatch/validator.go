package elfpatch

// Validate implements the ELF Validator / Reservation Walker. It
// parses raw as an ELF64 little-endian x86-64 file, rejects every
// malformed condition, classifies the file, reserves the
// virtual-address ranges its PT_LOAD segments already claim, and
// returns a Binary ready for the Refactor Planner / Mapping Emitter /
// Loader Injector stages plus the pic flag (true for ET_DYN in
// executable mode).
func Validate(name string, raw []byte, mode Mode) (*Binary, *Reservations, bool, error) {
	ehdr, ok := readEHdr(raw)
	if !ok {
		return nil, nil, false, malformedInput("file shorter than ELF header (%d bytes)", len(raw))
	}

	if raw[0] != elfMag0 || raw[1] != elfMag1 || raw[2] != elfMag2 || raw[3] != elfMag3 {
		return nil, nil, false, malformedInput("bad ELF magic")
	}
	if raw[4] != elfClass64 {
		return nil, nil, false, malformedInput("not a 64-bit ELF (EI_CLASS=%d)", raw[4])
	}
	if raw[5] != elfData2LSB {
		return nil, nil, false, malformedInput("not little-endian (EI_DATA=%d)", raw[5])
	}
	if raw[6] != evCurrent {
		return nil, nil, false, malformedInput("unknown ELF version (EI_VERSION=%d)", raw[6])
	}
	if ehdr.Machine != emX86_64 {
		return nil, nil, false, malformedInput("unsupported machine type (e_machine=%d, want x86-64)", ehdr.Machine)
	}
	if ehdr.Type != etExec && ehdr.Type != etDyn {
		return nil, nil, false, malformedInput("unsupported object type (e_type=%d, want ET_EXEC or ET_DYN)", ehdr.Type)
	}
	if ehdr.PhNum == pnXNUM {
		return nil, nil, false, malformedInput("e_phnum is PN_XNUM, extended program header counts unsupported")
	}
	if ehdr.PhEntSize != progHeaderSize {
		return nil, nil, false, malformedInput("unexpected program header entry size %d", ehdr.PhEntSize)
	}
	if ehdr.PhOff > uint64(len(raw)) {
		return nil, nil, false, malformedInput("e_phoff 0x%x outside file body (size=%d)", ehdr.PhOff, len(raw))
	}
	phTableEnd := ehdr.PhOff + uint64(ehdr.PhNum)*uint64(ehdr.PhEntSize)
	if phTableEnd > uint64(len(raw)) {
		return nil, nil, false, malformedInput("program header table truncated (ends at 0x%x, file size %d)", phTableEnd, len(raw))
	}

	// An ET_EXEC file requested as a shared object is rejected, but not
	// the reverse: of the four (e_type, mode) combinations, ET_DYN is
	// valid under both modes (plain DSO, or PIE under Executable mode,
	// per the reservation carve-out below), so ET_EXEC-requested-as-DSO
	// is the only combination actually excluded; there is no separate
	// "ET_DYN requested as Executable" case to reject without also
	// rejecting PIE, which the reservation policy below clearly
	// permits.
	wantExec := mode == ModeExecutable
	gotExec := ehdr.Type == etExec
	if gotExec && !wantExec {
		return nil, nil, false, malformedInput("file is ET_EXEC but shared-object mode was requested")
	}

	elf := elfPointers{
		ehdrOff:        0,
		phOff:          ehdr.PhOff,
		phNum:          int(ehdr.PhNum),
		phEntSz:        int(ehdr.PhEntSize),
		dynamicPhdrOff: -1,
		notePhdrOff:    -1,
		relroPhdrOff:   -1,
		stackPhdrOff:   -1,
	}

	reservations := NewReservations()

	pic := ehdr.Type == etDyn && wantExec
	pie := pic && wantExec

	switch {
	case ehdr.Type == etExec:
		if !reservations.Reserve(0, 0x10000) {
			return nil, nil, false, reservationConflict(0, 0x10000)
		}
		// Not a PIE either: the negative half is claimed as below.
		if !reservations.ReserveFrom(relativeAddressMin) {
			return nil, nil, false, reservationConflict(relativeAddressMin, 0)
		}
	case pie:
		// Do not reserve the negative half: a PIE's own load base is
		// chosen freely by the (real) dynamic linker or loader and
		// doesn't compete with it.
	default:
		// ET_DYN in DSO mode, and every non-PIE: the dynamic linker
		// claims the negative half for other shared objects.
		if !reservations.ReserveFrom(relativeAddressMin) {
			return nil, nil, false, reservationConflict(relativeAddressMin, 0)
		}
	}

	for i := 0; i < elf.phNum; i++ {
		off := int(elf.phOff) + i*elf.phEntSz
		ph, ok := readPHdr(raw, off)
		if !ok {
			return nil, nil, false, malformedInput("program header %d out of bounds", i)
		}
		switch ph.Type {
		case ptDynamic:
			if ph.Offset+ph.FileSz > uint64(len(raw)) {
				return nil, nil, false, malformedInput("PT_DYNAMIC contents extend past file end")
			}
			elf.dynamicPhdrOff = off
		case ptNote:
			elf.notePhdrOff = off
		case ptGNURelr:
			elf.relroPhdrOff = off
		case ptGNUStk:
			elf.stackPhdrOff = off
		case ptLoad:
			lo, hi := ph.VAddr, ph.VAddr+ph.MemSz
			if !reservations.Reserve(lo, hi) {
				return nil, nil, false, reservationConflict(lo, hi)
			}
		}
	}

	b := &Binary{
		Name:          name,
		OriginalBytes: append([]byte(nil), raw...),
		Patched:       NewBuffer(raw),
		Mode:          mode,
		elf:           elf,
		Instructions:  NewInstructionIndex(nil),
		pic:           pic,
		pie:           pie,
	}

	return b, reservations, pic, nil
}

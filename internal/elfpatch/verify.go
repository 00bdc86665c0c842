package elfpatch

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"
)

// Verify is a read-only post-injection sanity check: it re-parses the
// emitted bytes with debug/elf and confirms the handful of invariants
// an outside reader can observe actually hold. It never touches the
// write path; Inject's own typed views (elf_layout.go) do all the
// mutating.
func Verify(data []byte) error {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("elfpatch: Verify: %w", err)
	}
	defer f.Close()

	seg, off, err := findConfigSegment(f, data)
	if err != nil {
		return err
	}

	cr, _, ok := readConfigRecord(data, off)
	if !ok {
		return fmt.Errorf("elfpatch: Verify: config_record at file offset 0x%x is truncated", off)
	}

	// Invariant: the repurposed segment is executable and readable, and
	// its file contents fully cover the config header plus whatever
	// Size claims.
	if seg.Flags&elf.PF_X == 0 {
		return fmt.Errorf("elfpatch: Verify: repurposed segment is not executable")
	}
	if uint64(off)+uint64(cr.Size) > seg.Off+seg.Filesz {
		return fmt.Errorf("elfpatch: Verify: config_record.Size 0x%x extends past its segment", cr.Size)
	}

	// Invariant: the real entry point (Executable) or DT_INIT (DSO) was
	// rewired to land inside the repurposed segment — that's where the
	// entry shim lives. config_record.Entry holds the *original* value
	// instead (the loader blob reads it back to continue execution
	// there), so it is deliberately not compared against the live
	// entry/DT_INIT value here.
	segEnd := seg.Vaddr + seg.Memsz
	switch f.Type {
	case elf.ET_EXEC:
		if f.Entry < seg.Vaddr || f.Entry >= segEnd {
			return fmt.Errorf("elfpatch: Verify: e_entry 0x%x does not fall inside the repurposed segment [0x%x,0x%x)", f.Entry, seg.Vaddr, segEnd)
		}
	case elf.ET_DYN:
		initVal, dynErr := dynInitValue(f)
		if dynErr != nil {
			return dynErr
		}
		if initVal < seg.Vaddr || initVal >= segEnd {
			return fmt.Errorf("elfpatch: Verify: DT_INIT 0x%x does not fall inside the repurposed segment [0x%x,0x%x)", initVal, seg.Vaddr, segEnd)
		}
	default:
		return fmt.Errorf("elfpatch: Verify: unexpected e_type %v", f.Type)
	}

	// Invariant: the map arrays sit inside the config region.
	for i, mo := range cr.Maps {
		end := uint64(mo) + uint64(cr.NumMaps[i])*mapRecordSize
		if end > cr.Size {
			return fmt.Errorf("elfpatch: Verify: maps[%d] array [0x%x,0x%x) extends past config_record.Size 0x%x", i, mo, end, cr.Size)
		}
	}
	if end := uint64(cr.Inits) + uint64(cr.NumInits)*8; end > cr.Size {
		return fmt.Errorf("elfpatch: Verify: inits[] array extends past config_record.Size 0x%x", cr.Size)
	}

	return nil
}

func findConfigSegment(f *elf.File, data []byte) (*elf.Prog, int, error) {
	for _, seg := range f.Progs {
		if seg.Type != elf.PT_LOAD {
			continue
		}
		off := int(seg.Off)
		if off+configHeaderSize > len(data) {
			continue
		}
		if bytes.Equal(data[off:off+8], configMagic[:]) {
			return seg, off, nil
		}
	}
	return nil, 0, fmt.Errorf("elfpatch: Verify: no segment begins with the config_record magic")
}

func dynInitValue(f *elf.File) (uint64, error) {
	var dyn *elf.Prog
	for _, p := range f.Progs {
		if p.Type == elf.PT_DYNAMIC {
			dyn = p
			break
		}
	}
	if dyn == nil {
		return 0, fmt.Errorf("elfpatch: Verify: no PT_DYNAMIC segment to read DT_INIT from")
	}
	r := dyn.Open()
	buf := make([]byte, dynEntrySize)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, fmt.Errorf("elfpatch: Verify: DT_INIT not found before end of dynamic section")
		}
		tag := int64(leToUint64(buf[0:8]))
		if tag == dtNull {
			return 0, fmt.Errorf("elfpatch: Verify: DT_INIT not found before DT_NULL")
		}
		if tag == dtInit {
			return leToUint64(buf[8:16]), nil
		}
	}
}

func leToUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

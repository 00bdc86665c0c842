package elfpatch

import "encoding/binary"

const dynEntrySize = 16 // Elf64_Dyn: int64 d_tag, uint64 d_val/d_ptr

// DynEntry is one decoded Elf64_Dyn entry.
type DynEntry struct {
	FileOffset uint64
	Tag        int64
	Val        uint64
}

// ScanDynamic walks the PT_DYNAMIC table at [off, off+size) looking
// for DT_INIT, the entry the injector rewrites to point at the entry
// shim for SharedObject mode. It stops at DT_NULL or the end of the
// table, whichever comes first, matching how a real dynamic linker
// terminates the walk.
func ScanDynamic(raw []byte, off, size uint64) (initEntry DynEntry, found bool, err error) {
	end := off + size
	if end > uint64(len(raw)) {
		return DynEntry{}, false, malformedInput("PT_DYNAMIC range [0x%x,0x%x) exceeds file size %d", off, end, len(raw))
	}
	for p := off; p+dynEntrySize <= end; p += dynEntrySize {
		tag := int64(binary.LittleEndian.Uint64(raw[p : p+8]))
		if tag == dtNull {
			break
		}
		if tag == dtInit {
			val := binary.LittleEndian.Uint64(raw[p+8 : p+16])
			return DynEntry{FileOffset: p, Tag: tag, Val: val}, true, nil
		}
	}
	return DynEntry{}, false, nil
}

// ReplaceInit overwrites the DT_INIT entry's d_ptr field in buf with
// newAddr, redirecting the dynamic linker's constructor call into the
// entry shim.
func ReplaceInit(buf *Buffer, entry DynEntry, newAddr uint64) {
	var v [8]byte
	binary.LittleEndian.PutUint64(v[:], newAddr)
	buf.WriteAt(int(entry.FileOffset)+8, v[:])
}

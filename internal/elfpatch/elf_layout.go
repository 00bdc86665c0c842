package elfpatch

import "encoding/binary"

// EHdr is a typed, decoded view of the fields of an ELF64 header this
// package actually cares about. It is a value copy taken at validation
// time; writers go back through writeEntry/writePHdr against the
// buffer rather than mutating this struct in place, consistent with
// this package's offsets-not-pointers rule for anything that outlives
// a single Buffer growth.
type EHdr struct {
	Type      uint16
	Machine   uint16
	Entry     uint64
	PhOff     uint64
	PhEntSize uint16
	PhNum     uint16
}

// readEHdr decodes an ELF64 header from buf, bounds-checking against
// buf's length before touching any field. It does not validate magic
// or class/endianness — that is the Validator's job; this is purely a
// typed-view layer over the raw bytes.
func readEHdr(buf []byte) (*EHdr, bool) {
	if len(buf) < elfHeaderSize {
		return nil, false
	}
	return &EHdr{
		Type:      binary.LittleEndian.Uint16(buf[16:18]),
		Machine:   binary.LittleEndian.Uint16(buf[18:20]),
		Entry:     binary.LittleEndian.Uint64(buf[24:32]),
		PhOff:     binary.LittleEndian.Uint64(buf[32:40]),
		PhEntSize: binary.LittleEndian.Uint16(buf[54:56]),
		PhNum:     binary.LittleEndian.Uint16(buf[56:58]),
	}, true
}

// writeEntry overwrites e_entry in place.
func writeEntry(buf []byte, entry uint64) {
	binary.LittleEndian.PutUint64(buf[24:32], entry)
}

// PHdr is a typed, decoded view of one ELF64 program header entry.
type PHdr struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	VAddr  uint64
	PAddr  uint64
	FileSz uint64
	MemSz  uint64
	Align  uint64
}

func readPHdr(buf []byte, off int) (*PHdr, bool) {
	if off < 0 || off+progHeaderSize > len(buf) {
		return nil, false
	}
	p := buf[off : off+progHeaderSize]
	return &PHdr{
		Type:   binary.LittleEndian.Uint32(p[0:4]),
		Flags:  binary.LittleEndian.Uint32(p[4:8]),
		Offset: binary.LittleEndian.Uint64(p[8:16]),
		VAddr:  binary.LittleEndian.Uint64(p[16:24]),
		PAddr:  binary.LittleEndian.Uint64(p[24:32]),
		FileSz: binary.LittleEndian.Uint64(p[32:40]),
		MemSz:  binary.LittleEndian.Uint64(p[40:48]),
		Align:  binary.LittleEndian.Uint64(p[48:56]),
	}, true
}

func writePHdr(buf []byte, off int, h *PHdr) bool {
	if off < 0 || off+progHeaderSize > len(buf) {
		return false
	}
	p := buf[off : off+progHeaderSize]
	binary.LittleEndian.PutUint32(p[0:4], h.Type)
	binary.LittleEndian.PutUint32(p[4:8], h.Flags)
	binary.LittleEndian.PutUint64(p[8:16], h.Offset)
	binary.LittleEndian.PutUint64(p[16:24], h.VAddr)
	binary.LittleEndian.PutUint64(p[24:32], h.PAddr)
	binary.LittleEndian.PutUint64(p[32:40], h.FileSz)
	binary.LittleEndian.PutUint64(p[40:48], h.MemSz)
	binary.LittleEndian.PutUint64(p[48:56], h.Align)
	return true
}

package elfpatch

import "encoding/binary"

// buildMinimalELF assembles the smallest ELF64 x86-64 image Validate
// will accept: a header, one program header table entry of the given
// type(s), and enough padding to keep every offset in bounds. Built
// inline rather than shipped as binary test data.
type phdrSpec struct {
	typ     uint32
	flags   uint32
	offset  uint64
	vaddr   uint64
	filesz  uint64
	memsz   uint64
	align   uint64
}

func buildMinimalELF(etype uint16, entry uint64, phdrs []phdrSpec, totalSize int) []byte {
	phOff := uint64(elfHeaderSize)
	phTableSize := len(phdrs) * progHeaderSize
	minSize := int(phOff) + phTableSize
	if totalSize < minSize {
		totalSize = minSize
	}
	buf := make([]byte, totalSize)

	buf[0], buf[1], buf[2], buf[3] = elfMag0, elfMag1, elfMag2, elfMag3
	buf[4] = elfClass64
	buf[5] = elfData2LSB
	buf[6] = evCurrent
	buf[7] = elfOSABI

	binary.LittleEndian.PutUint16(buf[16:18], etype)
	binary.LittleEndian.PutUint16(buf[18:20], emX86_64)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(evCurrent))
	binary.LittleEndian.PutUint64(buf[24:32], entry)
	binary.LittleEndian.PutUint64(buf[32:40], phOff)
	binary.LittleEndian.PutUint16(buf[54:56], progHeaderSize)
	binary.LittleEndian.PutUint16(buf[56:58], uint16(len(phdrs)))

	for i, p := range phdrs {
		off := int(phOff) + i*progHeaderSize
		binary.LittleEndian.PutUint32(buf[off:off+4], p.typ)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], p.flags)
		binary.LittleEndian.PutUint64(buf[off+8:off+16], p.offset)
		binary.LittleEndian.PutUint64(buf[off+16:off+24], p.vaddr)
		binary.LittleEndian.PutUint64(buf[off+24:off+32], p.vaddr)
		binary.LittleEndian.PutUint64(buf[off+32:off+40], p.filesz)
		binary.LittleEndian.PutUint64(buf[off+40:off+48], p.memsz)
		binary.LittleEndian.PutUint64(buf[off+48:off+56], p.align)
	}
	return buf
}

// minimalExecutable returns a tiny ET_EXEC image with one PT_LOAD
// covering the whole file and one PT_NOTE slot available to repurpose.
func minimalExecutable() []byte {
	return buildMinimalELF(etExec, 0x401000, []phdrSpec{
		{typ: ptLoad, flags: pfR | pfX, offset: 0, vaddr: 0x400000, filesz: 0x2000, memsz: 0x2000, align: pageSize},
		{typ: ptNote, flags: pfR, offset: 0x1000, vaddr: 0x401000, filesz: 0x20, memsz: 0x20, align: 4},
	}, 0x2000)
}

// minimalSharedObject returns a tiny ET_DYN image with a PT_DYNAMIC
// segment containing one DT_INIT entry followed by DT_NULL, and a
// PT_GNU_STACK slot available to repurpose.
func minimalSharedObject(initAddr uint64) []byte {
	const dynOff = 0x1000
	buf := buildMinimalELF(etDyn, 0, []phdrSpec{
		{typ: ptLoad, flags: pfR | pfX, offset: 0, vaddr: 0, filesz: 0x2000, memsz: 0x2000, align: pageSize},
		{typ: ptDynamic, flags: pfR | pfW, offset: dynOff, vaddr: dynOff, filesz: dynEntrySize * 2, memsz: dynEntrySize * 2, align: 8},
		{typ: ptGNUStk, flags: pfR | pfW, offset: 0, vaddr: 0, filesz: 0, memsz: 0, align: 0x10},
	}, 0x2000)

	binary.LittleEndian.PutUint64(buf[dynOff:dynOff+8], uint64(dtInit))
	binary.LittleEndian.PutUint64(buf[dynOff+8:dynOff+16], initAddr)
	binary.LittleEndian.PutUint64(buf[dynOff+16:dynOff+24], uint64(dtNull))
	binary.LittleEndian.PutUint64(buf[dynOff+24:dynOff+32], 0)
	return buf
}

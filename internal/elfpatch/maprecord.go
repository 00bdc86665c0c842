package elfpatch

import "encoding/binary"

// mapRecordSize is the on-disk size of one map_record: a little-endian
// int32 addr, a little-endian uint32 offset, and a little-endian
// uint32 packing size (low 20 bits) and four flag bits (top nibble) —
// three 32-bit words, 12 bytes. See DESIGN.md for why the field list
// is taken as authoritative over a conflicting size claimed elsewhere.
const mapRecordSize = 12

const (
	mapFlagR   = 1 << 0
	mapFlagW   = 1 << 1
	mapFlagX   = 1 << 2
	mapFlagAbs = 1 << 3
)

// IsAbsolute reports whether addr is an absolute (not loader-base-
// relative) address: one that falls in the negative/canonical-kernel
// half of the 64-bit address space, the same "negative half" the
// Validator's reservation policy already treats specially.
func IsAbsolute(addr int64) bool { return addr < 0 }

// BaseAddress strips the absolute/relative tag from addr to get the
// real virtual address. For this package's chosen encoding the raw
// value already doubles as both the tag (via its sign) and the
// address, so stripping is the identity — documented explicitly
// rather than left implicit, since it is a distinct accessor from
// IsAbsolute.
func BaseAddress(addr int64) int64 { return addr }

// EmitMap writes one map_record to dst for the range [addr, addr+len)
// at file offset offset with the given protection bits, validating
// every on-disk field width and tracking the running maximum
// non-absolute base in *ub. It returns the number of bytes written
// (always mapRecordSize) or an OverflowError.
func EmitMap(dst *Buffer, addr int64, length, offset uint64, prot Prot, ub *uint64) (int, error) {
	abs := IsAbsolute(addr)
	rel := BaseAddress(addr)

	if !abs && ub != nil {
		if rel < 0 {
			panic("elfpatch: non-absolute base resolved negative")
		}
		if uint64(rel) > *ub {
			*ub = uint64(rel)
		}
	}

	pageAddr := rel / int64(pageSize)
	pageLen := length / pageSize
	pageOff := offset / pageSize

	if pageAddr < -(1 << 31) {
		return 0, overflowError("map_record.addr underflows int32", pageAddr, addr)
	}
	if pageAddr > (1<<31)-1 {
		return 0, overflowError("map_record.addr overflows int32", pageAddr, addr)
	}
	if pageLen >= (1 << 20) {
		return 0, overflowError("map_record.size overflows 20 bits", int64(pageLen), addr)
	}
	if pageOff > 0xffffffff {
		return 0, overflowError("map_record.offset overflows uint32", int64(pageOff), addr)
	}

	var flags uint32
	if prot&ProtRead != 0 {
		flags |= mapFlagR
	}
	if prot&ProtWrite != 0 {
		flags |= mapFlagW
	}
	if prot&ProtExec != 0 {
		flags |= mapFlagX
	}
	if abs {
		flags |= mapFlagAbs
	}

	var rec [mapRecordSize]byte
	binary.LittleEndian.PutUint32(rec[0:4], uint32(int32(pageAddr)))
	binary.LittleEndian.PutUint32(rec[4:8], uint32(pageOff))
	binary.LittleEndian.PutUint32(rec[8:12], uint32(pageLen)&0xfffff|(flags<<28))

	dst.Append(rec[:])
	return mapRecordSize, nil
}

package elfpatch

import "encoding/binary"

// configMagic is the ASCII byte sequence the injected region starts
// with: "E9PATCH\0".
var configMagic = [8]byte{'E', '9', 'P', 'A', 'T', 'C', 'H', 0}

const flagExecutable = 1 << 0

// Field byte offsets within the config_record. The record holds the
// platform-generic fields; config_elf, appended immediately after it,
// holds the ELF-specific pointers (dynamic, mmap). Keeping the generic
// record free of platform pointers and putting dynamic/mmap
// exclusively in config_elf avoids the generic record needing to know
// about per-platform extensions; see DESIGN.md.
const (
	cfgOffMagic    = 0
	cfgOffFlags    = 8
	cfgOffSize     = 12
	cfgOffBase     = 16
	cfgOffEntry    = 24
	cfgOffNumMaps0 = 32
	cfgOffNumMaps1 = 36
	cfgOffMaps0    = 40
	cfgOffMaps1    = 44
	cfgOffNumInits = 48
	cfgOffInits    = 52
	configRecordSize = 56

	cfgElfOffDynamic = configRecordSize
	cfgElfOffMmap    = configRecordSize + 8
	configELFSize    = 16

	configHeaderSize = configRecordSize + configELFSize
)

// ConfigRecord is a decoded view of the platform-generic header.
// NumMaps/Maps index 0 holds the preload mapping array (installed
// before control reaches the original entry point); index 1 holds
// postload.
type ConfigRecord struct {
	Flags    uint32
	Size     uint32
	Base     uint64
	Entry    uint64
	NumMaps  [2]uint32
	Maps     [2]uint32
	NumInits uint32
	Inits    uint32
}

// ConfigELF is the ELF-specific extension record.
type ConfigELF struct {
	Dynamic uint64
	Mmap    uint64
}

// writeConfigHeader appends configHeaderSize zeroed bytes for the
// header at the buffer's current position, then fills in magic and
// base. Returns the offset the header starts at. Remaining fields are
// patched in place as later injector steps learn them.
func writeConfigHeader(buf *Buffer, base uint64) int {
	off := buf.Grow(configHeaderSize)
	raw := buf.Bytes()[off : off+configHeaderSize]
	copy(raw[cfgOffMagic:cfgOffMagic+8], configMagic[:])
	binary.LittleEndian.PutUint64(raw[cfgOffBase:cfgOffBase+8], base)
	return off
}

func patchUint32(buf *Buffer, configOff, fieldOff int, v uint32) {
	binary.LittleEndian.PutUint32(buf.Bytes()[configOff+fieldOff:], v)
}

func patchUint64(buf *Buffer, configOff, fieldOff int, v uint64) {
	binary.LittleEndian.PutUint64(buf.Bytes()[configOff+fieldOff:], v)
}

func readUint32(buf []byte, configOff, fieldOff int) uint32 {
	return binary.LittleEndian.Uint32(buf[configOff+fieldOff:])
}

// readConfigRecord decodes a config_record (and its config_elf
// extension) out of buf starting at off, for tests and Verify.
func readConfigRecord(buf []byte, off int) (ConfigRecord, ConfigELF, bool) {
	if off < 0 || off+configHeaderSize > len(buf) {
		return ConfigRecord{}, ConfigELF{}, false
	}
	r := buf[off:]
	cr := ConfigRecord{
		Flags: binary.LittleEndian.Uint32(r[cfgOffFlags:]),
		Size:  binary.LittleEndian.Uint32(r[cfgOffSize:]),
		Base:  binary.LittleEndian.Uint64(r[cfgOffBase:]),
		Entry: binary.LittleEndian.Uint64(r[cfgOffEntry:]),
		NumMaps: [2]uint32{
			binary.LittleEndian.Uint32(r[cfgOffNumMaps0:]),
			binary.LittleEndian.Uint32(r[cfgOffNumMaps1:]),
		},
		Maps: [2]uint32{
			binary.LittleEndian.Uint32(r[cfgOffMaps0:]),
			binary.LittleEndian.Uint32(r[cfgOffMaps1:]),
		},
		NumInits: binary.LittleEndian.Uint32(r[cfgOffNumInits:]),
		Inits:    binary.LittleEndian.Uint32(r[cfgOffInits:]),
	}
	ce := ConfigELF{
		Dynamic: binary.LittleEndian.Uint64(r[cfgElfOffDynamic:]),
		Mmap:    binary.LittleEndian.Uint64(r[cfgElfOffMmap:]),
	}
	return cr, ce, true
}

package elfpatch

import "encoding/binary"

// The loader shim blob itself is an external collaborator: this
// package embeds whatever bytes the caller supplies rather than
// assembling a runtime loader of its own. What the Loader Injector
// owns is the short mode-dependent entry prologue that sets up the
// loader blob's argument registers and hands control straight through
// into it — no call, no return: the blob is appended immediately after
// the prologue and execution simply falls into it.

// execPrologue loads the kernel-supplied argc/argv into the first two
// SysV argument registers straight off the stack, the way a freshly
// started process sees them before any libc runtime has touched rsp.
var execPrologue = []byte{
	0x48, 0x8b, 0x3c, 0x24, // mov (%rsp), %rdi
	0x48, 0x8d, 0x74, 0x24, 0x08, // lea 8(%rsp), %rsi
}

// dsoPrologue zeroes the first two argument registers for DT_INIT
// entry, where they already hold argc/argv/envp from the dynamic
// linker and the loader blob has no analogous use for them.
var dsoPrologue = []byte{
	0x31, 0xff, // xor edi, edi
	0x31, 0xf6, // xor esi, esi
}

// leaRdxRipLen is the length, in bytes, of `lea rdx, [rip+disp32]`.
const leaRdxRipLen = 7

func encodeLeaRdxRip(disp int32) []byte {
	b := make([]byte, leaRdxRipLen)
	b[0], b[1], b[2] = 0x48, 0x8d, 0x15
	binary.LittleEndian.PutUint32(b[3:], uint32(disp))
	return b
}

// int3Trap is the single-byte breakpoint instruction a trap_entry
// request prepends to the shim, so a debugger attached to the process
// stops right where control first reaches the injected region.
const int3Trap = 0xcc

// BuildEntryShim assembles the mode-dependent entry prologue that
// precedes the loader shim blob. shimAddr is the virtual address the
// returned bytes will occupy once placed; configAddr is the
// config_record's virtual address, loaded into rdx (the loader blob's
// third argument) via a RIP-relative lea. If trapEntry is set, a
// single int3 precedes the prologue.
//
// The returned bytes never include the loader blob itself or any
// instruction to reach it: the blob is appended immediately afterward
// by the caller, and execution simply falls through into it. The
// blob reads config_record.entry — the original entry point or
// DT_INIT value, saved there before rewiring — to continue execution
// once it has done its own work.
func BuildEntryShim(mode Mode, shimAddr, configAddr uint64, trapEntry bool) []byte {
	var out []byte
	emit := func(b []byte) { out = append(out, b...) }

	if trapEntry {
		emit([]byte{int3Trap})
	}

	switch mode {
	case ModeExecutable:
		emit(execPrologue)
	case ModeSharedObject:
		emit(dsoPrologue)
	}

	leaAt := shimAddr + uint64(len(out))
	leaDisp := int64(configAddr) - int64(leaAt+leaRdxRipLen)
	emit(encodeLeaRdxRip(int32(leaDisp)))

	return out
}

// EntryShimSize returns the exact byte length BuildEntryShim produces
// for the given mode and trapEntry setting, so the injector can
// estimate the injected region's size before anything is written.
func EntryShimSize(mode Mode, trapEntry bool) int {
	size := leaRdxRipLen
	if mode == ModeExecutable {
		size += len(execPrologue)
	} else {
		size += len(dsoPrologue)
	}
	if trapEntry {
		size++
	}
	return size
}

// EmbedLoaderShim appends the externally-supplied loader shim blob to
// buf and returns the offset it starts at. The emission core treats
// the blob as opaque bytes; it never disassembles, validates, or
// regenerates it.
func EmbedLoaderShim(buf *Buffer, blob []byte) int {
	return buf.Append(blob)
}

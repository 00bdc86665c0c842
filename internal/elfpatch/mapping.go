package elfpatch

import (
	"sort"

	"golang.org/x/sys/unix"
)

// Prot is a protection bitset using the real mmap protection bits from
// golang.org/x/sys/unix rather than a hand-rolled enum, since these
// values are exactly what the loader shim will eventually pass to
// mmap(2)/mprotect(2) at runtime.
type Prot uint32

const (
	ProtRead  Prot = unix.PROT_READ
	ProtWrite Prot = unix.PROT_WRITE
	ProtExec  Prot = unix.PROT_EXEC
)

// Chunk is one populated byte range within a Mapping's virtual
// footprint, expressed relative to the mapping's own base. Mappings
// are sparse: most of a trampoline's reserved span is padding.
type Chunk struct {
	Off  uint64
	Data []byte
}

// Mapping is a trampoline region to be installed at load time.
type Mapping struct {
	Base    uint64
	Size    uint64
	Offset  uint64 // populated when emitted into the file
	Prot    Prot
	Preload bool
	Chunks  []Chunk

	// merged chains this mapping to others sharing the same on-disk
	// blob. chain() walks it; getVirtualBounds covers only this
	// mapping's own Chunks.
	merged *Mapping
}

// Merge appends next to m's merged chain.
func (m *Mapping) Merge(next *Mapping) {
	tail := m
	for tail.merged != nil {
		tail = tail.merged
	}
	tail.merged = next
}

// chain returns m and every mapping reachable through merged, head
// first.
func (m *Mapping) chain() []*Mapping {
	out := []*Mapping{m}
	for n := m.merged; n != nil; n = n.merged {
		out = append(out, n)
	}
	return out
}

// Range is a half-open [Lo, Hi) sub-range within a mapping's own
// coordinate space (i.e. relative to Base).
type Range struct{ Lo, Hi uint64 }

// getVirtualBounds returns the maximal contiguous, page-aligned
// sub-ranges of m that actually carry bytes, in ascending order.
// Chunks are merged by raw byte adjacency first, then each resulting
// run is widened to page boundaries, since every consumer of these
// bounds (map_record emission, mmap at runtime) operates in whole
// pages.
func (m *Mapping) getVirtualBounds(pageSize uint64) []Range {
	if len(m.Chunks) == 0 {
		return nil
	}
	chunks := append([]Chunk(nil), m.Chunks...)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Off < chunks[j].Off })

	var raw []Range
	cur := Range{chunks[0].Off, chunks[0].Off + uint64(len(chunks[0].Data))}
	for _, c := range chunks[1:] {
		lo, hi := c.Off, c.Off+uint64(len(c.Data))
		if lo <= cur.Hi {
			if hi > cur.Hi {
				cur.Hi = hi
			}
			continue
		}
		raw = append(raw, cur)
		cur = Range{lo, hi}
	}
	raw = append(raw, cur)

	// Widen to page boundaries, then merge any runs that now touch.
	for i := range raw {
		raw[i].Lo = alignDown(raw[i].Lo, pageSize)
		raw[i].Hi = alignUp(raw[i].Hi, pageSize)
	}
	var out []Range
	cur = raw[0]
	for _, r := range raw[1:] {
		if r.Lo <= cur.Hi {
			if r.Hi > cur.Hi {
				cur.Hi = r.Hi
			}
			continue
		}
		out = append(out, cur)
		cur = r
	}
	out = append(out, cur)
	return out
}

// Flatten writes the mapping's byte image (size m.Size), filling holes
// between chunks with fill.
func (m *Mapping) Flatten(fill byte) []byte {
	img := make([]byte, m.Size)
	for i := range img {
		img[i] = fill
	}
	for _, c := range m.Chunks {
		copy(img[c.Off:], c.Data)
	}
	return img
}

// Refactor is a planned restoration of original pages.
type Refactor struct {
	Addr           uint64 // page-aligned virtual address
	Size           uint64 // page-multiple
	OriginalOffset uint64 // where the patched copy currently sits
	PatchedOffset  uint64 // where it will sit after refactoring
}

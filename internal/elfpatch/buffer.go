package elfpatch

// Buffer is the growable work area backing Binary.Patched. Rather than
// handing out raw slices into storage that Grow can reallocate, every
// accessor re-resolves an offset against the current backing array on
// each call, so callers hold offsets instead of pointers across a
// growth.
type Buffer struct {
	data []byte
}

// NewBuffer wraps an existing byte slice (the raw input file) as the
// initial contents of the work area.
func NewBuffer(initial []byte) *Buffer {
	b := &Buffer{data: make([]byte, len(initial))}
	copy(b.data, initial)
	return b
}

// Len returns the current logical length.
func (b *Buffer) Len() int { return len(b.data) }

// Bytes returns the current backing slice. Callers must not retain it
// across a call that grows the buffer.
func (b *Buffer) Bytes() []byte { return b.data }

// Grow appends n zero bytes and returns the offset at which they
// start.
func (b *Buffer) Grow(n int) int {
	off := len(b.data)
	b.data = append(b.data, make([]byte, n)...)
	return off
}

// Append appends p verbatim and returns the offset at which it starts.
func (b *Buffer) Append(p []byte) int {
	off := len(b.data)
	b.data = append(b.data, p...)
	return off
}

// AlignUp pads with zero bytes until Len() is a multiple of align,
// which must be a power of two. Returns the number of bytes padded.
func (b *Buffer) AlignUp(align int) int {
	cur := len(b.data)
	target := int(alignUp(uint64(cur), uint64(align)))
	if target == cur {
		return 0
	}
	b.data = append(b.data, make([]byte, target-cur)...)
	return target - cur
}

// Fill overwrites the given on-disk amount with fill starting at off,
// bounds-checked. Used to pad sparse mapping images.
func (b *Buffer) Fill(off, n int, fill byte) {
	if off < 0 || n < 0 || off+n > len(b.data) {
		panic("elfpatch: Buffer.Fill out of range")
	}
	for i := off; i < off+n; i++ {
		b.data[i] = fill
	}
}

// WriteAt overwrites b.data[off:off+len(p)] with p, bounds-checked. It
// never grows the buffer — growth is always explicit via Grow/Append
// so that the buffer's length stays an authoritative cursor.
func (b *Buffer) WriteAt(off int, p []byte) {
	if off < 0 || off+len(p) > len(b.data) {
		panic("elfpatch: Buffer.WriteAt out of range")
	}
	copy(b.data[off:], p)
}

// Slice returns a bounds-checked read view. The returned slice aliases
// the buffer and is invalidated by the next Grow/Append.
func (b *Buffer) Slice(off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off+n > len(b.data) {
		return nil, false
	}
	return b.data[off : off+n], true
}

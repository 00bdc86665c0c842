package elfpatch

import "testing"

func TestGetVirtualBoundsMergesAndWidensToPages(t *testing.T) {
	m := &Mapping{
		Size: pageSize * 3,
		Chunks: []Chunk{
			{Off: 10, Data: []byte{1, 2, 3}},
			{Off: pageSize + 20, Data: []byte{4, 5}},
		},
	}
	bounds := m.getVirtualBounds(pageSize)
	if len(bounds) != 1 {
		t.Fatalf("expected the two nearby chunks to widen into one page-aligned range, got %d: %v", len(bounds), bounds)
	}
	if bounds[0].Lo != 0 || bounds[0].Hi != pageSize*2 {
		t.Fatalf("unexpected bounds %v", bounds[0])
	}
}

func TestGetVirtualBoundsKeepsDistantChunksSeparate(t *testing.T) {
	m := &Mapping{
		Size: pageSize * 10,
		Chunks: []Chunk{
			{Off: 0, Data: []byte{1}},
			{Off: pageSize * 8, Data: []byte{2}},
		},
	}
	bounds := m.getVirtualBounds(pageSize)
	if len(bounds) != 2 {
		t.Fatalf("expected 2 separate ranges, got %d", len(bounds))
	}
}

func TestFlattenFillsHolesAndCopiesChunks(t *testing.T) {
	m := &Mapping{
		Size: 8,
		Chunks: []Chunk{
			{Off: 2, Data: []byte{0xaa, 0xbb}},
		},
	}
	img := m.Flatten(0xcc)
	want := []byte{0xcc, 0xcc, 0xaa, 0xbb, 0xcc, 0xcc, 0xcc, 0xcc}
	for i := range want {
		if img[i] != want[i] {
			t.Fatalf("Flatten mismatch at %d: got 0x%x want 0x%x", i, img[i], want[i])
		}
	}
}

func TestMappingChainWalksMergedMappings(t *testing.T) {
	a := &Mapping{Base: 0}
	b := &Mapping{Base: pageSize}
	c := &Mapping{Base: pageSize * 2}
	a.Merge(b)
	a.Merge(c)

	chain := a.chain()
	if len(chain) != 3 {
		t.Fatalf("expected chain of 3, got %d", len(chain))
	}
	if chain[0] != a || chain[1] != b || chain[2] != c {
		t.Fatalf("chain order not preserved: %v", chain)
	}
}

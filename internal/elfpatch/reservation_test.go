package elfpatch

import "testing"

func TestReservationsRejectsOverlap(t *testing.T) {
	r := NewReservations()
	if !r.Reserve(0x1000, 0x3000) {
		t.Fatalf("first reservation should succeed")
	}
	if r.Reserve(0x2000, 0x4000) {
		t.Fatalf("overlapping reservation should fail")
	}
	if !r.Reserve(0x3000, 0x4000) {
		t.Fatalf("adjacent, non-overlapping reservation should succeed")
	}
}

func TestReservationsEmptyRangeIsNoop(t *testing.T) {
	r := NewReservations()
	if !r.Reserve(0x2000, 0x1000) {
		t.Fatalf("an empty (lo>=hi) range should always succeed")
	}
	if !r.Reserve(0x2000, 0x1000) {
		t.Fatalf("repeating the empty range should still succeed")
	}
}

func TestReservationsOpenEndedBlocksEverythingAbove(t *testing.T) {
	r := NewReservations()
	if !r.ReserveFrom(relativeAddressMin) {
		t.Fatalf("first open-ended reservation should succeed")
	}
	if r.Reserve(relativeAddressMin+0x1000, relativeAddressMin+0x2000) {
		t.Fatalf("range inside an open-ended reservation should conflict")
	}
	if !r.Reserve(0x1000, 0x2000) {
		t.Fatalf("range well below the open-ended claim should succeed")
	}
}

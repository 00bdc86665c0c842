package elfpatch

import "testing"

func TestEmitMapRoundTrip(t *testing.T) {
	buf := NewBuffer(nil)
	var ub uint64
	n, err := EmitMap(buf, 0x2000, 0x3000, 0x5000, ProtRead|ProtExec, &ub)
	if err != nil {
		t.Fatalf("EmitMap: %v", err)
	}
	if n != mapRecordSize {
		t.Fatalf("expected %d bytes written, got %d", mapRecordSize, n)
	}
	if ub != 0x2000 {
		t.Fatalf("expected running max base 0x2000, got 0x%x", ub)
	}

	rec, ok := buf.Slice(0, mapRecordSize)
	if !ok {
		t.Fatalf("record not written")
	}
	addrWord := uint32(rec[0]) | uint32(rec[1])<<8 | uint32(rec[2])<<16 | uint32(rec[3])<<24
	if int32(addrWord) != 0x2000/pageSize {
		t.Fatalf("unexpected packed page address: %d", int32(addrWord))
	}
}

func TestEmitMapRejectsOversizedLength(t *testing.T) {
	buf := NewBuffer(nil)
	_, err := EmitMap(buf, 0, uint64(1<<20)*pageSize, 0, ProtRead, nil)
	if err == nil {
		t.Fatalf("expected overflow error for a 2^20-page mapping")
	}
	perr, ok := err.(*Error)
	if !ok || perr.Kind != KindOverflow {
		t.Fatalf("expected KindOverflow, got %v", err)
	}
}

func TestEmitMapAbsoluteAddressSetsFlag(t *testing.T) {
	buf := NewBuffer(nil)
	if _, err := EmitMap(buf, -int64(pageSize)*4, pageSize, 0, ProtWrite, nil); err != nil {
		t.Fatalf("EmitMap: %v", err)
	}
	rec, _ := buf.Slice(0, mapRecordSize)
	flagsWord := uint32(rec[8]) | uint32(rec[9])<<8 | uint32(rec[10])<<16 | uint32(rec[11])<<24
	flags := flagsWord >> 28
	if flags&mapFlagAbs == 0 {
		t.Fatalf("expected absolute flag set for a negative address")
	}
	if flags&mapFlagW == 0 {
		t.Fatalf("expected write flag set")
	}
}

func TestIsAbsolute(t *testing.T) {
	if IsAbsolute(0x1000) {
		t.Fatalf("positive address should not be absolute")
	}
	if !IsAbsolute(-1) {
		t.Fatalf("negative address should be absolute")
	}
}

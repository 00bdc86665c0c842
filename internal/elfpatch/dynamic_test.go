package elfpatch

import (
	"encoding/binary"
	"testing"
)

func TestScanDynamicFindsInit(t *testing.T) {
	raw := minimalSharedObject(0x1234)
	entry, found, err := ScanDynamic(raw, 0x1000, dynEntrySize*2)
	if err != nil {
		t.Fatalf("ScanDynamic: %v", err)
	}
	if !found {
		t.Fatalf("expected DT_INIT to be found")
	}
	if entry.Val != 0x1234 {
		t.Fatalf("unexpected DT_INIT value 0x%x", entry.Val)
	}
}

func TestScanDynamicStopsAtNull(t *testing.T) {
	raw := make([]byte, dynEntrySize*2)
	// DT_NULL first, then a DT_INIT entry after it inside the scanned
	// range: the walk must stop at DT_NULL and not report that DT_INIT.
	binary.LittleEndian.PutUint64(raw[dynEntrySize:dynEntrySize+8], uint64(dtInit))
	_, found, err := ScanDynamic(raw, 0, dynEntrySize*2)
	if err != nil {
		t.Fatalf("ScanDynamic: %v", err)
	}
	if found {
		t.Fatalf("did not expect DT_INIT after DT_NULL")
	}
}

func TestReplaceInitOverwritesPointer(t *testing.T) {
	raw := minimalSharedObject(0x1234)
	buf := NewBuffer(raw)
	entry, found, err := ScanDynamic(buf.Bytes(), 0x1000, dynEntrySize*2)
	if err != nil || !found {
		t.Fatalf("ScanDynamic setup failed: found=%v err=%v", found, err)
	}
	ReplaceInit(buf, entry, 0x9999)

	entry2, found2, err := ScanDynamic(buf.Bytes(), 0x1000, dynEntrySize*2)
	if err != nil || !found2 {
		t.Fatalf("ScanDynamic after replace failed")
	}
	if entry2.Val != 0x9999 {
		t.Fatalf("expected replaced value 0x9999, got 0x%x", entry2.Val)
	}
}

package elfpatch

import "testing"

func TestValidateAcceptsMinimalExecutable(t *testing.T) {
	raw := minimalExecutable()
	b, reservations, pic, err := Validate("exe", raw, ModeExecutable)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if pic {
		t.Fatalf("ET_EXEC should not be reported as PIC")
	}
	if b.elf.notePhdrOff < 0 {
		t.Fatalf("expected PT_NOTE to be located")
	}
	if reservations.Reserve(0x400000, 0x402000) {
		t.Fatalf("PT_LOAD range should already be reserved")
	}
}

func TestValidateAcceptsPIEAsExecutable(t *testing.T) {
	raw := minimalSharedObject(0x1100)
	_, reservations, pic, err := Validate("pie", raw, ModeExecutable)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !pic {
		t.Fatalf("ET_DYN in Executable mode should be reported PIC")
	}
	// A PIE does not reserve the negative half, so it should remain free.
	if !reservations.ReserveFrom(relativeAddressMin) {
		t.Fatalf("negative half should still be free for a PIE")
	}
}

func TestValidateRejectsExecAsSharedObject(t *testing.T) {
	raw := minimalExecutable()
	if _, _, _, err := Validate("exe", raw, ModeSharedObject); err == nil {
		t.Fatalf("expected rejection of ET_EXEC requested as shared object")
	}
}

func TestValidateRejectsBadMagic(t *testing.T) {
	raw := minimalExecutable()
	raw[0] = 0x00
	if _, _, _, err := Validate("bad", raw, ModeExecutable); err == nil {
		t.Fatalf("expected rejection of bad magic")
	}
}

func TestValidateRejectsTruncatedFile(t *testing.T) {
	if _, _, _, err := Validate("short", []byte{0x7f, 'E', 'L', 'F'}, ModeExecutable); err == nil {
		t.Fatalf("expected rejection of truncated file")
	}
}

func TestValidateDSOReservesNegativeHalf(t *testing.T) {
	raw := minimalSharedObject(0x1100)
	_, reservations, _, err := Validate("dso", raw, ModeSharedObject)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if reservations.ReserveFrom(relativeAddressMin) {
		t.Fatalf("negative half should already be reserved for a DSO")
	}
}

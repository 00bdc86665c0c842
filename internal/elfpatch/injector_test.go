package elfpatch

import "testing"

func injectExecutableFixture(t *testing.T, ctx *Context) (*Binary, *InjectionReport) {
	t.Helper()
	raw := minimalExecutable()
	b, reservations, _, err := Validate("exe", raw, ModeExecutable)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	b.Instructions = NewInstructionIndex(nil)

	mapping := &Mapping{
		Size:    pageSize,
		Prot:    ProtRead | ProtExec,
		Preload: true,
		Chunks:  []Chunk{{Off: 0, Data: []byte{0x90, 0x90}}},
	}
	loaderBlob := []byte{0xc3} // ret

	report, err := Inject(ctx, b, reservations, []*Mapping{mapping}, loaderBlob)
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	return b, report
}

func TestInjectExecutableEndToEnd(t *testing.T) {
	ctx := &Context{}
	b, report := injectExecutableFixture(t, ctx)

	if report.RepurposedPHDR != "PT_NOTE" {
		t.Fatalf("expected PT_NOTE to be repurposed, got %s", report.RepurposedPHDR)
	}
	if report.MappingCounts[0] != 1 {
		t.Fatalf("expected 1 preload map_record, got %d", report.MappingCounts[0])
	}
	if err := Verify(b.Patched.Bytes()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestInjectSharedObjectEndToEnd(t *testing.T) {
	raw := minimalSharedObject(0x1500)
	b, reservations, pic, err := Validate("dso", raw, ModeSharedObject)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if pic {
		t.Fatalf("DSO mode should not report pic")
	}
	b.Instructions = NewInstructionIndex(nil)

	loaderBlob := []byte{0xc3}
	report, err := Inject(&Context{}, b, reservations, nil, loaderBlob)
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if report.RepurposedPHDR != "PT_GNU_STACK" {
		t.Fatalf("expected PT_GNU_STACK to be repurposed, got %s", report.RepurposedPHDR)
	}
	if err := Verify(b.Patched.Bytes()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestInjectStaticModeSkipsRefactorPlanning(t *testing.T) {
	ctx := &Context{StaticLoader: true}
	_, report := injectExecutableFixture(t, ctx)
	if report.RefactorCount != 0 {
		t.Fatalf("expected no refactors in static mode, got %d", report.RefactorCount)
	}
}

func TestInjectFailsWithoutInjectionSlot(t *testing.T) {
	raw := buildMinimalELF(etExec, 0x401000, []phdrSpec{
		{typ: ptLoad, flags: pfR | pfX, offset: 0, vaddr: 0x400000, filesz: 0x2000, memsz: 0x2000, align: pageSize},
	}, 0x2000)
	b, reservations, _, err := Validate("noslot", raw, ModeExecutable)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	b.Instructions = NewInstructionIndex(nil)

	_, err = Inject(&Context{}, b, reservations, nil, []byte{0xc3})
	if err == nil {
		t.Fatalf("expected noInjectionSlot error")
	}
	perr, ok := err.(*Error)
	if !ok || perr.Kind != KindNoInjectionSlot {
		t.Fatalf("expected KindNoInjectionSlot, got %v", err)
	}
}

func TestInjectRespectsExplicitLoaderBaseConflict(t *testing.T) {
	raw := minimalExecutable()
	b, reservations, _, err := Validate("exe", raw, ModeExecutable)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	b.Instructions = NewInstructionIndex(nil)

	ctx := &Context{LoaderBase: 0x400000} // collides with the existing PT_LOAD
	_, err = Inject(ctx, b, reservations, nil, []byte{0xc3})
	if err == nil {
		t.Fatalf("expected a reservation conflict")
	}
	perr, ok := err.(*Error)
	if !ok || perr.Kind != KindReservationConflict {
		t.Fatalf("expected KindReservationConflict, got %v", err)
	}
}

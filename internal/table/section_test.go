package table

import "testing"

func TestSectionSetGetRoundTrip(t *testing.T) {
	s := NewSection[int]()
	v := 42
	if wasEmpty := s.Set(3, &v); !wasEmpty {
		t.Fatalf("Set on an empty slot should report wasEmpty=true")
	}
	if got := s.Get(3); got == nil || *got != 42 {
		t.Fatalf("Get(3) = %v, want 42", got)
	}
	if s.Num() != 1 {
		t.Fatalf("Num() = %d, want 1", s.Num())
	}
}

func TestSectionSetOverwriteDoesNotDoubleCount(t *testing.T) {
	s := NewSection[int]()
	a, b := 1, 2
	s.Set(0, &a)
	if wasEmpty := s.Set(0, &b); wasEmpty {
		t.Fatalf("Set over an occupied slot should report wasEmpty=false")
	}
	if s.Num() != 1 {
		t.Fatalf("Num() = %d, want 1 after overwrite", s.Num())
	}
}

func TestSectionSetNilPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Set(nil) should panic")
		}
	}()
	s := NewSection[int]()
	s.Set(0, nil)
}

func TestSectionSetFirstSkipsOccupiedSlots(t *testing.T) {
	s := NewSection[int]()
	v0, v1 := 10, 20
	s.Set(0, &v0)
	idx, err := s.SetFirst(&v1, 0, SectionSize)
	if err != nil {
		t.Fatalf("SetFirst: %v", err)
	}
	if idx != 1 {
		t.Fatalf("SetFirst placed at %d, want 1", idx)
	}
}

func TestSectionSetFirstNoRoom(t *testing.T) {
	s := NewSection[int]()
	v := 1
	for i := 0; i < SectionSize; i++ {
		if _, err := s.SetFirst(&v, 0, SectionSize); err != nil {
			t.Fatalf("SetFirst unexpectedly full at i=%d: %v", i, err)
		}
	}
	if _, err := s.SetFirst(&v, 0, SectionSize); err == nil {
		t.Fatal("SetFirst on a full section should return ErrNoRoom")
	}
}

func TestSectionRemoveReportsWhetherItRemoved(t *testing.T) {
	s := NewSection[int]()
	v := 1
	s.Set(5, &v)
	if !s.Remove(5) {
		t.Fatal("Remove on an occupied slot should return true")
	}
	if s.Remove(5) {
		t.Fatal("Remove on an already-empty slot should return false")
	}
	if s.Num() != 0 {
		t.Fatalf("Num() = %d, want 0", s.Num())
	}
}

func TestSectionCleanupPanicsWhenNonEmpty(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Cleanup on a non-empty section should panic")
		}
	}()
	s := NewSection[int]()
	v := 1
	s.Set(0, &v)
	s.Cleanup()
}

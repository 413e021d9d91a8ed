package dedup

import "testing"

func TestAccept(t *testing.T) {
	s := New()

	if !s.Accept("aaa") {
		t.Fatal("first Accept(aaa) = false, want true")
	}
	if s.Accept("aaa") {
		t.Error("second Accept(aaa) = true, want false")
	}
	if got := s.Duplicates(); got != 1 {
		t.Errorf("Duplicates() = %d, want 1", got)
	}

	if !s.Accept("bbb") {
		t.Error("Accept(bbb) = false, want true")
	}
	if got := s.Size(); got != 2 {
		t.Errorf("Size() = %d, want 2", got)
	}
	if got := s.Duplicates(); got != 1 {
		t.Errorf("Duplicates() after distinct hash = %d, want 1", got)
	}
}

func TestAcceptRepeatedDuplicates(t *testing.T) {
	s := New()
	s.Accept("x")
	for i := 0; i < 3; i++ {
		if s.Accept("x") {
			t.Fatalf("Accept on repeat %d = true, want false", i+1)
		}
	}
	if got := s.Duplicates(); got != 3 {
		t.Errorf("Duplicates() = %d, want 3", got)
	}
	if got := s.Size(); got != 1 {
		t.Errorf("Size() = %d, want 1", got)
	}
}

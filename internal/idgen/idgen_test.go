package idgen

import "testing"

func TestNewIDsAreUnique(t *testing.T) {
	s := NewService()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := s.New()
		if id.Empty() {
			t.Fatal("got empty id")
		}
		if seen[id.String()] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id.String()] = true
	}
}

func TestNewNReturnsRequestedCount(t *testing.T) {
	s := NewService()
	ids := s.NewN(5)
	if len(ids) != 5 {
		t.Fatalf("NewN(5) returned %d ids", len(ids))
	}

	seen := make(map[string]bool)
	for _, id := range ids {
		seen[id.String()] = true
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 distinct ids, got %d", len(seen))
	}
}

package ids

import (
	"testing"
	"time"
)

func TestNewIsSortableAndValid(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	a := NewAt(base)
	b := NewAt(base.Add(time.Millisecond))
	if !(a < b) {
		t.Fatalf("expected %s < %s", a, b)
	}
	if !Valid(a) || !Valid(New()) {
		t.Fatalf("generated ids must parse")
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "42", "not-a-ulid-at-all-xxxxxxxxx"} {
		if Valid(s) {
			t.Fatalf("expected %q to be invalid", s)
		}
	}
}

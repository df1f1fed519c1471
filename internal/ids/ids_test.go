package ids

import (
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNewIsSortableAndParsable(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("expected monotonic ids, %s <= %s", next, prev)
		}
		if _, err := ulid.Parse(next); err != nil {
			t.Fatalf("parse %s: %v", next, err)
		}
		prev = next
	}
}

package helper

import "testing"

func TestHash8(t *testing.T) {
	a := Hash8("A@B.com ")
	b := Hash8("a@b.com")
	if a != b {
		t.Fatalf("expected normalized hashes to match: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("want 16 hex chars, got %d", len(a))
	}
	if Hash8("c@d.com") == a {
		t.Fatal("different inputs collided")
	}
}

package canonicalize

import "testing"

func TestDigest_StableAcrossKeyOrder(t *testing.T) {
	v1 := map[string]interface{}{"a": 1, "b": 2}
	v2 := map[string]interface{}{"b": 2, "a": 1}

	d1, err := Digest(v1)
	if err != nil {
		t.Fatalf("digest v1: %v", err)
	}
	d2, err := Digest(v2)
	if err != nil {
		t.Fatalf("digest v2: %v", err)
	}
	if d1 != d2 {
		t.Fatalf("expected stable digest regardless of key order, got %q vs %q", d1, d2)
	}
}

func TestDigest_DiffersOnContentChange(t *testing.T) {
	d1, err := Digest(map[string]interface{}{"rules": "a"})
	if err != nil {
		t.Fatal(err)
	}
	d2, err := Digest(map[string]interface{}{"rules": "b"})
	if err != nil {
		t.Fatal(err)
	}
	if d1 == d2 {
		t.Fatal("expected differing content to produce differing digests")
	}
}

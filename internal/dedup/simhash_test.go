package dedup

import "testing"

func TestSimHashDeterministic(t *testing.T) {
	a := SimHash("The API endpoint is /api/users")
	b := SimHash("The API endpoint is /api/users")
	if a != b {
		t.Fatalf("expected identical hashes, got %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("expected 16 hex chars, got %d (%s)", len(a), a)
	}
}

func TestSimHashWhitespaceInsensitive(t *testing.T) {
	a := SimHash("The API   endpoint is /api/users")
	b := SimHash("The API endpoint is /api/users")
	if a != b {
		t.Fatalf("whitespace-only change should not alter hash: %s vs %s", a, b)
	}
}

func TestSimHashEmptyContent(t *testing.T) {
	h := SimHash("")
	if h != "0000000000000000" {
		t.Fatalf("expected zero hash for empty content, got %s", h)
	}
	h2 := SimHash("a an is to")
	if h2 != "0000000000000000" {
		t.Fatalf("expected zero hash when no tokens survive length filter, got %s", h2)
	}
}

func TestHammingDistanceSymmetric(t *testing.T) {
	a := SimHash("The quick brown fox jumps over the lazy dog")
	b := SimHash("A completely different sentence about something else entirely")
	if HammingDistance(a, b) != HammingDistance(b, a) {
		t.Fatal("hamming distance must be symmetric")
	}
}

func TestHammingDistanceZeroIsAlwaysDuplicate(t *testing.T) {
	h := SimHash("identical content here")
	if !IsDuplicate(h, h, 0) {
		t.Fatal("identical hash must be a duplicate at any threshold")
	}
}

func TestIsDuplicateThreshold(t *testing.T) {
	a := "0000000000000000"
	b := "0000000000000007" // distance 3
	if !IsDuplicate(a, b, DefaultDuplicateThreshold) {
		t.Fatal("distance 3 should be a duplicate at default threshold")
	}
	c := "000000000000000f" // distance 4
	if IsDuplicate(a, c, DefaultDuplicateThreshold) {
		t.Fatal("distance 4 should not be a duplicate at default threshold")
	}
}

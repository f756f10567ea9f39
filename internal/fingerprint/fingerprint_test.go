package fingerprint

import "testing"

func TestHash64Deterministic(t *testing.T) {
	a := Hash64String("https://example.com/a")
	b := Hash64String("https://example.com/a")
	if a != b {
		t.Fatalf("expected same fingerprint for identical input, got %d != %d", a, b)
	}
}

func TestHash64DiffersAcrossInputs(t *testing.T) {
	a := Hash64String("https://example.com/a")
	b := Hash64String("https://example.com/b")
	if a == b {
		t.Fatalf("expected different fingerprints for different URLs")
	}
}

func TestHash64BytesMatchesString(t *testing.T) {
	s := "https://example.com/a"
	if Hash64([]byte(s)) != Hash64String(s) {
		t.Fatalf("Hash64 and Hash64String disagree")
	}
}

package pdfbridge

import "testing"

func TestDigest(t *testing.T) {
	data := []byte("%PDF-1.7 minimal")
	tests := []struct {
		alg int
		len int
	}{
		{AlgXXHash3, 32},
		{AlgFNV1a, 16},
		{AlgBlake2b, 64},
	}
	for _, tt := range tests {
		got := digest(data, tt.alg)
		if len(got) != tt.len {
			t.Errorf("alg %d: len = %d, want %d", tt.alg, len(got), tt.len)
		}
		if got != digest(data, tt.alg) {
			t.Errorf("alg %d: not deterministic", tt.alg)
		}
		if got == digest([]byte("%PDF-1.7 minimal!"), tt.alg) {
			t.Errorf("alg %d: different input, same digest", tt.alg)
		}
	}
	if digest(data, 0) != "" {
		t.Error("unknown algorithm produced a digest")
	}
}

func TestDigestKnownFNV(t *testing.T) {
	// FNV-1a 64 of the empty input is the offset basis.
	if got := digest(nil, AlgFNV1a); got != "cbf29ce484222325" {
		t.Errorf("digest(nil) = %s", got)
	}
}

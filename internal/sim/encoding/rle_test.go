package encoding

import (
	"testing"

	"voxelstore.ai/internal/sim/world/terrain/section"
)

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]section.BlockID, 0, 200)
	in = append(in, 1, 1, 1, 2, 2, 3)
	for i := 0; i < 50; i++ {
		in = append(in, 7)
	}
	in = append(in, 9, 1<<30, 1<<30, 10)

	out, err := DecodeRLE(EncodeRLE(in), 0)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRLE_Limits(t *testing.T) {
	enc := EncodeRLE(make([]section.BlockID, section.Volume))
	if _, err := DecodeRLE(enc, section.Volume); err != nil {
		t.Fatalf("DecodeRLE at limit: %v", err)
	}
	if _, err := DecodeRLE(enc, section.Volume-1); err == nil {
		t.Fatalf("expected error past the limit")
	}
	if _, err := DecodeRLE("!!", 0); err == nil {
		t.Fatalf("expected error for bad base64")
	}
	if _, err := DecodeRLE("gA==", 0); err == nil {
		t.Fatalf("expected error for truncated varint")
	}
}

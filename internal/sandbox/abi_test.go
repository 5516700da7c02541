package sandbox

import "testing"

func TestPackUnpackPtrLenRoundTrip(t *testing.T) {
	t.Parallel()
	cases := []struct {
		ptr, length uint32
	}{
		{0, 0},
		{1, 1},
		{4096, 128},
		{0xFFFFFFFF, 0xFFFFFFFF},
		{0x12345678, 0x9abcdef0},
	}
	for _, c := range cases {
		packed := packPtrLen(c.ptr, c.length)
		gotPtr, gotLen := unpackPtrLen(packed)
		if gotPtr != c.ptr || gotLen != c.length {
			t.Fatalf("packPtrLen(%d, %d) round trip = (%d, %d)", c.ptr, c.length, gotPtr, gotLen)
		}
	}
}

func TestPackPtrLenLayout(t *testing.T) {
	t.Parallel()
	// ptr occupies the high 32 bits, length the low 32 bits.
	packed := packPtrLen(1, 0)
	if packed != uint64(1)<<32 {
		t.Fatalf("packPtrLen(1, 0) = %#x, want %#x", packed, uint64(1)<<32)
	}
	packed = packPtrLen(0, 1)
	if packed != 1 {
		t.Fatalf("packPtrLen(0, 1) = %#x, want 1", packed)
	}
}

package mathx

import "testing"

func TestFieldSetGet(t *testing.T) {
	f := Field{Shift: 16, Width: 7}
	if f.Mask() != 0x007F0000 {
		t.Fatalf("mask=%#x", f.Mask())
	}
	w := f.Set(0xFFFFFFFF, 0x12)
	if f.Get(w) != 0x12 {
		t.Fatalf("get=%#x", f.Get(w))
	}
	if w&^f.Mask() != 0xFFFFFFFF&^f.Mask() {
		t.Fatal("neighbouring bits were disturbed")
	}
	if !f.Fits(127) || f.Fits(128) {
		t.Fatal("fits bounds wrong")
	}
	if Bit(31).Flag(0, true) != 0x80000000 {
		t.Fatal("bit 31 flag")
	}
	full := Field{Shift: 0, Width: 32}
	if full.Mask() != 0xFFFFFFFF {
		t.Fatal("32-bit field mask")
	}
}

func TestAlignHelpers(t *testing.T) {
	cases := []struct {
		v, a, up uint32
		aligned  bool
	}{
		{0, 4, 0, true},
		{1, 4, 4, false},
		{4, 4, 4, true},
		{5, 8, 8, false},
		{0x1001, 2, 0x1002, false},
	}
	for _, c := range cases {
		if got := AlignUp(c.v, c.a); got != c.up {
			t.Fatalf("AlignUp(%d,%d)=%d want %d", c.v, c.a, got, c.up)
		}
		if got := Aligned(c.v, c.a); got != c.aligned {
			t.Fatalf("Aligned(%d,%d)=%v", c.v, c.a, got)
		}
	}
	if n, ok := Log2(uint32(4)); !ok || n != 2 {
		t.Fatalf("Log2(4)=%d,%v", n, ok)
	}
	if _, ok := Log2(uint32(3)); ok {
		t.Fatal("Log2(3) should fail")
	}
	if CeilDiv(uint32(5), 2) != 3 || CeilDiv(uint32(5), 0) != 0 {
		t.Fatal("CeilDiv")
	}
	if Clamp(10, 0, 5) != 5 || Clamp(-1, 5, 0) != 0 || !Between(3, 5, 1) {
		t.Fatal("Clamp/Between")
	}
}

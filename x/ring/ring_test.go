package ring

import (
	"testing"
)

func TestOrderAcrossWrap(t *testing.T) {
	r := New(64)
	const N = 2000
	src := make([]byte, N)
	for i := range src {
		src[i] = byte(i)
	}

	// Producer accepts up to 7 bytes per step, consumer reads up to 17,
	// forcing frequent wraps with split copies.
	p := src
	dst := make([]byte, 0, N)
	for len(dst) < N {
		if len(p) > 0 {
			step := 7
			if step > len(p) {
				step = len(p)
			}
			p = p[r.Write(p[:step]):]
		}
		var tmp [17]byte
		n := r.Read(tmp[:])
		dst = append(dst, tmp[:n]...)
	}
	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("mismatch at %d: got=%d want=%d", i, dst[i], src[i])
		}
	}
}

func TestFullAndEmpty(t *testing.T) {
	r := New(4)
	if n := r.Write([]byte{1, 2, 3, 4, 5}); n != 4 {
		t.Fatalf("write into empty ring of 4 -> %d", n)
	}
	if r.Space() != 0 || r.Available() != 4 {
		t.Fatalf("space=%d available=%d", r.Space(), r.Available())
	}
	if r.Push(9) {
		t.Fatal("push into a full ring should fail")
	}
	for want := byte(1); want <= 4; want++ {
		b, ok := r.Pop()
		if !ok || b != want {
			t.Fatalf("pop -> %d,%v want %d", b, ok, want)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Fatal("pop from an empty ring should fail")
	}
}

func TestWrapSplitsWrites(t *testing.T) {
	r := New(8)
	r.Write([]byte{0, 0, 0, 0, 0, 0})
	r.Read(make([]byte, 6))
	if n := r.Write([]byte{1, 2, 3, 4, 5}); n != 5 {
		t.Fatalf("write across the end -> %d", n)
	}
	got := make([]byte, 8)
	if n := r.Read(got); n != 5 || string(got[:5]) != "\x01\x02\x03\x04\x05" {
		t.Fatalf("read -> %d %v", n, got[:n])
	}
	if r.Space() != r.Cap() {
		t.Fatalf("space=%d after draining", r.Space())
	}
}

func TestResetDropsUnread(t *testing.T) {
	r := New(8)
	r.Write([]byte{1, 2, 3})
	r.Reset()
	if r.Available() != 0 || r.Space() != 8 {
		t.Fatalf("after reset: available=%d space=%d", r.Available(), r.Space())
	}
}

func TestNewRejectsOddSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for a non power-of-two size")
		}
	}()
	New(6)
}

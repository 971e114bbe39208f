package sim

import (
	"sync"

	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/x/mathx"
)

// Device is a span of the simulated address space. dma.Arena satisfies it,
// so descriptor arenas can be mapped as they are.
type Device interface {
	Span() (base, size uint32)
	Read(addr uint32, w dma.Width) (uint32, bool)
	Write(addr uint32, w dma.Width, v uint32) bool
}

// RAM is plain little-endian memory.
type RAM struct {
	mu   sync.Mutex
	base uint32
	mem  []byte
}

// NewRAM returns size zeroed bytes at base.
func NewRAM(base, size uint32) *RAM {
	return &RAM{base: base, mem: make([]byte, size)}
}

func (r *RAM) Span() (base, size uint32) { return r.base, uint32(len(r.mem)) }

func (r *RAM) within(addr, n uint32) bool {
	return addr >= r.base && uint64(addr-r.base)+uint64(n) <= uint64(len(r.mem))
}

func (r *RAM) Read(addr uint32, w dma.Width) (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.within(addr, uint32(w)) || !mathx.Aligned(addr, uint32(w)) {
		return 0, false
	}
	var v uint32
	off := addr - r.base
	for i := uint32(0); i < uint32(w); i++ {
		v |= uint32(r.mem[off+i]) << (8 * i)
	}
	return v, true
}

func (r *RAM) Write(addr uint32, w dma.Width, v uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.within(addr, uint32(w)) || !mathx.Aligned(addr, uint32(w)) {
		return false
	}
	off := addr - r.base
	for i := uint32(0); i < uint32(w); i++ {
		r.mem[off+i] = byte(v >> (8 * i))
	}
	return true
}

// Load copies b to addr.
func (r *RAM) Load(addr uint32, b []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.within(addr, uint32(len(b))) {
		return errcode.New(errcode.InvalidParams, "sim.ram", "load outside memory")
	}
	copy(r.mem[addr-r.base:], b)
	return nil
}

// Bytes returns a copy of n bytes at addr.
func (r *RAM) Bytes(addr, n uint32) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.within(addr, n) {
		return nil, errcode.New(errcode.InvalidParams, "sim.ram", "read outside memory")
	}
	out := make([]byte, n)
	copy(out, r.mem[addr-r.base:])
	return out, nil
}

// Uint16s returns n little-endian half-words at addr.
func (r *RAM) Uint16s(addr uint32, n int) ([]uint16, error) {
	b, err := r.Bytes(addr, uint32(n)*2)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, n)
	for i := range out {
		out[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return out, nil
}

// Uint32s returns n little-endian words at addr.
func (r *RAM) Uint32s(addr uint32, n int) ([]uint32, error) {
	b, err := r.Bytes(addr, uint32(n)*4)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(b[4*i]) | uint32(b[4*i+1])<<8 | uint32(b[4*i+2])<<16 | uint32(b[4*i+3])<<24
	}
	return out, nil
}

func overlaps(a, b Device) bool {
	ab, as := a.Span()
	bb, bs := b.Span()
	return uint64(ab) < uint64(bb)+uint64(bs) && uint64(bb) < uint64(ab)+uint64(as)
}

func covers(d Device, addr, n uint32) bool {
	base, size := d.Span()
	return addr >= base && uint64(addr)+uint64(n) <= uint64(base)+uint64(size)
}

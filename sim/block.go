package sim

import (
	"sort"
	"sync"

	"lpbam-go/dma"
	"lpbam-go/periph"
	"lpbam-go/x/mathx"
)

// RegWrite is one logged register write.
type RegWrite struct {
	Off   uint32
	Value uint32
	Width dma.Width
}

// ReadHook produces the value of a register read. It runs without the
// block lock, so it may call Reg and Set.
type ReadHook func(w dma.Width) uint32

// WriteHook observes a register write after the value is stored.
type WriteHook func(v uint32, w dma.Width)

// RegisterBlock is a generic peripheral register file. Every write is
// logged; hooks give individual registers behaviour.
type RegisterBlock struct {
	mu     sync.Mutex
	name   string
	base   uint32
	size   uint32
	regs   map[uint32]uint32
	log    []RegWrite
	reads  map[uint32]ReadHook
	writes map[uint32]WriteHook
}

// NewRegisterBlock returns an all-zero block of size bytes at base.
func NewRegisterBlock(name string, base, size uint32) *RegisterBlock {
	return &RegisterBlock{
		name:   name,
		base:   base,
		size:   size,
		regs:   map[uint32]uint32{},
		reads:  map[uint32]ReadHook{},
		writes: map[uint32]WriteHook{},
	}
}

// NewPeripheral returns a block at inst's register address.
func NewPeripheral(inst periph.Instance, size uint32) *RegisterBlock {
	return NewRegisterBlock(inst.String(), inst.Base(), size)
}

func (b *RegisterBlock) Name() string              { return b.name }
func (b *RegisterBlock) Span() (base, size uint32) { return b.base, b.size }

// OnRead installs h for reads of the register at off.
func (b *RegisterBlock) OnRead(off uint32, h ReadHook) {
	b.mu.Lock()
	b.reads[off] = h
	b.mu.Unlock()
}

// OnWrite installs h for writes of the register at off.
func (b *RegisterBlock) OnWrite(off uint32, h WriteHook) {
	b.mu.Lock()
	b.writes[off] = h
	b.mu.Unlock()
}

// Reg returns the stored word at off.
func (b *RegisterBlock) Reg(off uint32) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.regs[off&^3]
}

// Set stores v at off without logging or hooks.
func (b *RegisterBlock) Set(off, v uint32) {
	b.mu.Lock()
	b.regs[off&^3] = v
	b.mu.Unlock()
}

// Writes returns the write log in order.
func (b *RegisterBlock) Writes() []RegWrite {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]RegWrite(nil), b.log...)
}

// WritesTo returns the values written to the register at off, in order.
func (b *RegisterBlock) WritesTo(off uint32) []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []uint32
	for _, w := range b.log {
		if w.Off == off {
			out = append(out, w.Value)
		}
	}
	return out
}

// Touched returns the offsets written at least once, ascending.
func (b *RegisterBlock) Touched() []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := map[uint32]bool{}
	var out []uint32
	for _, w := range b.log {
		if !seen[w.Off] {
			seen[w.Off] = true
			out = append(out, w.Off)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func widthMask(w dma.Width) uint32 {
	if w == dma.Word32 {
		return 0xFFFF_FFFF
	}
	return 1<<(8*uint32(w)) - 1
}

func (b *RegisterBlock) valid(addr uint32, w dma.Width) bool {
	return covers(b, addr, uint32(w)) && mathx.Aligned(addr, uint32(w))
}

func (b *RegisterBlock) Read(addr uint32, w dma.Width) (uint32, bool) {
	if !b.valid(addr, w) {
		return 0, false
	}
	off := addr - b.base
	b.mu.Lock()
	h := b.reads[off]
	word := b.regs[off&^3]
	b.mu.Unlock()
	if h != nil {
		return h(w) & widthMask(w), true
	}
	return (word >> (8 * (off & 3))) & widthMask(w), true
}

func (b *RegisterBlock) Write(addr uint32, w dma.Width, v uint32) bool {
	if !b.valid(addr, w) {
		return false
	}
	off := addr - b.base
	shift := 8 * (off & 3)
	mask := widthMask(w) << shift
	v &= widthMask(w)

	b.mu.Lock()
	word := off &^ 3
	b.regs[word] = (b.regs[word] &^ mask) | (v << shift)
	b.log = append(b.log, RegWrite{Off: off, Value: v, Width: w})
	h := b.writes[off]
	b.mu.Unlock()
	if h != nil {
		h(v, w)
	}
	return true
}

package dma

import (
	"encoding/binary"

	"lpbam-go/errcode"
	"lpbam-go/x/mathx"
)

// NodeRef is a stable handle to a node slot inside an arena.
type NodeRef struct {
	arena *Arena
	off   uint32
}

// IsZero reports whether r refers to no slot.
func (r NodeRef) IsZero() bool { return r.arena == nil }

// Offset returns the slot offset from the arena base.
func (r NodeRef) Offset() uint32 { return r.off }

// Region is a span of engine-visible memory.
type Region struct {
	Addr uint32
	Size uint32
}

// End returns the first address past the region.
func (r Region) End() uint32 { return r.Addr + r.Size }

// Arena is the memory block holding descriptor nodes, register-content
// words and optionally data buffers. Every node in an arena shares the same
// upper 16 address bits, which is what the channel CLBAR register supplies.
//
// The arena is single-threaded build-time state; once a queue is linked to
// a channel the engine owns the memory until it is unlinked.
type Arena struct {
	base  uint32
	mem   []uint32
	next  uint32
	slots map[uint32]NodeType
	owner map[uint32]*Queue
	pins  int
}

// NewArena returns an arena of size bytes at engine address base.
func NewArena(base, size uint32) (*Arena, error) {
	const op = "dma.arena"
	switch {
	case base == 0:
		return nil, errcode.New(errcode.InvalidParams, op, "null base")
	case !mathx.Aligned(base, 4) || !mathx.Aligned(size, 4):
		return nil, errcode.New(errcode.InvalidParams, op, "base and size must be word aligned")
	case size == 0:
		return nil, errcode.New(errcode.InvalidParams, op, "zero size")
	case uint64(base&0xFFFF)+uint64(size) > 0x1_0000:
		return nil, errcode.New(errcode.InvalidParams, op, "arena crosses a 64 KiB link window")
	}
	return &Arena{
		base:  base,
		mem:   make([]uint32, size/4),
		slots: map[uint32]NodeType{},
		owner: map[uint32]*Queue{},
	}, nil
}

// Base returns the engine address of the first byte.
func (a *Arena) Base() uint32 { return a.base }

// Size returns the arena size in bytes.
func (a *Arena) Size() uint32 { return uint32(len(a.mem)) * 4 }

// Used returns the number of bytes handed out so far.
func (a *Arena) Used() uint32 { return a.next }

// LinkBase is the CLBAR value for queues in this arena.
func (a *Arena) LinkBase() uint32 { return a.base & CLBARLBAMask }

// Span reports the address range covered by the arena.
func (a *Arena) Span() (base, size uint32) { return a.base, a.Size() }

// Addr returns the engine address of a node slot.
func (a *Arena) Addr(r NodeRef) uint32 { return a.base + r.off }

// Ref returns the handle of the node slot at addr.
func (a *Arena) Ref(addr uint32) (NodeRef, bool) {
	if addr < a.base {
		return NodeRef{}, false
	}
	off := addr - a.base
	if _, ok := a.slots[off]; !ok {
		return NodeRef{}, false
	}
	return NodeRef{arena: a, off: off}, true
}

// Contains reports whether [addr, addr+n) lies inside the arena.
func (a *Arena) Contains(addr, n uint32) bool {
	return addr >= a.base && uint64(addr)+uint64(n) <= uint64(a.base)+uint64(a.Size())
}

func (a *Arena) take(size, align uint32) (uint32, bool) {
	off := mathx.AlignUp(a.base+a.next, align) - a.base
	if uint64(off)+uint64(size) > uint64(a.Size()) {
		return 0, false
	}
	a.next = off + size
	return off, true
}

// Alloc carves a data buffer out of the arena.
func (a *Arena) Alloc(size, align uint32) (Region, error) {
	if a.pins > 0 {
		return Region{}, errcode.New(errcode.StateViolation, "dma.alloc", "arena is bound to hardware")
	}
	if align == 0 {
		align = 4
	}
	if size == 0 || !mathx.IsPow2(align) {
		return Region{}, errcode.New(errcode.InvalidParams, "dma.alloc", "size or alignment")
	}
	off, ok := a.take(size, align)
	if !ok {
		return Region{}, errcode.New(errcode.InvalidParams, "dma.alloc", "arena exhausted")
	}
	return Region{Addr: a.base + off, Size: size}, nil
}

// NewBundle carves a descriptor bundle: nodes slots of type t followed by
// words register-content words.
func (a *Arena) NewBundle(t NodeType, nodes, words int) (*Bundle, error) {
	const op = "dma.bundle"
	if a.pins > 0 {
		return nil, errcode.New(errcode.StateViolation, op, "arena is bound to hardware")
	}
	if !t.Valid() || nodes < 0 || words < 0 || nodes+words == 0 {
		return nil, errcode.New(errcode.InvalidParams, op, "bundle shape")
	}
	size := uint32(nodes)*t.Size() + uint32(words)*4
	off, ok := a.take(size, 4)
	if !ok {
		return nil, errcode.New(errcode.InvalidParams, op, "arena exhausted")
	}
	b := &Bundle{arena: a, typ: t, words: off + uint32(nodes)*t.Size(), nwords: words}
	for i := 0; i < nodes; i++ {
		r := NodeRef{arena: a, off: off + uint32(i)*t.Size()}
		a.slots[r.off] = t
		b.nodes = append(b.nodes, r)
	}
	return b, nil
}

// Linked reports whether slot r has been appended to a queue.
func (a *Arena) Linked(r NodeRef) bool { return r.arena == a && a.owner[r.off] != nil }

// Pinned reports whether a linked queue currently holds the arena.
func (a *Arena) Pinned() bool { return a.pins > 0 }

// Reset releases every slot for reuse. It fails while any queue built on
// the arena is linked to a channel.
func (a *Arena) Reset() error {
	if a.pins > 0 {
		return errcode.New(errcode.StateViolation, "dma.reset", "arena is bound to hardware")
	}
	clear(a.mem)
	clear(a.slots)
	for _, q := range a.owner {
		q.detach()
	}
	clear(a.owner)
	a.next = 0
	return nil
}

// Node reads the node image stored at r.
func (a *Arena) Node(r NodeRef) Node {
	t := a.slots[r.off]
	n := Node{Type: t}
	i := r.off / 4
	copy(n.Words[:t.Words()], a.mem[i:i+uint32(t.Words())])
	return n
}

func (a *Arena) putNode(r NodeRef, n Node) {
	i := r.off / 4
	copy(a.mem[i:i+uint32(n.Type.Words())], n.Words[:n.Type.Words()])
}

func (a *Arena) setWord(off, v uint32) { a.mem[off/4] = v }

// Read returns the value of width w at addr.
func (a *Arena) Read(addr uint32, w Width) (uint32, bool) {
	if !a.Contains(addr, uint32(w)) || !mathx.Aligned(addr, uint32(w)) {
		return 0, false
	}
	word := a.mem[(addr-a.base)/4]
	shift := (addr & 3) * 8
	switch w {
	case Byte:
		return (word >> shift) & 0xFF, true
	case HalfWord:
		return (word >> shift) & 0xFFFF, true
	case Word32:
		return word, true
	}
	return 0, false
}

// Write stores the low w bytes of v at addr.
func (a *Arena) Write(addr uint32, w Width, v uint32) bool {
	if !a.Contains(addr, uint32(w)) || !mathx.Aligned(addr, uint32(w)) {
		return false
	}
	i := (addr - a.base) / 4
	shift := (addr & 3) * 8
	var mask uint32
	switch w {
	case Byte:
		mask = 0xFF << shift
	case HalfWord:
		mask = 0xFFFF << shift
	case Word32:
		mask = 0xFFFF_FFFF
	default:
		return false
	}
	a.mem[i] = (a.mem[i] &^ mask) | ((v << shift) & mask)
	return true
}

// Read32 reads a word at addr.
func (a *Arena) Read32(addr uint32) (uint32, bool) { return a.Read(addr, Word32) }

// Write32 writes a word at addr.
func (a *Arena) Write32(addr, v uint32) bool { return a.Write(addr, Word32, v) }

// Bytes returns the little-endian image of the used part of the arena.
func (a *Arena) Bytes() []byte {
	b := make([]byte, a.next)
	for i := uint32(0); i+4 <= a.next; i += 4 {
		binary.LittleEndian.PutUint32(b[i:], a.mem[i/4])
	}
	return b
}

// Bundle is a caller-owned set of node slots plus register-content words
// for one logical operation. It must stay untouched while any of its nodes
// is reachable from a queue linked to hardware.
type Bundle struct {
	arena  *Arena
	typ    NodeType
	nodes  []NodeRef
	words  uint32 // offset of the first word
	nwords int
}

// Arena returns the arena the bundle lives in.
func (b *Bundle) Arena() *Arena { return b.arena }

// Type returns the node type of every slot.
func (b *Bundle) Type() NodeType { return b.typ }

// NodeCount returns the number of node slots.
func (b *Bundle) NodeCount() int { return len(b.nodes) }

// WordCount returns the number of register-content words.
func (b *Bundle) WordCount() int { return b.nwords }

// Node returns the handle of slot i.
func (b *Bundle) Node(i int) NodeRef { return b.nodes[i] }

// Nodes returns the handles of every slot.
func (b *Bundle) Nodes() []NodeRef { return append([]NodeRef(nil), b.nodes...) }

// WordAddr returns the engine address of word i.
func (b *Bundle) WordAddr(i int) uint32 { return b.arena.base + b.words + uint32(i)*4 }

// Word returns the stored value of word i.
func (b *Bundle) Word(i int) uint32 { return b.arena.mem[(b.words+uint32(i)*4)/4] }

// SetWord stores a register-content word.
func (b *Bundle) SetWord(i int, v uint32) error {
	if i < 0 || i >= b.nwords {
		return errcode.New(errcode.InvalidParams, "dma.bundle", "word index out of range")
	}
	if b.arena.pins > 0 {
		return errcode.New(errcode.StateViolation, "dma.bundle", "arena is bound to hardware")
	}
	b.arena.setWord(b.words+uint32(i)*4, v)
	return nil
}

// PutNode stores a node image in slot i.
func (b *Bundle) PutNode(i int, n Node) error {
	if i < 0 || i >= len(b.nodes) {
		return errcode.New(errcode.InvalidParams, "dma.bundle", "node index out of range")
	}
	if n.Type != b.typ {
		return errcode.New(errcode.InvalidParams, "dma.bundle", "node type mismatch")
	}
	if b.arena.pins > 0 {
		return errcode.New(errcode.StateViolation, "dma.bundle", "arena is bound to hardware")
	}
	if b.arena.owner[b.nodes[i].off] != nil {
		return errcode.New(errcode.StateViolation, "dma.bundle", "slot already linked into a queue")
	}
	b.arena.putNode(b.nodes[i], n)
	return nil
}

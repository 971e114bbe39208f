package dma

import "lpbam-go/errcode"

// LinkWord returns the CLLR value that makes the engine load a node of type
// t stored at addr.
func LinkWord(t NodeType, addr uint32) uint32 {
	return CLLRLA.Set(t.UpdateBits(), (addr&0xFFFF)>>2)
}

// LinkTarget resolves a CLLR value against the link base. ok is false for
// the terminal link word.
func LinkTarget(linkBase, cllr uint32) (addr uint32, ok bool) {
	if cllr&CLLRLA.Mask() == 0 && !CLLRULL.On(cllr) {
		return 0, false
	}
	return (linkBase & CLBARLBAMask) | (cllr & CLLRLA.Mask()), true
}

// Queue is an ordered chain of nodes in one arena. The tail's link word is
// terminal until the queue is closed into a cycle; after that the queue is
// sealed.
type Queue struct {
	arena    *Arena
	typ      NodeType
	head     NodeRef
	tail     NodeRef
	loop     NodeRef
	count    int
	circular bool
	bound    bool
}

// NewQueue returns an empty queue of nodes of type t stored in a.
func NewQueue(a *Arena, t NodeType) (*Queue, error) {
	if a == nil || !t.Valid() {
		return nil, errcode.New(errcode.InvalidParams, "dma.queue", "arena or node type")
	}
	return &Queue{arena: a, typ: t}, nil
}

func (q *Queue) Arena() *Arena    { return q.arena }
func (q *Queue) Type() NodeType   { return q.typ }
func (q *Queue) Head() NodeRef    { return q.head }
func (q *Queue) Tail() NodeRef    { return q.tail }
func (q *Queue) Len() int         { return q.count }
func (q *Queue) Circular() bool   { return q.circular }
func (q *Queue) Bound() bool      { return q.bound }
func (q *Queue) LinkBase() uint32 { return q.arena.LinkBase() }

// HeadAddr returns the engine address of the first node, 0 when empty.
func (q *Queue) HeadAddr() uint32 {
	if q.count == 0 {
		return 0
	}
	return q.arena.Addr(q.head)
}

// HeadLink returns the CLLR value a channel needs to start at the head.
func (q *Queue) HeadLink() uint32 {
	if q.count == 0 {
		return 0
	}
	return LinkWord(q.typ, q.HeadAddr())
}

// LoopTarget returns the node the tail links back to, if circular.
func (q *Queue) LoopTarget() (NodeRef, bool) { return q.loop, q.circular }

// Contains reports whether r has been appended to q.
func (q *Queue) Contains(r NodeRef) bool {
	return r.arena == q.arena && q.arena.owner[r.off] == q
}

func (q *Queue) mutable(op string) error {
	if q.bound {
		return errcode.New(errcode.StateViolation, op, "queue is bound to a channel")
	}
	if q.arena.Pinned() {
		return errcode.New(errcode.StateViolation, op, "arena is bound to hardware")
	}
	if q.circular {
		return errcode.New(errcode.StateViolation, op, "queue is closed into a cycle")
	}
	return nil
}

// Append links refs after the current tail, in order. The first append on an
// empty queue sets the head. Either every node is appended or none is.
func (q *Queue) Append(refs ...NodeRef) error {
	const op = "dma.append"
	if err := q.mutable(op); err != nil {
		return err
	}
	seen := make(map[uint32]bool, len(refs))
	for _, r := range refs {
		t, ok := q.arena.slots[r.off]
		switch {
		case r.arena != q.arena || !ok:
			return errcode.New(errcode.InvalidParams, op, "node is not a slot of this arena")
		case t != q.typ:
			return errcode.New(errcode.InvalidParams, op, "node type differs from queue type")
		case q.arena.owner[r.off] != nil || seen[r.off]:
			return errcode.New(errcode.InvalidParams, op, "node already belongs to a queue")
		}
		seen[r.off] = true
	}
	for _, r := range refs {
		q.link(r)
	}
	return nil
}

func (q *Queue) link(r NodeRef) {
	n := q.arena.Node(r)
	n.Set(WordCLLR, 0)
	q.arena.putNode(r, n)
	q.arena.owner[r.off] = q
	if q.count == 0 {
		q.head = r
	} else {
		q.setLink(q.tail, LinkWord(q.typ, q.arena.Addr(r)))
	}
	q.tail = r
	q.count++
}

func (q *Queue) setLink(r NodeRef, cllr uint32) {
	n := q.arena.Node(r)
	n.Set(WordCLLR, cllr)
	q.arena.putNode(r, n)
}

// MakeCircular links the tail back to the head. It is valid once, on a
// non-empty queue, and seals the queue against further appends.
func (q *Queue) MakeCircular() error {
	return q.MakeCircularFrom(q.head)
}

// MakeCircularFrom links the tail back to r, a node already in the queue.
// Nodes before r then form a one-shot prologue.
func (q *Queue) MakeCircularFrom(r NodeRef) error {
	const op = "dma.circular"
	if err := q.mutable(op); err != nil {
		return err
	}
	if q.count == 0 {
		return errcode.New(errcode.StateViolation, op, "queue is empty")
	}
	if !q.Contains(r) {
		return errcode.New(errcode.InvalidParams, op, "loop target is not in the queue")
	}
	q.setLink(q.tail, LinkWord(q.typ, q.arena.Addr(r)))
	q.loop = r
	q.circular = true
	return nil
}

// Nodes returns the queue members in link order, one pass around a cycle.
func (q *Queue) Nodes() []NodeRef {
	out := make([]NodeRef, 0, q.count)
	_ = Walk(q.arena, q.typ, q.LinkBase(), q.HeadAddr(), q.count, func(addr uint32, _ Node) bool {
		if r, ok := q.arena.Ref(addr); ok {
			out = append(out, r)
		}
		return true
	})
	return out
}

// Pin marks the queue as owned by hardware. Builders and appends are refused
// until Unpin; the arena cannot be reset meanwhile.
func (q *Queue) Pin() error {
	if q.bound {
		return errcode.New(errcode.StateViolation, "dma.pin", "queue already bound")
	}
	if q.count == 0 {
		return errcode.New(errcode.InvalidParams, "dma.pin", "queue is empty")
	}
	q.bound = true
	q.arena.pins++
	return nil
}

// Unpin returns ownership of the queue memory to software.
func (q *Queue) Unpin() {
	if !q.bound {
		return
	}
	q.bound = false
	q.arena.pins--
}

// detach forgets every node; used when the arena is reset.
func (q *Queue) detach() {
	*q = Queue{arena: q.arena, typ: q.typ}
}

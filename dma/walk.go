package dma

import "lpbam-go/errcode"

// Memory is read access to engine-visible words.
type Memory interface {
	Read32(addr uint32) (uint32, bool)
}

// ReadNode fetches a node of type t at addr the way the engine does.
func ReadNode(mem Memory, t NodeType, addr uint32) (Node, bool) {
	n := Node{Type: t}
	for i := 0; i < t.Words(); i++ {
		w, ok := mem.Read32(addr + uint32(i)*4)
		if !ok {
			return Node{}, false
		}
		n.Words[i] = w
	}
	return n, true
}

// Walk follows link words from the node at first, calling fn for each node
// visited, for at most max steps. It stops early on a terminal link or when
// fn returns false.
func Walk(mem Memory, t NodeType, linkBase, first uint32, max int, fn func(addr uint32, n Node) bool) error {
	addr := first
	for step := 0; step < max && addr != 0; step++ {
		n, ok := ReadNode(mem, t, addr)
		if !ok {
			return errcode.New(errcode.InvalidParams, "dma.walk", "link points outside memory")
		}
		if !fn(addr, n) {
			return nil
		}
		cllr := n.Link()
		next, ok := LinkTarget(linkBase, cllr)
		if !ok {
			return nil
		}
		if cllr&t.UpdateBits() != t.UpdateBits() {
			return errcode.New(errcode.InvalidParams, "dma.walk", "partial node update not supported")
		}
		addr = next
	}
	return nil
}

// CycleLength walks from first and returns the number of distinct nodes
// before the chain revisits one, and whether it revisited first itself.
// A linear chain returns its length and false.
func CycleLength(mem Memory, t NodeType, linkBase, first uint32, max int) (n int, toFirst bool, err error) {
	seen := map[uint32]bool{}
	var last uint32
	err = Walk(mem, t, linkBase, first, max+1, func(addr uint32, node Node) bool {
		if seen[addr] {
			return false
		}
		seen[addr] = true
		n++
		last = addr
		return true
	})
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	tail, _ := ReadNode(mem, t, last)
	next, ok := LinkTarget(linkBase, tail.Link())
	return n, ok && next == first, nil
}

package dma

import (
	"encoding/binary"

	"lpbam-go/errcode"
	"lpbam-go/periph"
	"lpbam-go/x/mathx"
)

// NodeType is the addressing mode a node is laid out for. Every node of a
// queue must share one type.
type NodeType uint8

const (
	NodeTypeNone NodeType = iota
	// LinearNode: CTR1, CTR2, CBR1, CSAR, CDAR, CLLR.
	LinearNode
	// TwoDimNode: CTR1, CTR2, CBR1, CSAR, CDAR, CTR3, CBR2, CLLR.
	TwoDimNode
)

func (t NodeType) String() string {
	switch t {
	case LinearNode:
		return "linear"
	case TwoDimNode:
		return "2d"
	default:
		return "none"
	}
}

// ParseNodeType resolves "linear" or "2d"; empty means linear.
func ParseNodeType(s string) (NodeType, bool) {
	switch s {
	case "", "linear":
		return LinearNode, true
	case "2d", "two_dim":
		return TwoDimNode, true
	}
	return NodeTypeNone, false
}

// Valid reports whether t is a concrete node type.
func (t NodeType) Valid() bool { return t == LinearNode || t == TwoDimNode }

// Words returns the number of register words in a node.
func (t NodeType) Words() int {
	switch t {
	case LinearNode:
		return 6
	case TwoDimNode:
		return 8
	}
	return 0
}

// Size returns the node size in bytes.
func (t NodeType) Size() uint32 { return uint32(t.Words()) * 4 }

// UpdateBits returns the CLLR update flags that load a whole node of type t.
func (t NodeType) UpdateBits() uint32 {
	var w uint32
	for _, f := range []mathx.Field{CLLRUT1, CLLRUT2, CLLRUB1, CLLRUSA, CLLRUDA, CLLRULL} {
		w = f.Flag(w, true)
	}
	if t == TwoDimNode {
		w = CLLRUT3.Flag(w, true)
		w = CLLRUB2.Flag(w, true)
	}
	return w
}

// Word names a register word of a node.
type Word uint8

const (
	WordCTR1 Word = iota
	WordCTR2
	WordCBR1
	WordCSAR
	WordCDAR
	WordCTR3
	WordCBR2
	WordCLLR
)

// WireOrder lists the words in the order the engine fetches them, paired
// with the CLLR update bit that requests each one.
var WireOrder = [...]struct {
	Word   Word
	Update mathx.Field
	Reg    uint32
}{
	{WordCTR1, CLLRUT1, RegCTR1},
	{WordCTR2, CLLRUT2, RegCTR2},
	{WordCBR1, CLLRUB1, RegCBR1},
	{WordCSAR, CLLRUSA, RegCSAR},
	{WordCDAR, CLLRUDA, RegCDAR},
	{WordCTR3, CLLRUT3, RegCTR3},
	{WordCBR2, CLLRUB2, RegCBR2},
	{WordCLLR, CLLRULL, RegCLLR},
}

// Index returns the position of w inside a node of type t.
func (t NodeType) Index(w Word) (int, bool) {
	switch t {
	case LinearNode:
		switch w {
		case WordCTR3, WordCBR2:
			return 0, false
		case WordCLLR:
			return 5, true
		}
		return int(w), true
	case TwoDimNode:
		return int(w), true
	}
	return 0, false
}

// Node is the register image of one descriptor.
type Node struct {
	Type  NodeType
	Words [8]uint32
}

// Get returns word w, 0 if the type has no such word.
func (n Node) Get(w Word) uint32 {
	if i, ok := n.Type.Index(w); ok {
		return n.Words[i]
	}
	return 0
}

// Set stores v in word w; words the type lacks are ignored.
func (n *Node) Set(w Word, v uint32) {
	if i, ok := n.Type.Index(w); ok {
		n.Words[i] = v
	}
}

// Link returns the CLLR word.
func (n Node) Link() uint32 { return n.Get(WordCLLR) }

// Image returns the used words in memory order.
func (n Node) Image() []uint32 {
	out := make([]uint32, n.Type.Words())
	copy(out, n.Words[:])
	return out
}

// Bytes returns the little-endian memory image of the node.
func (n Node) Bytes() []byte {
	b := make([]byte, n.Type.Size())
	for i, w := range n.Image() {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

// Width is a data width in bytes.
type Width uint8

const (
	Byte     Width = 1
	HalfWord Width = 2
	Word32   Width = 4
)

func (w Width) log2() (uint32, bool) {
	if w > Word32 {
		return 0, false
	}
	n, ok := mathx.Log2(uint8(w))
	return uint32(n), ok
}

// Port selects the allocated AHB port of a transfer side.
type Port uint8

const (
	Port0 Port = iota
	Port1
)

// CompleteEvent selects when the transfer-complete event fires (TCEM).
type CompleteEvent uint8

const (
	EventBlock CompleteEvent = iota
	EventRepeatedBlock
	EventNode
	EventLastNode
)

var eventNames = [...]string{
	EventBlock:         "block",
	EventRepeatedBlock: "repeated_block",
	EventNode:          "node",
	EventLastNode:      "last_node",
}

func (e CompleteEvent) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "unknown"
}

// ParseCompleteEvent resolves a complete event mode name; empty means block.
func ParseCompleteEvent(s string) (CompleteEvent, bool) {
	if s == "" {
		return EventBlock, true
	}
	for i, n := range eventNames {
		if n == s {
			return CompleteEvent(i), true
		}
	}
	return EventBlock, false
}

// Transfer is the semantic description of one node.
type Transfer struct {
	Src, Dst           uint32
	SrcWidth, DstWidth Width
	SrcInc, DstInc     bool
	// Size is the block size in source bytes (BNDT).
	Size uint32
	// Request is the hardware request line; periph.NoRequest paces the
	// transfer by software.
	Request periph.Request
	// DestRequest means the request comes from the destination peripheral.
	DestRequest        bool
	SrcPort, DstPort   Port
	SrcBurst, DstBurst uint8 // beats per burst, 0 or 1 for single
	CompleteEvent      CompleteEvent

	// 2D nodes only.
	BlockRepeat          uint16
	SrcOffset, DstOffset uint16
}

func invalid(msg string) error { return errcode.New(errcode.InvalidParams, "dma.encode", msg) }

// EncodeNode writes the register image of tr for a node of type t. The
// returned node has a terminal link word; the queue wires links on append.
func EncodeNode(t NodeType, tr Transfer) (Node, error) {
	if !t.Valid() {
		return Node{}, invalid("unknown node type")
	}
	sdw, ok := tr.SrcWidth.log2()
	if !ok {
		return Node{}, invalid("source width")
	}
	ddw, ok := tr.DstWidth.log2()
	if !ok {
		return Node{}, invalid("destination width")
	}
	switch {
	case tr.Src == 0 || tr.Dst == 0:
		return Node{}, invalid("null address")
	case tr.Size == 0:
		return Node{}, invalid("zero size")
	case !CBR1BNDT.Fits(tr.Size):
		return Node{}, invalid("size exceeds block field")
	case !mathx.Aligned(tr.Size, uint32(tr.SrcWidth)):
		return Node{}, invalid("size not a multiple of the source width")
	case !mathx.Aligned(tr.Src, uint32(tr.SrcWidth)) || !mathx.Aligned(tr.Dst, uint32(tr.DstWidth)):
		return Node{}, invalid("address not aligned to its width")
	case !tr.Request.Valid():
		return Node{}, invalid("request line")
	case tr.SrcBurst > 64 || tr.DstBurst > 64:
		return Node{}, invalid("burst length")
	case tr.CompleteEvent > EventLastNode:
		return Node{}, invalid("complete event mode")
	}
	if t == LinearNode && (tr.BlockRepeat != 0 || tr.SrcOffset != 0 || tr.DstOffset != 0) {
		return Node{}, invalid("2D fields on a linear node")
	}
	if !CBR1BRC.Fits(uint32(tr.BlockRepeat)) || !CTR3SAO.Fits(uint32(tr.SrcOffset)) || !CTR3DAO.Fits(uint32(tr.DstOffset)) {
		return Node{}, invalid("2D field out of range")
	}

	var ctr1 uint32
	ctr1 = CTR1SDW.Set(ctr1, sdw)
	ctr1 = CTR1SINC.Flag(ctr1, tr.SrcInc)
	ctr1 = CTR1SBL.Set(ctr1, burst(tr.SrcBurst))
	ctr1 = CTR1SAP.Flag(ctr1, tr.SrcPort == Port1)
	ctr1 = CTR1DDW.Set(ctr1, ddw)
	ctr1 = CTR1DINC.Flag(ctr1, tr.DstInc)
	ctr1 = CTR1DBL.Set(ctr1, burst(tr.DstBurst))
	ctr1 = CTR1DAP.Flag(ctr1, tr.DstPort == Port1)

	var ctr2 uint32
	if tr.Request == periph.NoRequest {
		ctr2 = CTR2SWREQ.Flag(ctr2, true)
	} else {
		ctr2 = CTR2REQSEL.Set(ctr2, uint32(tr.Request))
		ctr2 = CTR2DREQ.Flag(ctr2, tr.DestRequest)
	}
	ctr2 = CTR2TCEM.Set(ctr2, uint32(tr.CompleteEvent))

	cbr1 := CBR1BNDT.Set(0, tr.Size)
	cbr1 = CBR1BRC.Set(cbr1, uint32(tr.BlockRepeat))

	n := Node{Type: t}
	n.Set(WordCTR1, ctr1)
	n.Set(WordCTR2, ctr2)
	n.Set(WordCBR1, cbr1)
	n.Set(WordCSAR, tr.Src)
	n.Set(WordCDAR, tr.Dst)
	if t == TwoDimNode {
		n.Set(WordCTR3, CTR3DAO.Set(CTR3SAO.Set(0, uint32(tr.SrcOffset)), uint32(tr.DstOffset)))
	}
	return n, nil
}

// SBL_1/DBL_1 hold the burst length minus one.
func burst(beats uint8) uint32 {
	if beats <= 1 {
		return 0
	}
	return uint32(beats - 1)
}

// DecodeTransfer recovers the semantic fields of a node image.
func DecodeTransfer(n Node) Transfer {
	ctr1, ctr2, cbr1 := n.Get(WordCTR1), n.Get(WordCTR2), n.Get(WordCBR1)
	tr := Transfer{
		Src:           n.Get(WordCSAR),
		Dst:           n.Get(WordCDAR),
		SrcWidth:      Width(1 << CTR1SDW.Get(ctr1)),
		DstWidth:      Width(1 << CTR1DDW.Get(ctr1)),
		SrcInc:        CTR1SINC.On(ctr1),
		DstInc:        CTR1DINC.On(ctr1),
		Size:          CBR1BNDT.Get(cbr1),
		Request:       periph.NoRequest,
		SrcBurst:      uint8(CTR1SBL.Get(ctr1) + 1),
		DstBurst:      uint8(CTR1DBL.Get(ctr1) + 1),
		CompleteEvent: CompleteEvent(CTR2TCEM.Get(ctr2)),
		BlockRepeat:   uint16(CBR1BRC.Get(cbr1)),
	}
	if CTR1SAP.On(ctr1) {
		tr.SrcPort = Port1
	}
	if CTR1DAP.On(ctr1) {
		tr.DstPort = Port1
	}
	if !CTR2SWREQ.On(ctr2) {
		tr.Request = periph.Request(CTR2REQSEL.Get(ctr2))
		tr.DestRequest = CTR2DREQ.On(ctr2)
	}
	if n.Type == TwoDimNode {
		ctr3 := n.Get(WordCTR3)
		tr.SrcOffset = uint16(CTR3SAO.Get(ctr3))
		tr.DstOffset = uint16(CTR3DAO.Get(ctr3))
	}
	if tr.SrcBurst == 1 {
		tr.SrcBurst = 0
	}
	if tr.DstBurst == 1 {
		tr.DstBurst = 0
	}
	return tr
}

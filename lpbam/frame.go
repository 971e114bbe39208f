package lpbam

import (
	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/periph"
)

// Frame collects the node images and register-content words of one stage
// before they are committed.
type Frame struct {
	bundle   *dma.Bundle
	nodeBase int
	wordBase int
	maxNodes int
	maxWords int
	nodes    []dma.Node
	words    []uint32
}

func newFrame(b *dma.Bundle, nodeBase, nodes, wordBase, words int) *Frame {
	return &Frame{bundle: b, nodeBase: nodeBase, maxNodes: nodes, wordBase: wordBase, maxWords: words}
}

// NodeType returns the type of the nodes being staged.
func (f *Frame) NodeType() dma.NodeType { return f.bundle.Type() }

// Transfer stages one data node.
func (f *Frame) Transfer(tr dma.Transfer) error {
	if len(f.nodes) >= f.maxNodes {
		return errcode.New(errcode.Error, "lpbam.frame", "more nodes than the layout declares")
	}
	n, err := dma.EncodeNode(f.bundle.Type(), tr)
	if err != nil {
		return err
	}
	f.nodes = append(f.nodes, n)
	return nil
}

// WriteRegisters stages values as register-content words and one node that
// copies them into the contiguous register run starting at reg.
func (f *Frame) WriteRegisters(reg uint32, values ...uint32) error {
	if len(values) == 0 {
		return errcode.New(errcode.InvalidParams, "lpbam.frame", "no register values")
	}
	if len(f.words)+len(values) > f.maxWords {
		return errcode.New(errcode.Error, "lpbam.frame", "more words than the layout declares")
	}
	first := len(f.words)
	f.words = append(f.words, values...)
	err := f.Transfer(dma.Transfer{
		Src:      f.bundle.WordAddr(f.wordBase + first),
		Dst:      reg,
		SrcWidth: dma.Word32,
		DstWidth: dma.Word32,
		SrcInc:   true,
		DstInc:   len(values) > 1,
		Size:     uint32(len(values)) * 4,
		Request:  periph.NoRequest,
	})
	if err != nil {
		f.words = f.words[:first]
	}
	return err
}

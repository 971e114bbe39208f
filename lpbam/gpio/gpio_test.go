package gpio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/lpbam"
	"lpbam-go/lpbam/lpbamtest"
	"lpbam-go/periph"
)

var buf = dma.Region{Addr: lpbamtest.BufferBase, Size: 32}

func TestWritePins(t *testing.T) {
	op := &WritePins{Inst: periph.LPGPIO1, Outputs: 0x0003, Buffer: buf}
	q, nodes := lpbamtest.Build(t, op, lpbam.Full)
	require.Len(t, nodes, 2)
	assert.Equal(t, []uint32{3}, lpbamtest.Words(t, q.Arena(), nodes[0]))
	tr := dma.DecodeTransfer(nodes[1])
	assert.Equal(t, periph.LPGPIO1.Reg(regBSRR), tr.Dst)
	assert.True(t, tr.SrcInc)
	lpbamtest.RequireFullEqualsConfigData(t, op)

	assert.Equal(t, uint32(0x0002_0001), BSRR(1, 2))
}

func TestReadPins(t *testing.T) {
	op := &ReadPins{Inst: periph.LPGPIO1, Buffer: buf}
	_, nodes := lpbamtest.Build(t, op, lpbam.Data)
	require.Len(t, nodes, 1)
	tr := dma.DecodeTransfer(nodes[0])
	assert.Equal(t, periph.LPGPIO1.Reg(regIDR), tr.Src)
	assert.True(t, tr.DstInc)
	assert.False(t, tr.SrcInc)
}

func TestRejects(t *testing.T) {
	for _, op := range []lpbam.Operation{
		&WritePins{Inst: periph.LPGPIO1, Buffer: buf},
		&WritePins{Inst: periph.SPI3, Outputs: 1, Buffer: buf},
		&ReadPins{Inst: periph.LPGPIO1, Buffer: dma.Region{Addr: lpbamtest.BufferBase, Size: 2}},
	} {
		a := lpbamtest.Arena(t)
		q, _ := dma.NewQueue(a, dma.LinearNode)
		b, _ := lpbam.NewBundle(a, dma.LinearNode, op)
		assert.Equal(t, errcode.InvalidParams, errcode.Of(lpbam.Build(q, b, op, lpbam.Full)), op.Name())
	}

	f, ok := lpbam.Lookup("gpio.write_pins")
	require.True(t, ok)
	op, err := f(lpbam.Params{"outputs": "0x10", "buffer": buf})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x10), op.(*WritePins).Outputs)
}

package spi

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

func cfg() Config {
	return Config{Inst: periph.SPI3, DataBits: 8, BaudDiv: 3, CPOL: true, Buffer: dma.Region{Addr: lpbamtest.BufferBase, Size: 12}}
}

func TestTransmitSequence(t *testing.T) {
	q, nodes := lpbamtest.Build(t, &Transmit{cfg()}, lpbam.Full)
	require.Len(t, nodes, 6)
	a := q.Arena()

	assert.Equal(t, []uint32{0}, lpbamtest.Words(t, a, nodes[0]), "SPE cleared first")
	cfgs := lpbamtest.Words(t, a, nodes[1])
	require.Len(t, cfgs, 2)
	assert.Equal(t, periph.SPI3.Reg(regCFG1), dma.DecodeTransfer(nodes[1]).Dst)
	assert.Equal(t, uint32(7), cfg1DSIZE.Get(cfgs[0]))
	assert.True(t, cfg1TXDMAEN.On(cfgs[0]))
	assert.False(t, cfg1RXDMAEN.On(cfgs[0]))
	assert.Equal(t, uint32(commTransmit), cfg2COMM.Get(cfgs[1]))
	assert.True(t, cfg2MASTER.On(cfgs[1]))
	assert.True(t, cfg2CPOL.On(cfgs[1]))
	assert.Equal(t, []uint32{12}, lpbamtest.Words(t, a, nodes[2]))
	assert.True(t, cr1CSTART.On(lpbamtest.Words(t, a, nodes[4])[0]))

	tr := dma.DecodeTransfer(nodes[5])
	assert.Equal(t, periph.SPI3.Reg(regTXDR), tr.Dst)
	assert.Equal(t, periph.ReqSPI3TX, tr.Request)
	assert.Equal(t, dma.Byte, tr.SrcWidth)

	lpbamtest.RequireFullEqualsConfigData(t, &Transmit{cfg()})
}

func TestReceive16Bit(t *testing.T) {
	c := cfg()
	c.DataBits = 16
	q, nodes := lpbamtest.Build(t, &Receive{c}, lpbam.Full)
	require.Len(t, nodes, 6)
	assert.Equal(t, []uint32{6}, lpbamtest.Words(t, q.Arena(), nodes[2]), "TSIZE counts frames")
	tr := dma.DecodeTransfer(nodes[5])
	assert.Equal(t, periph.SPI3.Reg(regRXDR), tr.Src)
	assert.Equal(t, dma.HalfWord, tr.DstWidth)
	assert.Equal(t, periph.ReqSPI3RX, tr.Request)
}

func TestRejects(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"bits":     func(c *Config) { c.DataBits = 12 },
		"instance": func(c *Config) { c.Inst = periph.I2C3 },
		"huge":     func(c *Config) { c.Buffer.Size = 0x1_0000 },
		"null":     func(c *Config) { c.Buffer.Addr = 0 },
	} {
		c := cfg()
		mutate(&c)
		op := &Transmit{c}
		a := lpbamtest.Arena(t)
		q, _ := dma.NewQueue(a, dma.LinearNode)
		b, _ := lpbam.NewBundle(a, dma.LinearNode, op)
		assert.Equal(t, errcode.InvalidParams, errcode.Of(lpbam.Build(q, b, op, lpbam.Full)), name)
	}

	f, ok := lpbam.Lookup("spi.receive")
	require.True(t, ok)
	op, err := f(lpbam.Params{"mode": 3, "buffer": dma.Region{Addr: lpbamtest.BufferBase, Size: 4}})
	require.NoError(t, err)
	r := op.(*Receive)
	assert.True(t, r.CPOL && r.CPHA)
	assert.Equal(t, uint8(8), r.DataBits)
}

package i2c

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

func cfg(size uint32) Config {
	return Config{Inst: periph.I2C3, Address: 0x38, Timing: 0x1234, Buffer: dma.Region{Addr: lpbamtest.BufferBase, Size: size}}
}

func TestMasterReceive(t *testing.T) {
	q, nodes := lpbamtest.Build(t, &MasterReceive{cfg(6)}, lpbam.Full)
	require.Len(t, nodes, 5)
	a := q.Arena()
	assert.Equal(t, []uint32{0}, lpbamtest.Words(t, a, nodes[0]))
	assert.Equal(t, []uint32{0x1234}, lpbamtest.Words(t, a, nodes[1]))
	cr1 := lpbamtest.Words(t, a, nodes[2])[0]
	assert.True(t, cr1RXDMAEN.On(cr1))
	assert.False(t, cr1TXDMAEN.On(cr1))
	cr2 := lpbamtest.Words(t, a, nodes[3])[0]
	assert.Equal(t, uint32(0x70), cr2SADD.Get(cr2))
	assert.Equal(t, uint32(6), cr2NBYTES.Get(cr2))
	assert.True(t, cr2RDWRN.On(cr2))
	assert.True(t, cr2AUTOEND.On(cr2))
	assert.True(t, cr2START.On(cr2))

	tr := dma.DecodeTransfer(nodes[4])
	assert.Equal(t, periph.I2C3.Reg(regRXDR), tr.Src)
	assert.Equal(t, periph.ReqI2C3RX, tr.Request)
	lpbamtest.RequireFullEqualsConfigData(t, &MasterReceive{cfg(6)})
}

func TestMasterTransmit(t *testing.T) {
	_, nodes := lpbamtest.Build(t, &MasterTransmit{cfg(2)}, lpbam.Data)
	require.Len(t, nodes, 1)
	tr := dma.DecodeTransfer(nodes[0])
	assert.Equal(t, periph.I2C3.Reg(regTXDR), tr.Dst)
	assert.Equal(t, periph.ReqI2C3TX, tr.Request)
	assert.True(t, tr.SrcInc)
}

func TestRejects(t *testing.T) {
	long := cfg(256)
	wide := cfg(2)
	wide.Address = 0x80
	for _, op := range []lpbam.Operation{&MasterTransmit{long}, &MasterReceive{wide}} {
		a := lpbamtest.Arena(t)
		q, _ := dma.NewQueue(a, dma.LinearNode)
		b, _ := lpbam.NewBundle(a, dma.LinearNode, op)
		assert.Equal(t, errcode.InvalidParams, errcode.Of(lpbam.Build(q, b, op, lpbam.Full)))
	}

	f, ok := lpbam.Lookup("i2c.master_receive")
	require.True(t, ok)
	op, err := f(lpbam.Params{"address": "0x38", "buffer": dma.Region{Addr: lpbamtest.BufferBase, Size: 6}})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x00303D5B), op.(*MasterReceive).Timing)
}

package opamp

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

var pga = Config{Inst: periph.OPAMP2, Mode: PGA, Gain: 1, LowPower: true}

func TestStart(t *testing.T) {
	q, nodes := lpbamtest.Build(t, &Start{pga}, lpbam.Full)
	require.Len(t, nodes, 2)
	off := lpbamtest.Words(t, q.Arena(), nodes[0])[0]
	on := lpbamtest.Words(t, q.Arena(), nodes[1])[0]
	assert.Equal(t, uint32(PGA), csrOPAMODE.Get(off))
	assert.False(t, csrOPAEN.On(off))
	assert.True(t, csrOPAEN.On(on))
	assert.Equal(t, periph.OPAMP2.Reg(regCSR), dma.DecodeTransfer(nodes[1]).Dst)
	lpbamtest.RequireFullEqualsConfigData(t, &Start{pga})
}

func TestGainSequenceIsDataOnly(t *testing.T) {
	op := &GainSequence{Inst: periph.OPAMP1, Buffer: dma.Region{Addr: lpbamtest.BufferBase, Size: 16}}
	_, nodes := lpbamtest.Build(t, op, lpbam.Full)
	require.Len(t, nodes, 1)
	tr := dma.DecodeTransfer(nodes[0])
	assert.True(t, tr.SrcInc)
	assert.False(t, tr.DstInc)
	assert.Equal(t, periph.OPAMP1.Reg(regCSR), tr.Dst)

	a := lpbamtest.Arena(t)
	q, _ := dma.NewQueue(a, dma.LinearNode)
	b, _ := lpbam.NewBundle(a, dma.LinearNode, op)
	assert.Equal(t, errcode.InvalidParams, errcode.Of(lpbam.Build(q, b, op, lpbam.Config)))

	imgs := GainImages(pga, 0, 1, 2, 3)
	require.Len(t, imgs, 4)
	for i, w := range imgs {
		assert.Equal(t, uint32(i), csrPGAGAIN.Get(w))
		assert.True(t, csrOPAEN.On(w))
	}
}

func TestStopAndRejects(t *testing.T) {
	q, nodes := lpbamtest.Build(t, Stop(pga), lpbam.Config)
	assert.False(t, csrOPAEN.On(lpbamtest.Words(t, q.Arena(), nodes[0])[0]))

	bad := pga
	bad.Mode = 1
	a := lpbamtest.Arena(t)
	q, _ = dma.NewQueue(a, dma.LinearNode)
	b, _ := lpbam.NewBundle(a, dma.LinearNode, &Start{bad})
	assert.Equal(t, errcode.InvalidParams, errcode.Of(lpbam.Build(q, b, &Start{bad}, lpbam.Full)))

	f, ok := lpbam.Lookup("opamp.start")
	require.True(t, ok)
	op, err := f(lpbam.Params{"instance": "OPAMP2", "mode": "pga", "gain": 3})
	require.NoError(t, err)
	assert.Equal(t, uint8(3), op.(*Start).Gain)
	_, err = f(lpbam.Params{"mode": "comparator"})
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
}

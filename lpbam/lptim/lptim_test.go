package lptim

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

func TestStartSequence(t *testing.T) {
	op := &Start{Inst: periph.LPTIM3, Prescaler: 2, Period: 999, Compare: 250, Repeat: 4}
	q, nodes := lpbamtest.Build(t, op, lpbam.Full)
	require.Len(t, nodes, 5)
	a := q.Arena()

	cfgr := lpbamtest.Words(t, a, nodes[0])[0]
	assert.Equal(t, uint32(2), cfgrPRESC.Get(cfgr))
	assert.Equal(t, []uint32{1}, lpbamtest.Words(t, a, nodes[1]), "ENABLE before ARR")
	assert.Equal(t, []uint32{250, 999}, lpbamtest.Words(t, a, nodes[2]))
	assert.Equal(t, periph.LPTIM3.Reg(regCCR1), dma.DecodeTransfer(nodes[2]).Dst)
	assert.Equal(t, []uint32{4}, lpbamtest.Words(t, a, nodes[3]))
	start := lpbamtest.Words(t, a, nodes[4])[0]
	assert.True(t, crCNTSTRT.On(start))
	assert.True(t, crENABLE.On(start))

	lpbamtest.RequireFullEqualsConfigData(t, op)

	op.OneShot = true
	q, nodes = lpbamtest.Build(t, op, lpbam.Data)
	assert.True(t, crSNGSTRT.On(lpbamtest.Words(t, q.Arena(), nodes[0])[0]))
}

func TestStartRejects(t *testing.T) {
	for _, op := range []*Start{
		{Inst: periph.LPTIM1, Period: 10, Compare: 11},
		{Inst: periph.LPTIM1},
		{Inst: periph.ADC4, Period: 10},
		{Inst: periph.LPTIM1, Period: 10, Prescaler: 8},
	} {
		a := lpbamtest.Arena(t)
		q, _ := dma.NewQueue(a, dma.LinearNode)
		b, _ := lpbam.NewBundle(a, dma.LinearNode, op)
		assert.Equal(t, errcode.InvalidParams, errcode.Of(lpbam.Build(q, b, op, lpbam.Full)))
	}
}

func TestPWMUpdateUsesUpdateRequest(t *testing.T) {
	op := &PWMUpdate{Inst: periph.LPTIM1, Buffer: dma.Region{Addr: lpbamtest.BufferBase, Size: 64}}
	q, nodes := lpbamtest.Build(t, op, lpbam.Full)
	require.Len(t, nodes, 2)
	assert.True(t, dierUEDE.On(lpbamtest.Words(t, q.Arena(), nodes[0])[0]))
	tr := dma.DecodeTransfer(nodes[1])
	assert.Equal(t, periph.ReqLPTIM1UE, tr.Request)
	assert.Equal(t, periph.LPTIM1.Reg(regCCR1), tr.Dst)
	assert.True(t, tr.SrcInc)
}

func TestInputCapture(t *testing.T) {
	op := &InputCapture{Inst: periph.LPTIM3, Edge: 1, Buffer: dma.Region{Addr: lpbamtest.BufferBase, Size: 8}}
	q, nodes := lpbamtest.Build(t, op, lpbam.Full)
	require.Len(t, nodes, 3)
	ccmr := lpbamtest.Words(t, q.Arena(), nodes[1])[0]
	assert.True(t, ccmr1CC1SEL.On(ccmr))
	assert.Equal(t, uint32(1), ccmr1CC1P.Get(ccmr))
	tr := dma.DecodeTransfer(nodes[2])
	assert.Equal(t, periph.ReqLPTIM3IC1, tr.Request)
	assert.Equal(t, periph.LPTIM3.Reg(regCCR1), tr.Src)
	lpbamtest.RequireFullEqualsConfigData(t, op)
}

func TestFactoriesAndStop(t *testing.T) {
	f, ok := lpbam.Lookup("lptim.start")
	require.True(t, ok)
	op, err := f(lpbam.Params{"instance": "LPTIM1", "period": 100, "compare": 50, "one_shot": true})
	require.NoError(t, err)
	assert.True(t, op.(*Start).OneShot)
	_, err = f(lpbam.Params{"period": 0x10000})
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))

	q, nodes := lpbamtest.Build(t, Stop(periph.LPTIM1), lpbam.Config)
	assert.Equal(t, []uint32{0}, lpbamtest.Words(t, q.Arena(), nodes[0]))
}

package dmastart

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

// target builds a one-node queue in its own arena at 0x2801_0000.
func target(t *testing.T) *dma.Queue {
	t.Helper()
	a, err := dma.NewArena(0x2801_0000, 256)
	require.NoError(t, err)
	q, err := dma.NewQueue(a, dma.LinearNode)
	require.NoError(t, err)
	b, err := a.NewBundle(dma.LinearNode, 1, 0)
	require.NoError(t, err)
	n, err := dma.EncodeNode(dma.LinearNode, dma.Transfer{
		Src: periph.ADC4.Reg(0x40), Dst: lpbamtest.BufferBase, SrcWidth: dma.HalfWord, DstWidth: dma.HalfWord,
		DstInc: true, Size: 8, Request: periph.ReqADC4,
	})
	require.NoError(t, err)
	require.NoError(t, b.PutNode(0, n))
	require.NoError(t, q.Append(b.Node(0)))
	return q
}

func TestStartQueueProgramsChannel(t *testing.T) {
	tq := target(t)
	op := &StartQueue{Channel: 2, Target: tq, Priority: 1, Interrupts: dma.CCRTCIE.Mask()}
	trig := dma.Trigger{Signal: periph.SigCOMP1OUT, Polarity: dma.Rising}
	q, nodes := lpbamtest.Build(t, op, lpbam.Full, lpbam.WithTrigger(trig))
	require.Len(t, nodes, 4)
	a := q.Arena()
	base := dma.ChannelBase(periph.LPDMA1.Base(), 2)

	assert.Equal(t, base+dma.RegCLBAR, dma.DecodeTransfer(nodes[0]).Dst)
	assert.Equal(t, []uint32{0x2801_0000}, lpbamtest.Words(t, a, nodes[0]))
	ccrOff := lpbamtest.Words(t, a, nodes[1])[0]
	assert.False(t, dma.CCREN.On(ccrOff))
	assert.Equal(t, uint32(1), dma.CCRPRIO.Get(ccrOff))
	assert.True(t, dma.CCRTCIE.On(ccrOff))

	assert.Equal(t, base+dma.RegCLLR, dma.DecodeTransfer(nodes[2]).Dst)
	assert.Equal(t, []uint32{tq.HeadLink()}, lpbamtest.Words(t, a, nodes[2]))
	got, ok := dma.TriggerOf(nodes[2].Get(dma.WordCTR2))
	require.True(t, ok, "the CLLR node carries the trigger")
	assert.Equal(t, trig, got)
	assert.True(t, dma.CCREN.On(lpbamtest.Words(t, a, nodes[3])[0]))

	lpbamtest.RequireFullEqualsConfigData(t, op)
}

func TestStartQueueRejects(t *testing.T) {
	emptyArena, _ := dma.NewArena(0x2802_0000, 64)
	empty, _ := dma.NewQueue(emptyArena, dma.LinearNode)
	tq := target(t)
	for name, op := range map[string]*StartQueue{
		"empty target": {Channel: 0, Target: empty},
		"no target":    {Channel: 0},
		"channel":      {Channel: 4, Target: tq},
		"priority":     {Channel: 1, Target: tq, Priority: 4},
		"interrupts":   {Channel: 1, Target: tq, Interrupts: dma.CCREN.Mask()},
	} {
		a := lpbamtest.Arena(t)
		q, _ := dma.NewQueue(a, dma.LinearNode)
		b, _ := lpbam.NewBundle(a, dma.LinearNode, op)
		assert.Equal(t, errcode.InvalidParams, errcode.Of(lpbam.Build(q, b, op, lpbam.Full)), name)
	}
}

func TestFactoryResolvesQueue(t *testing.T) {
	tq := target(t)
	f, ok := lpbam.Lookup("dma.start_queue")
	require.True(t, ok)
	op, err := f(lpbam.Params{"channel": 3, "queue": tq, "notify": true})
	require.NoError(t, err)
	s := op.(*StartQueue)
	assert.Equal(t, 3, s.Channel)
	assert.True(t, dma.CCRULEIE.On(s.Interrupts))

	_, err = f(lpbam.Params{"channel": 1})
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
}

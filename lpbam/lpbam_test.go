package lpbam_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/lpbam"
	"lpbam-go/lpbam/dmastart"
	"lpbam-go/lpbam/lpbamtest"
	"lpbam-go/periph"
)

// sampler configures two register runs and reads DR into a buffer.
type sampler struct {
	failData bool
}

func (p *sampler) Name() string              { return "test.sampler" }
func (p *sampler) Instance() periph.Instance { return periph.ADC4 }
func (p *sampler) TriggerNode() int          { return 2 }
func (p *sampler) Layout() lpbam.Layout {
	return lpbam.Layout{ConfigNodes: 2, ConfigWords: 3, DataNodes: 1}
}

func (p *sampler) WriteConfigImage(f *lpbam.Frame) error {
	if err := f.WriteRegisters(periph.ADC4.Reg(0x0C), 1, 2); err != nil {
		return err
	}
	return f.WriteRegisters(periph.ADC4.Reg(0x28), 3)
}

func (p *sampler) WriteDataImage(f *lpbam.Frame) error {
	if p.failData {
		return errcode.New(errcode.InvalidParams, "test.sampler", "bad buffer")
	}
	return f.Transfer(dma.Transfer{
		Src: periph.ADC4.Reg(0x40), Dst: lpbamtest.BufferBase,
		SrcWidth: dma.HalfWord, DstWidth: dma.HalfWord, DstInc: true,
		Size: 64, Request: periph.ReqADC4,
	})
}

var lpt1 = dma.Trigger{Signal: periph.SigLPTIM1CH1, Polarity: dma.Rising, Mode: dma.ModeBlock}

func TestBuildFullWritesConfigThenData(t *testing.T) {
	q, nodes := lpbamtest.Build(t, &sampler{}, lpbam.Full)
	require.Len(t, nodes, 3)

	reg := dma.DecodeTransfer(nodes[0])
	assert.Equal(t, periph.ADC4.Reg(0x0C), reg.Dst)
	assert.True(t, reg.DstInc)
	assert.Equal(t, periph.NoRequest, reg.Request)
	assert.Equal(t, []uint32{1, 2}, lpbamtest.Words(t, q.Arena(), nodes[0]))
	assert.Equal(t, []uint32{3}, lpbamtest.Words(t, q.Arena(), nodes[1]))
	assert.False(t, dma.DecodeTransfer(nodes[1]).DstInc)

	data := dma.DecodeTransfer(nodes[2])
	assert.Equal(t, periph.ReqADC4, data.Request)
	assert.Equal(t, uint32(0), nodes[2].Link(), "last node is terminal")
}

func TestFullEqualsConfigThenData(t *testing.T) {
	lpbamtest.RequireFullEqualsConfigData(t, &sampler{})
}

func TestBuildFailureWritesNothing(t *testing.T) {
	a := lpbamtest.Arena(t)
	q, err := dma.NewQueue(a, dma.LinearNode)
	require.NoError(t, err)
	b, err := lpbam.NewBundle(a, dma.LinearNode, &sampler{})
	require.NoError(t, err)
	before := append([]byte(nil), a.Bytes()...)

	err = lpbam.Build(q, b, &sampler{failData: true}, lpbam.Full)
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
	assert.Equal(t, errcode.Error, errcode.Status(err))
	assert.True(t, bytes.Equal(before, a.Bytes()), "no partial commit")
	assert.Equal(t, 0, q.Len())

	// The same bundle still builds.
	require.NoError(t, lpbam.Build(q, b, &sampler{}, lpbam.Full))
	assert.Equal(t, 3, q.Len())
}

func TestBuildRejectsClosedQueueAndReuse(t *testing.T) {
	a := lpbamtest.Arena(t)
	q, err := dma.NewQueue(a, dma.LinearNode)
	require.NoError(t, err)
	b, err := lpbam.NewBundle(a, dma.LinearNode, &sampler{})
	require.NoError(t, err)
	require.NoError(t, lpbam.Build(q, b, &sampler{}, lpbam.Config))

	err = lpbam.Build(q, b, &sampler{}, lpbam.Config)
	assert.Equal(t, errcode.StateViolation, errcode.Of(err), "config slots already linked")

	require.NoError(t, q.MakeCircular())
	err = lpbam.Build(q, b, &sampler{}, lpbam.Data)
	assert.Equal(t, errcode.StateViolation, errcode.Of(err))
}

// A bound master queue can reach a StartQueue target, so the whole arena is
// frozen while any queue on it is pinned.
func TestPinnedArenaRefusesStartTargets(t *testing.T) {
	a := lpbamtest.Arena(t)
	target, err := dma.NewQueue(a, dma.LinearNode)
	require.NoError(t, err)
	tb, err := lpbam.NewBundle(a, dma.LinearNode, &sampler{})
	require.NoError(t, err)
	require.NoError(t, lpbam.Build(target, tb, &sampler{}, lpbam.Data))

	master, err := dma.NewQueue(a, dma.LinearNode)
	require.NoError(t, err)
	start := &dmastart.StartQueue{Channel: 1, Target: target}
	mb, err := lpbam.NewBundle(a, dma.LinearNode, start)
	require.NoError(t, err)
	require.NoError(t, lpbam.Build(master, mb, start, lpbam.Full))

	spare, err := lpbam.NewBundle(a, dma.LinearNode, &sampler{})
	require.NoError(t, err)
	loose, err := a.NewBundle(dma.LinearNode, 1, 0)
	require.NoError(t, err)
	require.NoError(t, master.Pin())
	before := append([]byte(nil), a.Bytes()...)

	// The data stage has no register words, so only the pin check stops it.
	err = lpbam.Build(target, spare, &sampler{}, lpbam.Data)
	assert.Equal(t, errcode.StateViolation, errcode.Of(err))
	assert.Equal(t, errcode.StateViolation, errcode.Of(target.Append(loose.Node(0))))
	assert.Equal(t, errcode.StateViolation, errcode.Of(target.SetTrigger(target.Head(), lpt1)))
	assert.Equal(t, errcode.StateViolation, errcode.Of(target.ClearTrigger(target.Head())))
	assert.Equal(t, errcode.StateViolation, errcode.Of(target.MakeCircular()))
	assert.Equal(t, errcode.StateViolation, errcode.Of(loose.PutNode(0, a.Node(target.Head()))))
	assert.Equal(t, before, a.Bytes(), "pinned arena memory is untouched")
	assert.Equal(t, 1, target.Len())

	master.Unpin()
	require.NoError(t, lpbam.Build(target, spare, &sampler{}, lpbam.Data))
	assert.Equal(t, 2, target.Len())
}

func TestBuildRejectsMismatchedBundle(t *testing.T) {
	a := lpbamtest.Arena(t)
	other := lpbamtest.Arena(t)
	q, err := dma.NewQueue(a, dma.LinearNode)
	require.NoError(t, err)
	b, err := lpbam.NewBundle(other, dma.LinearNode, &sampler{})
	require.NoError(t, err)
	assert.Equal(t, errcode.InvalidParams, errcode.Of(lpbam.Build(q, b, &sampler{}, lpbam.Full)))

	small, err := a.NewBundle(dma.LinearNode, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, errcode.InvalidParams, errcode.Of(lpbam.Build(q, small, &sampler{}, lpbam.Full)))
}

func TestTriggerLandsOnTheTriggerNode(t *testing.T) {
	_, nodes := lpbamtest.Build(t, &sampler{}, lpbam.Full, lpbam.WithTrigger(lpt1))
	for i, n := range nodes {
		got, ok := dma.TriggerOf(n.Get(dma.WordCTR2))
		if i == 2 {
			require.True(t, ok)
			assert.Equal(t, lpt1, got)
		} else {
			assert.False(t, ok, "node %d", i)
		}
	}

	_, nodes = lpbamtest.Build(t, &sampler{}, lpbam.Data, lpbam.WithTrigger(lpt1))
	require.Len(t, nodes, 1)
	_, ok := dma.TriggerOf(nodes[0].Get(dma.WordCTR2))
	assert.True(t, ok)

	_, nodes = lpbamtest.Build(t, &sampler{}, lpbam.Config, lpbam.WithTrigger(lpt1))
	_, ok = dma.TriggerOf(nodes[0].Get(dma.WordCTR2))
	assert.True(t, ok, "config-only builds gate the first node")
}

func TestWithCompleteEvent(t *testing.T) {
	_, nodes := lpbamtest.Build(t, &sampler{}, lpbam.Full, lpbam.WithCompleteEvent(dma.EventLastNode))
	for _, n := range nodes {
		assert.Equal(t, dma.EventLastNode, dma.DecodeTransfer(n).CompleteEvent)
	}
}

func TestInvalidTriggerRejected(t *testing.T) {
	a := lpbamtest.Arena(t)
	q, _ := dma.NewQueue(a, dma.LinearNode)
	b, _ := lpbam.NewBundle(a, dma.LinearNode, &sampler{})
	err := lpbam.Build(q, b, &sampler{}, lpbam.Full, lpbam.WithTrigger(dma.Trigger{Signal: 200, Polarity: dma.Rising}))
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
	assert.Equal(t, 0, q.Len())
}

func TestRegistersOpHasNoDataStage(t *testing.T) {
	op := &lpbam.Registers{Op: "adc.stop", Inst: periph.ADC4, Runs: []lpbam.Run{{Offset: 0x08, Values: []uint32{1 << 4}}}}
	a := lpbamtest.Arena(t)
	q, _ := dma.NewQueue(a, dma.LinearNode)
	b, err := lpbam.NewBundle(a, dma.LinearNode, op)
	require.NoError(t, err)
	assert.Equal(t, errcode.InvalidParams, errcode.Of(lpbam.Build(q, b, op, lpbam.Data)))
	require.NoError(t, lpbam.Build(q, b, op, lpbam.Full))
	assert.Equal(t, 1, q.Len())
}

func TestCheckBuffer(t *testing.T) {
	ok := dma.Region{Addr: lpbamtest.BufferBase, Size: 64}
	assert.NoError(t, lpbam.CheckBuffer("x", ok, dma.HalfWord))
	for _, r := range []dma.Region{
		{Addr: 0, Size: 8},
		{Addr: lpbamtest.BufferBase, Size: 0},
		{Addr: lpbamtest.BufferBase, Size: 0x1_0000},
		{Addr: lpbamtest.BufferBase + 1, Size: 8},
		{Addr: lpbamtest.BufferBase, Size: 7},
	} {
		assert.Equal(t, errcode.InvalidParams, errcode.Of(lpbam.CheckBuffer("x", r, dma.HalfWord)), "%+v", r)
	}
}

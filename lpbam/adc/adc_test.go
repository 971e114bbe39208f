package adc

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

func conversion() *Conversion {
	return &Conversion{
		Inst:       periph.ADC4,
		Channels:   1 << 9,
		SampleTime: 3,
		Buffer:     dma.Region{Addr: lpbamtest.BufferBase, Size: 1024},
	}
}

func TestConversionFull(t *testing.T) {
	q, nodes := lpbamtest.Build(t, conversion(), lpbam.Full)
	require.Len(t, nodes, 4)

	cfg := lpbamtest.Words(t, q.Arena(), nodes[0])
	require.Len(t, cfg, 3)
	assert.True(t, cfgr1DMAEN.On(cfg[0]))
	assert.False(t, cfgr1DMACFG.On(cfg[0]))
	assert.Equal(t, uint32(3), smprSMP1.Get(cfg[2]))
	assert.Equal(t, periph.ADC4.Reg(regCFGR1), dma.DecodeTransfer(nodes[0]).Dst)

	assert.Equal(t, []uint32{1 << 9}, lpbamtest.Words(t, q.Arena(), nodes[1]))
	cr := lpbamtest.Words(t, q.Arena(), nodes[2])
	assert.True(t, crADSTART.On(cr[0]))

	data := dma.DecodeTransfer(nodes[3])
	assert.Equal(t, periph.ADC4.Reg(regDR), data.Src)
	assert.Equal(t, uint32(lpbamtest.BufferBase), data.Dst)
	assert.Equal(t, dma.HalfWord, data.SrcWidth)
	assert.True(t, data.DstInc)
	assert.False(t, data.SrcInc)
	assert.Equal(t, periph.ReqADC4, data.Request)
	assert.Equal(t, uint32(1024), data.Size)
}

func TestConversionFullEqualsConfigData(t *testing.T) {
	lpbamtest.RequireFullEqualsConfigData(t, conversion())
}

// A 512-sample circular capture is one data node looping on itself.
func TestCircularSingleNodeCapture(t *testing.T) {
	c := conversion()
	c.Circular = true
	q, nodes := lpbamtest.Build(t, c, lpbam.Data)
	require.Len(t, nodes, 1)
	require.NoError(t, q.MakeCircular())

	n := q.Arena().Node(q.Head())
	target, ok := dma.LinkTarget(q.LinkBase(), n.Link())
	require.True(t, ok)
	assert.Equal(t, q.HeadAddr(), target)
	assert.Equal(t, uint32(512), dma.DecodeTransfer(n).Size/2)

	steps, toFirst, err := dma.CycleLength(q.Arena(), q.Type(), q.LinkBase(), q.HeadAddr(), 4)
	require.NoError(t, err)
	assert.Equal(t, 1, steps)
	assert.True(t, toFirst)
}

func TestConversionTriggerOnDataNode(t *testing.T) {
	trig := dma.Trigger{Signal: periph.SigLPTIM1CH1, Polarity: dma.Rising}
	_, nodes := lpbamtest.Build(t, conversion(), lpbam.Full, lpbam.WithTrigger(trig))
	_, ok := dma.TriggerOf(nodes[3].Get(dma.WordCTR2))
	assert.True(t, ok)
	_, ok = dma.TriggerOf(nodes[0].Get(dma.WordCTR2))
	assert.False(t, ok)
}

func TestConversionRejects(t *testing.T) {
	cases := map[string]func(c *Conversion){
		"instance":    func(c *Conversion) { c.Inst = periph.COMP1 },
		"no channels": func(c *Conversion) { c.Channels = 0 },
		"channel 24":  func(c *Conversion) { c.Channels = 1 << 24 },
		"null buffer": func(c *Conversion) { c.Buffer.Addr = 0 },
		"odd buffer":  func(c *Conversion) { c.Buffer.Size = 1023 },
		"huge buffer": func(c *Conversion) { c.Buffer.Size = 0x2_0000 },
		"sample time": func(c *Conversion) { c.SampleTime = 8 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := conversion()
			mutate(c)
			a := lpbamtest.Arena(t)
			q, _ := dma.NewQueue(a, dma.LinearNode)
			b, err := lpbam.NewBundle(a, dma.LinearNode, c)
			require.NoError(t, err)
			err = lpbam.Build(q, b, c, lpbam.Full)
			assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
			assert.Equal(t, 0, q.Len())
		})
	}
}

func TestStartStop(t *testing.T) {
	q, nodes := lpbamtest.Build(t, Stop(periph.ADC4), lpbam.Config)
	require.Len(t, nodes, 1)
	assert.True(t, crADSTP.On(lpbamtest.Words(t, q.Arena(), nodes[0])[0]))

	q, nodes = lpbamtest.Build(t, Start(periph.ADC4), lpbam.Full)
	require.Len(t, nodes, 1)
	assert.True(t, crADSTART.On(lpbamtest.Words(t, q.Arena(), nodes[0])[0]))

	op := Stop(periph.DAC1)
	a := lpbamtest.Arena(t)
	q, _ = dma.NewQueue(a, dma.LinearNode)
	b, _ := lpbam.NewBundle(a, dma.LinearNode, op)
	assert.Equal(t, errcode.InvalidParams, errcode.Of(lpbam.Build(q, b, op, lpbam.Config)))
}

func TestFactory(t *testing.T) {
	f, ok := lpbam.Lookup("adc.conversion")
	require.True(t, ok)
	op, err := f(lpbam.Params{
		"channel":    9,
		"resolution": 8,
		"circular":   true,
		"buffer":     dma.Region{Addr: lpbamtest.BufferBase, Size: 64},
	})
	require.NoError(t, err)
	c := op.(*Conversion)
	assert.Equal(t, periph.ADC4, c.Inst)
	assert.Equal(t, uint32(1<<9), c.Channels)
	assert.Equal(t, Res8, c.Resolution)
	assert.True(t, c.Circular)

	_, err = f(lpbam.Params{"resolution": 7, "buffer": dma.Region{Addr: 4, Size: 4}})
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
}

package lpbam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/periph"
)

func TestRegisterDuplicatePanics(t *testing.T) {
	f := func(Params) (Operation, error) { return nil, nil }
	Register("test.once", f)
	assert.Panics(t, func() { Register("test.once", f) })
	_, ok := Lookup("test.once")
	assert.True(t, ok)
	assert.Contains(t, Names(), "regs.write")
}

func TestRegsWriteFactory(t *testing.T) {
	f, ok := Lookup("regs.write")
	require.True(t, ok)
	op, err := f(Params{
		"instance": "lptim1",
		"runs": []any{
			map[string]any{"offset": "0x18", "values": []any{100, "0x20"}},
		},
	})
	require.NoError(t, err)
	r := op.(*Registers)
	assert.Equal(t, periph.LPTIM1, r.Inst)
	assert.Equal(t, []Run{{Offset: 0x18, Values: []uint32{100, 0x20}}}, r.Runs)

	_, err = f(Params{"instance": "LPTIM1", "runs": []any{map[string]any{"offset": 2, "values": []any{1}}}})
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
}

func TestParamsDecoding(t *testing.T) {
	p := Params{
		"n":     5,
		"f":     12.0,
		"hex":   "0x1F",
		"neg":   -1,
		"wide":  1<<32 + 1,
		"on":    "true",
		"inst":  "COMP2",
		"buf":   map[string]any{"addr": "0x20001000", "size": 128},
		"trig":  map[string]any{"signal": "LPTIM1_CH1", "polarity": "falling", "mode": "node"},
		"list":  []any{1, "0x2", 3.0},
		"wrong": []string{"x"},
	}
	n, err := p.Uint("n", 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), n)
	n, _ = p.Uint("f", 0)
	assert.Equal(t, uint32(12), n)
	n, _ = p.Uint("hex", 0)
	assert.Equal(t, uint32(0x1F), n)
	n, _ = p.Uint("missing", 7)
	assert.Equal(t, uint32(7), n)
	_, err = p.Uint("neg", 0)
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
	_, err = p.UintMax("n", 0, 4)
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
	_, err = p.UintMax("wide", 0, 3)
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err), "no silent truncation to 1")

	on, err := p.Bool("on", false)
	require.NoError(t, err)
	assert.True(t, on)

	inst, err := p.Instance("inst", periph.FamilyCOMP)
	require.NoError(t, err)
	assert.Equal(t, periph.COMP2, inst)
	_, err = p.Instance("inst", periph.FamilyADC)
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
	inst, err = p.Instance("absent", periph.FamilyLPTIM)
	require.NoError(t, err)
	assert.Equal(t, periph.LPTIM1, inst)

	buf, err := p.Region("buf")
	require.NoError(t, err)
	assert.Equal(t, dma.Region{Addr: 0x2000_1000, Size: 128}, buf)
	_, err = p.Region("absent")
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))

	tr, ok, err := p.Trigger("trig")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, dma.Trigger{Signal: periph.SigLPTIM1CH1, Polarity: dma.Falling, Mode: dma.ModeNode}, tr)
	_, ok, err = p.Trigger("absent")
	assert.NoError(t, err)
	assert.False(t, ok)

	list, err := p.Uints("list")
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3}, list)
	_, err = p.Uints("wrong")
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))

	_, err = p.Queue("n")
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
}

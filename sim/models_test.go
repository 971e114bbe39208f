package sim

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinygo.org/x/drivers"

	"lpbam-go/dma"
	"lpbam-go/lpbam/comp"
	"lpbam-go/lpbam/i2c"
	"lpbam-go/lpbam/spi"
	"lpbam-go/periph"
)

var (
	_ drivers.I2C = (*fakeI2C)(nil)
	_ drivers.SPI = (*fakeSPI)(nil)
)

type i2cTx struct {
	addr uint16
	w    []byte
	r    int
}

type fakeI2C struct {
	mu    sync.Mutex
	txs   []i2cTx
	reply []byte
	err   error
}

func (f *fakeI2C) Tx(addr uint16, w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, i2cTx{addr: addr, w: append([]byte(nil), w...), r: len(r)})
	copy(r, f.reply)
	return f.err
}

// fakeSPI clocks out a counter and records every byte sent.
type fakeSPI struct {
	mu   sync.Mutex
	out  []byte
	next byte
	txs  int
}

func (f *fakeSPI) Tx(w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs++
	f.out = append(f.out, w...)
	for i := range r {
		r[i] = f.next
		f.next++
	}
	return nil
}

func (f *fakeSPI) Transfer(b byte) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, b)
	return 0, nil
}

func TestI2CModelForwardsTransfers(t *testing.T) {
	bus := &fakeI2C{reply: []byte{0xAA, 0xBB, 0xCC}}
	b, a := newBoard(t, BoardConfig{I2C: bus})
	require.NoError(t, b.RAM.Load(ramBase, []byte{0x01, 0x02}))

	cfg := func(addr, size uint32) i2c.Config {
		return i2c.Config{Inst: periph.I2C3, Address: 0x38, Timing: 0x0030_3D5B, Buffer: dma.Region{Addr: addr, Size: size}}
	}
	q := queue(t, a,
		full(&i2c.MasterTransmit{Config: cfg(ramBase, 2)}),
		full(&i2c.MasterReceive{Config: cfg(ramBase+0x10, 3)}))
	start(b.Engine, 0, q, 0)
	assert.Equal(t, 10, b.Run(100))

	require.Len(t, bus.txs, 2)
	assert.Equal(t, i2cTx{addr: 0x38, w: []byte{0x01, 0x02}}, bus.txs[0])
	assert.Equal(t, i2cTx{addr: 0x38, r: 3}, bus.txs[1])
	got, err := b.RAM.Bytes(ramBase+0x10, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, got)
	assert.NoError(t, b.I2C.Err())
	assert.Equal(t, []uint32{0x0030_3D5B, 0x0030_3D5B}, b.I2C.WritesTo(0x10))
}

func TestI2CModelReportsNack(t *testing.T) {
	bus := &fakeI2C{err: errors.New("nack")}
	b, a := newBoard(t, BoardConfig{I2C: bus})
	q := queue(t, a, full(&i2c.MasterReceive{Config: i2c.Config{
		Inst: periph.I2C3, Address: 0x10, Buffer: dma.Region{Addr: ramBase, Size: 1},
	}}))
	start(b.Engine, 0, q, 0)
	b.Run(100)
	assert.EqualError(t, b.I2C.Err(), "nack")
	assert.NotZero(t, b.I2C.Reg(0x18)&(1<<4))
}

func TestSPIModelTransmitAndReceive(t *testing.T) {
	bus := &fakeSPI{}
	b, a := newBoard(t, BoardConfig{SPI: bus})
	require.NoError(t, b.RAM.Load(ramBase, []byte{0x10, 0x20, 0x30}))

	cfg := func(addr, size uint32) spi.Config {
		return spi.Config{Inst: periph.SPI3, DataBits: 8, BaudDiv: 2, Buffer: dma.Region{Addr: addr, Size: size}}
	}
	// The receive is longer than the FIFO, so it is clocked in two bursts.
	const n = FIFOSize + 4
	q := queue(t, a,
		full(&spi.Transmit{Config: cfg(ramBase, 3)}),
		full(&spi.Receive{Config: cfg(ramBase+0x100, n)}))
	start(b.Engine, 0, q, 0)
	assert.Equal(t, 12, b.Run(100))

	assert.Equal(t, []byte{0x10, 0x20, 0x30}, bus.out)
	assert.Equal(t, 2, bus.txs)
	got, err := b.RAM.Bytes(ramBase+0x100, n)
	require.NoError(t, err)
	for i, v := range got {
		assert.Equal(t, byte(i), v)
	}
	assert.NoError(t, b.SPI.Err())
}

func TestCOMPModelReportsLevel(t *testing.T) {
	b, a := newBoard(t, BoardConfig{})
	cfg := comp.Config{Inst: periph.COMP2, InputPlus: 1}
	q := queue(t, a, full(&comp.OutputLevel{Config: cfg, Buffer: dma.Region{Addr: ramBase, Size: 4}}))
	b.COMP[periph.COMP2].SetOutput(true)
	start(b.Engine, 0, q, 0)
	assert.Equal(t, 2, b.Run(10))
	words, err := b.RAM.Uint32s(ramBase, 1)
	require.NoError(t, err)
	assert.True(t, comp.Level(words[0]))
	assert.Equal(t, cfg.CSR(true), b.COMP[periph.COMP2].Reg(0))
}

func TestGPIOBitSetReset(t *testing.T) {
	g := NewGPIO()
	base, _ := g.Span()
	require.True(t, g.Write(base+gpioBSRR, dma.Word32, 0x0000_00F0))
	assert.Equal(t, uint16(0xF0), g.ODR())
	require.True(t, g.Write(base+gpioBSRR, dma.Word32, 0x0010_0001))
	assert.Equal(t, uint16(0xE1), g.ODR())
	require.True(t, g.Write(base+gpioBRR, dma.Word32, 0x0001))
	assert.Equal(t, uint16(0xE0), g.ODR())
	v, ok := g.Read(base+gpioBSRR, dma.Word32)
	require.True(t, ok)
	assert.Zero(t, v)

	g.SetInputs(0x5)
	v, ok = g.Read(base+gpioIDR, dma.HalfWord)
	require.True(t, ok)
	assert.Equal(t, uint32(0x5), v)
}

func TestRegisterBlockWidths(t *testing.T) {
	rb := NewRegisterBlock("test", 0x4000_0000, 0x10)
	require.True(t, rb.Write(0x4000_0004, dma.Word32, 0x1122_3344))
	require.True(t, rb.Write(0x4000_0006, dma.HalfWord, 0xAABB))
	assert.Equal(t, uint32(0xAABB_3344), rb.Reg(4))
	v, ok := rb.Read(0x4000_0005, dma.Byte)
	require.True(t, ok)
	assert.Equal(t, uint32(0x33), v)

	_, ok = rb.Read(0x4000_0010, dma.Word32)
	assert.False(t, ok, "outside the block")
	assert.False(t, rb.Write(0x4000_0001, dma.HalfWord, 0), "misaligned")
	assert.Equal(t, []uint32{4, 6}, rb.Touched())
	assert.Len(t, rb.Writes(), 2)
}

func TestMapRejectsOverlap(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Map(NewRAM(0x2000_0000, 0x100)))
	assert.Error(t, e.Map(NewRAM(0x2000_0080, 0x100)))
	assert.Error(t, e.Map(NewRAM(periph.LPDMA1.Base(), 0x10)))
	assert.Error(t, e.Map(NewRAM(0x3000_0000, 0)))
	require.NoError(t, e.Map(NewRAM(0x2000_0100, 0x100)))

	require.True(t, e.Write(0x2000_0104, dma.Word32, 0xCAFE))
	v, ok := e.Read32(0x2000_0104)
	require.True(t, ok)
	assert.Equal(t, uint32(0xCAFE), v)
}

func TestCPUWritesReachChannelRegisters(t *testing.T) {
	e := NewEngine()
	addr := dma.ChannelBase(periph.LPDMA1.Base(), 3) + dma.RegCLBAR
	require.True(t, e.Write(addr, dma.Word32, 0x2800_0000))
	assert.Equal(t, uint32(0x2800_0000), e.ReadReg(3, dma.RegCLBAR))
	_, ok := e.Read(addr, dma.HalfWord)
	assert.False(t, ok, "channel registers are word access only")
}

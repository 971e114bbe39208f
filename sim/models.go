package sim

import (
	"sync"
	"sync/atomic"

	"tinygo.org/x/drivers"

	"lpbam-go/dma"
	"lpbam-go/periph"
	"lpbam-go/x/mathx"
	"lpbam-go/x/ring"
)

// Register offsets the models give behaviour to.
const (
	adcDR = 0x40

	gpioIDR  = 0x10
	gpioODR  = 0x14
	gpioBSRR = 0x18
	gpioBRR  = 0x28

	compCSR = 0x00

	i2cCR2  = 0x04
	i2cISR  = 0x18
	i2cRXDR = 0x24
	i2cTXDR = 0x28

	spiCR1  = 0x00
	spiCR2  = 0x04
	spiCFG1 = 0x08
	spiCFG2 = 0x0C
	spiTXDR = 0x20
	spiRXDR = 0x30
)

var (
	compVALUE = mathx.Bit(30)

	i2cSADD   = mathx.Field{Shift: 0, Width: 10}
	i2cRDWRN  = mathx.Bit(10)
	i2cSTART  = mathx.Bit(13)
	i2cNBYTES = mathx.Field{Shift: 16, Width: 8}
	i2cNACKF  = mathx.Bit(4)
	spiCSTART = mathx.Bit(9)
	spiTSIZE  = mathx.Field{Shift: 0, Width: 16}
	spiDSIZE  = mathx.Field{Shift: 0, Width: 5}
	spiCOMM   = mathx.Field{Shift: 17, Width: 2}
)

// COMM value of a receive-only SPI transfer.
const spiReceive = 2

// blockSize is the register span modelled per family; instances of some
// families sit closer together than a full 1 KiB block.
func blockSize(f periph.Family) uint32 {
	switch f {
	case periph.FamilyCOMP:
		return 0x04
	case periph.FamilyOPAMP:
		return 0x10
	}
	return 0x400
}

// Sequence returns a sample source cycling through vals.
func Sequence(vals ...uint16) func() uint16 {
	var mu sync.Mutex
	i := 0
	return func() uint16 {
		mu.Lock()
		defer mu.Unlock()
		if len(vals) == 0 {
			return 0
		}
		v := vals[i%len(vals)]
		i++
		return v
	}
}

// ADC models ADC4: each DR read returns the next sample.
type ADC struct {
	*RegisterBlock
	reads atomic.Int64
}

// NewADC returns an ADC4 block fed by src.
func NewADC(src func() uint16) *ADC {
	a := &ADC{RegisterBlock: NewPeripheral(periph.ADC4, blockSize(periph.FamilyADC))}
	a.OnRead(adcDR, func(dma.Width) uint32 {
		a.reads.Add(1)
		return uint32(src())
	})
	return a
}

// Conversions returns how many samples have been read.
func (a *ADC) Conversions() int { return int(a.reads.Load()) }

// GPIO models LPGPIO1: BSRR and BRR drive ODR, IDR reflects SetInputs.
type GPIO struct {
	*RegisterBlock
}

func NewGPIO() *GPIO {
	g := &GPIO{RegisterBlock: NewPeripheral(periph.LPGPIO1, blockSize(periph.FamilyGPIO))}
	g.OnWrite(gpioBSRR, func(v uint32, _ dma.Width) {
		odr := g.Reg(gpioODR)
		odr = (odr &^ (v >> 16)) | (v & 0xFFFF)
		g.Set(gpioODR, odr&0xFFFF)
		g.Set(gpioBSRR, 0)
	})
	g.OnWrite(gpioBRR, func(v uint32, _ dma.Width) {
		g.Set(gpioODR, g.Reg(gpioODR)&^(v&0xFFFF))
		g.Set(gpioBRR, 0)
	})
	return g
}

// ODR returns the output latch.
func (g *GPIO) ODR() uint16 { return uint16(g.Reg(gpioODR)) }

// SetInputs sets the levels IDR reports.
func (g *GPIO) SetInputs(v uint16) { g.Set(gpioIDR, uint32(v)) }

// COMP models a comparator whose output level is set by the test.
type COMP struct {
	*RegisterBlock
	level atomic.Bool
}

func NewCOMP(inst periph.Instance) *COMP {
	c := &COMP{RegisterBlock: NewPeripheral(inst, blockSize(periph.FamilyCOMP))}
	c.OnRead(compCSR, func(dma.Width) uint32 {
		return compVALUE.Flag(c.Reg(compCSR), c.level.Load())
	})
	return c
}

// SetOutput drives the comparator output.
func (c *COMP) SetOutput(high bool) { c.level.Store(high) }

// I2C models an I2C3 master forwarding each transfer to a bus. A write is
// sent once NBYTES bytes reach TXDR; a read is fetched when START is set
// and drained through RXDR.
type I2C struct {
	*RegisterBlock
	bus drivers.I2C

	mu   sync.Mutex
	addr uint16
	want int
	tx   []byte
	rx   []byte
	err  error
}

func NewI2C(bus drivers.I2C) *I2C {
	d := &I2C{RegisterBlock: NewPeripheral(periph.I2C3, blockSize(periph.FamilyI2C)), bus: bus}
	d.OnWrite(i2cCR2, func(v uint32, _ dma.Width) { d.start(v) })
	d.OnWrite(i2cTXDR, func(v uint32, _ dma.Width) { d.push(byte(v)) })
	d.OnRead(i2cRXDR, func(dma.Width) uint32 { return uint32(d.pop()) })
	return d
}

func (d *I2C) start(cr2 uint32) {
	if !i2cSTART.On(cr2) {
		return
	}
	d.mu.Lock()
	d.addr = uint16(i2cSADD.Get(cr2) >> 1)
	d.want = int(i2cNBYTES.Get(cr2))
	d.tx, d.rx = d.tx[:0], nil
	read := i2cRDWRN.On(cr2)
	addr, n := d.addr, d.want
	d.mu.Unlock()
	if read {
		buf := make([]byte, n)
		err := d.bus.Tx(addr, nil, buf)
		d.mu.Lock()
		d.rx = buf
		d.mu.Unlock()
		d.result(err)
	}
}

func (d *I2C) push(b byte) {
	d.mu.Lock()
	d.tx = append(d.tx, b)
	if len(d.tx) < d.want {
		d.mu.Unlock()
		return
	}
	w := append([]byte(nil), d.tx...)
	addr := d.addr
	d.tx = d.tx[:0]
	d.mu.Unlock()
	d.result(d.bus.Tx(addr, w, nil))
}

func (d *I2C) pop() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rx) == 0 {
		return 0
	}
	b := d.rx[0]
	d.rx = d.rx[1:]
	return b
}

func (d *I2C) result(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
	d.Set(i2cISR, i2cNACKF.Flag(d.Reg(i2cISR), err != nil))
}

// Err returns the bus error of the last transfer.
func (d *I2C) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// SPI models an SPI3 master. TXDR writes are clocked out a byte at a time;
// a receive-only transfer clocks TSIZE frames in through an RX FIFO.
type SPI struct {
	*RegisterBlock
	bus drivers.SPI
	rx  *ring.Ring

	mu   sync.Mutex
	left int
	err  error
}

// FIFOSize is the modelled RX FIFO depth in bytes.
const FIFOSize = 16

func NewSPI(bus drivers.SPI) *SPI {
	s := &SPI{RegisterBlock: NewPeripheral(periph.SPI3, blockSize(periph.FamilySPI)), bus: bus, rx: ring.New(FIFOSize)}
	s.OnWrite(spiCR1, func(v uint32, _ dma.Width) { s.start(v) })
	s.OnWrite(spiTXDR, func(v uint32, w dma.Width) { s.send(v, w) })
	s.OnRead(spiRXDR, func(w dma.Width) uint32 { return s.recv(w) })
	return s
}

func (s *SPI) frameBytes() int {
	if spiDSIZE.Get(s.Reg(spiCFG1))+1 > 8 {
		return 2
	}
	return 1
}

func (s *SPI) start(cr1 uint32) {
	if !spiCSTART.On(cr1) || spiCOMM.Get(s.Reg(spiCFG2)) != spiReceive {
		return
	}
	s.mu.Lock()
	s.left = int(spiTSIZE.Get(s.Reg(spiCR2))) * s.frameBytes()
	s.mu.Unlock()
	s.rx.Reset()
	s.refill()
}

// refill clocks in as many pending bytes as the FIFO has room for.
func (s *SPI) refill() {
	s.mu.Lock()
	n := min(s.left, s.rx.Space())
	s.left -= n
	s.mu.Unlock()
	if n == 0 {
		return
	}
	buf := make([]byte, n)
	err := s.bus.Tx(nil, buf)
	s.rx.Write(buf)
	s.setErr(err)
}

func (s *SPI) send(v uint32, w dma.Width) {
	for i := 0; i < int(w); i++ {
		if _, err := s.bus.Transfer(byte(v >> (8 * i))); err != nil {
			s.setErr(err)
			return
		}
	}
}

func (s *SPI) recv(w dma.Width) uint32 {
	if s.rx.Available() < int(w) {
		s.refill()
	}
	var v uint32
	for i := 0; i < int(w); i++ {
		b, _ := s.rx.Pop()
		v |= uint32(b) << (8 * i)
	}
	return v
}

func (s *SPI) setErr(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Err returns the last bus error.
func (s *SPI) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

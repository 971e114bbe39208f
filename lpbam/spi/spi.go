package spi

import (
	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/lpbam"
	"lpbam-go/periph"
)

// Config is the bus setup of a transfer.
type Config struct {
	Inst periph.Instance
	// DataBits is 8 or 16.
	DataBits uint8
	// BaudDiv is the MBR code: kernel clock divided by 2 << BaudDiv.
	BaudDiv  uint8
	CPOL     bool
	CPHA     bool
	LSBFirst bool
	// HardwareNSS drives NSS from the peripheral instead of SSM.
	HardwareNSS bool
	Buffer      dma.Region
}

func (c Config) width() dma.Width {
	if c.DataBits == 16 {
		return dma.HalfWord
	}
	return dma.Byte
}

func (c Config) validate(op string) error {
	switch {
	case !c.Inst.Is(periph.FamilySPI):
		return errcode.New(errcode.InvalidParams, op, "not an SPI instance")
	case c.DataBits != 8 && c.DataBits != 16:
		return errcode.New(errcode.InvalidParams, op, "data size must be 8 or 16 bits")
	case !cfg1MBR.Fits(uint32(c.BaudDiv)):
		return errcode.New(errcode.InvalidParams, op, "baud rate divider")
	}
	return lpbam.CheckBuffer(op, c.Buffer, c.width())
}

// config stages CR1 off, CFG1 and CFG2, CR2.TSIZE, CR1.SPE, CR1.CSTART.
func (c Config) config(f *lpbam.Frame, comm uint32, tx bool) error {
	cfg1 := cfg1DSIZE.Set(0, uint32(c.DataBits-1))
	cfg1 = cfg1TXDMAEN.Flag(cfg1, tx)
	cfg1 = cfg1RXDMAEN.Flag(cfg1, !tx)
	cfg1 = cfg1MBR.Set(cfg1, uint32(c.BaudDiv))

	cfg2 := cfg2COMM.Set(0, comm)
	cfg2 = cfg2MASTER.Flag(cfg2, true)
	cfg2 = cfg2LSBFRST.Flag(cfg2, c.LSBFirst)
	cfg2 = cfg2CPHA.Flag(cfg2, c.CPHA)
	cfg2 = cfg2CPOL.Flag(cfg2, c.CPOL)
	cfg2 = cfg2SSM.Flag(cfg2, !c.HardwareNSS)
	cfg2 = cfg2SSOE.Flag(cfg2, c.HardwareNSS)

	frames := c.Buffer.Size / uint32(c.width())
	spe := cr1SPE.Flag(0, true)
	runs := []struct {
		reg  uint32
		vals []uint32
	}{
		{regCR1, []uint32{0}},
		{regCFG1, []uint32{cfg1, cfg2}},
		{regCR2, []uint32{cr2TSIZE.Set(0, frames)}},
		{regCR1, []uint32{spe}},
		{regCR1, []uint32{cr1CSTART.Flag(spe, true)}},
	}
	for _, r := range runs {
		if err := f.WriteRegisters(c.Inst.Reg(r.reg), r.vals...); err != nil {
			return err
		}
	}
	return nil
}

var layout = lpbam.Layout{ConfigNodes: 5, ConfigWords: 6, DataNodes: 1}

// Transmit sends Buffer as a simplex master transmitter. The data node
// carries the trigger.
type Transmit struct{ Config }

func (t *Transmit) Name() string              { return "spi.transmit" }
func (t *Transmit) Instance() periph.Instance { return t.Inst }
func (t *Transmit) TriggerNode() int          { return 5 }
func (t *Transmit) Layout() lpbam.Layout      { return layout }

func (t *Transmit) WriteConfigImage(f *lpbam.Frame) error {
	if err := t.validate(t.Name()); err != nil {
		return err
	}
	return t.config(f, commTransmit, true)
}

func (t *Transmit) WriteDataImage(f *lpbam.Frame) error {
	if err := t.validate(t.Name()); err != nil {
		return err
	}
	w := t.width()
	return f.Transfer(dma.Transfer{
		Src:         t.Buffer.Addr,
		Dst:         t.Inst.Reg(regTXDR),
		SrcWidth:    w,
		DstWidth:    w,
		SrcInc:      true,
		Size:        t.Buffer.Size,
		Request:     periph.ReqSPI3TX,
		DestRequest: true,
	})
}

// Receive clocks Buffer in as a simplex master receiver. The data node
// carries the trigger.
type Receive struct{ Config }

func (r *Receive) Name() string              { return "spi.receive" }
func (r *Receive) Instance() periph.Instance { return r.Inst }
func (r *Receive) TriggerNode() int          { return 5 }
func (r *Receive) Layout() lpbam.Layout      { return layout }

func (r *Receive) WriteConfigImage(f *lpbam.Frame) error {
	if err := r.validate(r.Name()); err != nil {
		return err
	}
	return r.config(f, commReceive, false)
}

func (r *Receive) WriteDataImage(f *lpbam.Frame) error {
	if err := r.validate(r.Name()); err != nil {
		return err
	}
	w := r.width()
	return f.Transfer(dma.Transfer{
		Src:      r.Inst.Reg(regRXDR),
		Dst:      r.Buffer.Addr,
		SrcWidth: w,
		DstWidth: w,
		DstInc:   true,
		Size:     r.Buffer.Size,
		Request:  periph.ReqSPI3RX,
	})
}

func decodeConfig(p lpbam.Params) (Config, error) {
	var c Config
	var err error
	if c.Inst, err = p.Instance("instance", periph.FamilySPI); err != nil {
		return c, err
	}
	bits, err := p.UintMax("data_bits", 8, 16)
	if err != nil {
		return c, err
	}
	c.DataBits = uint8(bits)
	div, err := p.UintMax("baud_div", 0, 7)
	if err != nil {
		return c, err
	}
	c.BaudDiv = uint8(div)
	mode, err := p.UintMax("mode", 0, 3)
	if err != nil {
		return c, err
	}
	c.CPOL, c.CPHA = mode&2 != 0, mode&1 != 0
	if c.LSBFirst, err = p.Bool("lsb_first", false); err != nil {
		return c, err
	}
	if c.HardwareNSS, err = p.Bool("hardware_nss", false); err != nil {
		return c, err
	}
	c.Buffer, err = p.Region("buffer")
	return c, err
}

func init() {
	lpbam.Register("spi.transmit", func(p lpbam.Params) (lpbam.Operation, error) {
		c, err := decodeConfig(p)
		if err != nil {
			return nil, err
		}
		return &Transmit{c}, nil
	})
	lpbam.Register("spi.receive", func(p lpbam.Params) (lpbam.Operation, error) {
		c, err := decodeConfig(p)
		if err != nil {
			return nil, err
		}
		return &Receive{c}, nil
	})
}

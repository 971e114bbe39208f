// Package i2c builds I2C3 master transfers.
package i2c

import (
	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/lpbam"
	"lpbam-go/periph"
	"lpbam-go/x/mathx"
)

const (
	regCR1     = 0x00
	regCR2     = 0x04
	regTIMINGR = 0x10
	regRXDR    = 0x24
	regTXDR    = 0x28
)

var (
	cr1PE      = mathx.Bit(0)
	cr1TXDMAEN = mathx.Bit(14)
	cr1RXDMAEN = mathx.Bit(15)

	cr2SADD    = mathx.Field{Shift: 0, Width: 10}
	cr2RDWRN   = mathx.Bit(10)
	cr2START   = mathx.Bit(13)
	cr2NBYTES  = mathx.Field{Shift: 16, Width: 8}
	cr2AUTOEND = mathx.Bit(25)
)

// MaxTransfer is the longest transfer one NBYTES load can describe.
const MaxTransfer = 255

// Config is a master transfer to a 7-bit address.
type Config struct {
	Inst    periph.Instance
	Address uint8
	// Timing is the TIMINGR image for the bus speed.
	Timing uint32
	// NoStop leaves the bus claimed after the transfer (AUTOEND clear).
	NoStop bool
	Buffer dma.Region
}

func (c Config) validate(op string) error {
	switch {
	case !c.Inst.Is(periph.FamilyI2C):
		return errcode.New(errcode.InvalidParams, op, "not an I2C instance")
	case c.Address > 0x7F:
		return errcode.New(errcode.InvalidParams, op, "address is not 7-bit")
	case c.Buffer.Size > MaxTransfer:
		return errcode.New(errcode.InvalidParams, op, "transfer longer than 255 bytes")
	}
	return lpbam.CheckBuffer(op, c.Buffer, dma.Byte)
}

// config stages CR1 off, TIMINGR, CR1 with PE and the DMA enable, then CR2
// which issues START.
func (c Config) config(f *lpbam.Frame, read bool) error {
	cr1 := cr1PE.Flag(0, true)
	cr1 = cr1TXDMAEN.Flag(cr1, !read)
	cr1 = cr1RXDMAEN.Flag(cr1, read)

	cr2 := cr2SADD.Set(0, uint32(c.Address)<<1)
	cr2 = cr2RDWRN.Flag(cr2, read)
	cr2 = cr2NBYTES.Set(cr2, c.Buffer.Size)
	cr2 = cr2AUTOEND.Flag(cr2, !c.NoStop)
	cr2 = cr2START.Flag(cr2, true)

	if err := f.WriteRegisters(c.Inst.Reg(regCR1), 0); err != nil {
		return err
	}
	if err := f.WriteRegisters(c.Inst.Reg(regTIMINGR), c.Timing); err != nil {
		return err
	}
	if err := f.WriteRegisters(c.Inst.Reg(regCR1), cr1); err != nil {
		return err
	}
	return f.WriteRegisters(c.Inst.Reg(regCR2), cr2)
}

var layout = lpbam.Layout{ConfigNodes: 4, ConfigWords: 4, DataNodes: 1}

// MasterTransmit writes Buffer to the target. The data node carries the
// trigger.
type MasterTransmit struct{ Config }

func (m *MasterTransmit) Name() string              { return "i2c.master_transmit" }
func (m *MasterTransmit) Instance() periph.Instance { return m.Inst }
func (m *MasterTransmit) TriggerNode() int          { return 4 }
func (m *MasterTransmit) Layout() lpbam.Layout      { return layout }

func (m *MasterTransmit) WriteConfigImage(f *lpbam.Frame) error {
	if err := m.validate(m.Name()); err != nil {
		return err
	}
	return m.config(f, false)
}

func (m *MasterTransmit) WriteDataImage(f *lpbam.Frame) error {
	if err := m.validate(m.Name()); err != nil {
		return err
	}
	return f.Transfer(dma.Transfer{
		Src:         m.Buffer.Addr,
		Dst:         m.Inst.Reg(regTXDR),
		SrcWidth:    dma.Byte,
		DstWidth:    dma.Byte,
		SrcInc:      true,
		Size:        m.Buffer.Size,
		Request:     periph.ReqI2C3TX,
		DestRequest: true,
	})
}

// MasterReceive reads Buffer.Size bytes from the target. The data node
// carries the trigger.
type MasterReceive struct{ Config }

func (m *MasterReceive) Name() string              { return "i2c.master_receive" }
func (m *MasterReceive) Instance() periph.Instance { return m.Inst }
func (m *MasterReceive) TriggerNode() int          { return 4 }
func (m *MasterReceive) Layout() lpbam.Layout      { return layout }

func (m *MasterReceive) WriteConfigImage(f *lpbam.Frame) error {
	if err := m.validate(m.Name()); err != nil {
		return err
	}
	return m.config(f, true)
}

func (m *MasterReceive) WriteDataImage(f *lpbam.Frame) error {
	if err := m.validate(m.Name()); err != nil {
		return err
	}
	return f.Transfer(dma.Transfer{
		Src:      m.Inst.Reg(regRXDR),
		Dst:      m.Buffer.Addr,
		SrcWidth: dma.Byte,
		DstWidth: dma.Byte,
		DstInc:   true,
		Size:     m.Buffer.Size,
		Request:  periph.ReqI2C3RX,
	})
}

func decodeConfig(p lpbam.Params) (Config, error) {
	var c Config
	var err error
	if c.Inst, err = p.Instance("instance", periph.FamilyI2C); err != nil {
		return c, err
	}
	addr, err := p.UintMax("address", 0, 0x7F)
	if err != nil {
		return c, err
	}
	c.Address = uint8(addr)
	// 100 kHz from a 16 MHz kernel clock.
	if c.Timing, err = p.Uint("timing", 0x00303D5B); err != nil {
		return c, err
	}
	if c.NoStop, err = p.Bool("no_stop", false); err != nil {
		return c, err
	}
	c.Buffer, err = p.Region("buffer")
	return c, err
}

func init() {
	lpbam.Register("i2c.master_transmit", func(p lpbam.Params) (lpbam.Operation, error) {
		c, err := decodeConfig(p)
		if err != nil {
			return nil, err
		}
		return &MasterTransmit{c}, nil
	})
	lpbam.Register("i2c.master_receive", func(p lpbam.Params) (lpbam.Operation, error) {
		c, err := decodeConfig(p)
		if err != nil {
			return nil, err
		}
		return &MasterReceive{c}, nil
	})
}

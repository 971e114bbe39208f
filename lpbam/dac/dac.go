// Package dac builds DAC1 waveform sequences.
//
// DAC1 control registers are shared by both channels and DMA cannot
// read-modify-write, so CR and MCR images written here carry only the
// selected channel's fields; the other channel's fields are zero.
package dac

import (
	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/lpbam"
	"lpbam-go/periph"
	"lpbam-go/x/mathx"
)

const (
	regCR      = 0x00
	regDHR12R1 = 0x08
	regDHR12R2 = 0x14
	regMCR     = 0x3C
	regSHSR1   = 0x40
	regSHSR2   = 0x44
)

// CR fields of channel 1; channel 2 sits 16 bits higher.
var (
	crEN    = mathx.Bit(0)
	crTEN   = mathx.Bit(1)
	crTSEL  = mathx.Field{Shift: 2, Width: 4}
	crDMAEN = mathx.Bit(12)
)

var (
	mcrMODE     = mathx.Field{Shift: 0, Width: 3}
	shsrTSAMPLE = mathx.Field{Shift: 0, Width: 10}
)

const channelShift = 16

// Channel selects a DAC output.
type Channel uint8

const (
	Channel1 Channel = 1
	Channel2 Channel = 2
)

func (c Channel) valid() bool { return c == Channel1 || c == Channel2 }

func (c Channel) shift() uint32 {
	if c == Channel2 {
		return channelShift
	}
	return 0
}

func (c Channel) request() periph.Request {
	if c == Channel2 {
		return periph.ReqDAC1CH2
	}
	return periph.ReqDAC1CH1
}

func (c Channel) dhr() uint32 {
	if c == Channel2 {
		return regDHR12R2
	}
	return regDHR12R1
}

func (c Channel) shsr() uint32 {
	if c == Channel2 {
		return regSHSR2
	}
	return regSHSR1
}

// cr builds the CR image for channel c.
func cr(c Channel, enable, trigger bool, tsel uint8, dmaEnable bool) uint32 {
	var v uint32
	v = crEN.Flag(v, enable)
	v = crTEN.Flag(v, trigger)
	v = crTSEL.Set(v, uint32(tsel))
	v = crDMAEN.Flag(v, dmaEnable)
	return v << c.shift()
}

// Conversion streams 12-bit right-aligned samples from Buffer to a channel.
//
// Config stage: MCR mode, SHSRx sample time, CR with EN, TEN, TSEL and DMAEN.
// Data stage: one node Buffer -> DHR12Rx paced by the channel's request.
// A trigger gates the data node.
type Conversion struct {
	Inst    periph.Instance
	Channel Channel
	// Mode is the MCR MODE code (0 normal with buffer .. 7 sample and hold).
	Mode uint8
	// SampleTime is the SHSRx value used in sample-and-hold modes.
	SampleTime uint16
	// TriggerSelect programs TSELx; the DAC is software triggered when
	// ExternalTrigger is false.
	ExternalTrigger bool
	TriggerSelect   uint8
	Buffer          dma.Region
}

func (c *Conversion) Name() string              { return "dac.conversion" }
func (c *Conversion) Instance() periph.Instance { return c.Inst }
func (c *Conversion) TriggerNode() int          { return 3 }
func (c *Conversion) Layout() lpbam.Layout {
	return lpbam.Layout{ConfigNodes: 3, ConfigWords: 3, DataNodes: 1}
}

func (c *Conversion) validate() error {
	switch {
	case !c.Inst.Is(periph.FamilyDAC):
		return errcode.New(errcode.InvalidParams, c.Name(), "not a DAC instance")
	case !c.Channel.valid():
		return errcode.New(errcode.InvalidParams, c.Name(), "channel")
	case !mcrMODE.Fits(uint32(c.Mode)) || !shsrTSAMPLE.Fits(uint32(c.SampleTime)):
		return errcode.New(errcode.InvalidParams, c.Name(), "mode or sample time")
	case !crTSEL.Fits(uint32(c.TriggerSelect)):
		return errcode.New(errcode.InvalidParams, c.Name(), "trigger select")
	}
	return nil
}

func (c *Conversion) WriteConfigImage(f *lpbam.Frame) error {
	if err := c.validate(); err != nil {
		return err
	}
	mcr := mcrMODE.Set(0, uint32(c.Mode)) << c.Channel.shift()
	if err := f.WriteRegisters(c.Inst.Reg(regMCR), mcr); err != nil {
		return err
	}
	if err := f.WriteRegisters(c.Inst.Reg(c.Channel.shsr()), uint32(c.SampleTime)); err != nil {
		return err
	}
	return f.WriteRegisters(c.Inst.Reg(regCR), cr(c.Channel, true, c.ExternalTrigger, c.TriggerSelect, true))
}

func (c *Conversion) WriteDataImage(f *lpbam.Frame) error {
	if err := c.validate(); err != nil {
		return err
	}
	if err := lpbam.CheckBuffer(c.Name(), c.Buffer, dma.HalfWord); err != nil {
		return err
	}
	return f.Transfer(dma.Transfer{
		Src:         c.Buffer.Addr,
		Dst:         c.Inst.Reg(c.Channel.dhr()),
		SrcWidth:    dma.HalfWord,
		DstWidth:    dma.HalfWord,
		SrcInc:      true,
		Size:        c.Buffer.Size,
		Request:     c.Channel.request(),
		DestRequest: true,
	})
}

// Start enables a channel without DMA requests.
func Start(inst periph.Instance, ch Channel) lpbam.Operation {
	return &lpbam.Registers{Op: "dac.start", Inst: inst, Family: periph.FamilyDAC, Runs: []lpbam.Run{
		{Offset: regCR, Values: []uint32{cr(ch, true, false, 0, false)}},
	}}
}

// Stop clears CR, disabling both channels.
func Stop(inst periph.Instance) lpbam.Operation {
	return &lpbam.Registers{Op: "dac.stop", Inst: inst, Family: periph.FamilyDAC, Runs: []lpbam.Run{
		{Offset: regCR, Values: []uint32{0}},
	}}
}

func decodeChannel(p lpbam.Params) (Channel, error) {
	v, err := p.Uint("channel", 1)
	if err != nil {
		return 0, err
	}
	ch := Channel(v)
	if !ch.valid() {
		return 0, errcode.New(errcode.InvalidParams, "dac", "channel must be 1 or 2")
	}
	return ch, nil
}

func init() {
	lpbam.Register("dac.conversion", func(p lpbam.Params) (lpbam.Operation, error) {
		c := &Conversion{}
		var err error
		if c.Inst, err = p.Instance("instance", periph.FamilyDAC); err != nil {
			return nil, err
		}
		if c.Channel, err = decodeChannel(p); err != nil {
			return nil, err
		}
		mode, err := p.UintMax("mode", 0, 7)
		if err != nil {
			return nil, err
		}
		c.Mode = uint8(mode)
		st, err := p.UintMax("sample_time", 0, 0x3FF)
		if err != nil {
			return nil, err
		}
		c.SampleTime = uint16(st)
		c.ExternalTrigger = p.Has("trigger_select")
		tsel, err := p.UintMax("trigger_select", 0, 15)
		if err != nil {
			return nil, err
		}
		c.TriggerSelect = uint8(tsel)
		if c.Buffer, err = p.Region("buffer"); err != nil {
			return nil, err
		}
		return c, nil
	})
	lpbam.Register("dac.start", func(p lpbam.Params) (lpbam.Operation, error) {
		inst, err := p.Instance("instance", periph.FamilyDAC)
		if err != nil {
			return nil, err
		}
		ch, err := decodeChannel(p)
		if err != nil {
			return nil, err
		}
		return Start(inst, ch), nil
	})
	lpbam.Register("dac.stop", func(p lpbam.Params) (lpbam.Operation, error) {
		inst, err := p.Instance("instance", periph.FamilyDAC)
		if err != nil {
			return nil, err
		}
		return Stop(inst), nil
	})
}

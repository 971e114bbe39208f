package adc

import (
	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/lpbam"
	"lpbam-go/periph"
)

// Resolution of a conversion, encoded as CFGR1.RES.
type Resolution uint8

const (
	Res12 Resolution = iota
	Res10
	Res8
	Res6
)

func parseResolution(bits uint32) (Resolution, bool) {
	switch bits {
	case 0, 12:
		return Res12, true
	case 10:
		return Res10, true
	case 8:
		return Res8, true
	case 6:
		return Res6, true
	}
	return 0, false
}

// Conversion configures a channel sequence and moves every result from DR
// into Buffer.
//
// Config stage: CFGR1, CFGR2 and SMPR in one node, CHSELR, then CR.ADSTART.
// Data stage: one node DR -> Buffer paced by the ADC4 request.
// A trigger gates the data node.
type Conversion struct {
	Inst       periph.Instance
	Channels   uint32 // CHSELR bitmap
	Resolution Resolution
	SampleTime uint8 // SMP1 code 0..7
	Continuous bool
	// Circular keeps the ADC DMA requests running after the buffer wraps.
	Circular bool
	// ExtTrigger and ExtEdge program EXTSEL/EXTEN; ExtEdge 0 is software start.
	ExtTrigger uint8
	ExtEdge    uint8
	// LowFrequency sets CFGR2.LFTRIG for slow kernel clocks.
	LowFrequency bool
	Buffer       dma.Region
}

func (c *Conversion) Name() string              { return "adc.conversion" }
func (c *Conversion) Instance() periph.Instance { return c.Inst }
func (c *Conversion) TriggerNode() int          { return 3 }

func (c *Conversion) Layout() lpbam.Layout {
	return lpbam.Layout{ConfigNodes: 3, ConfigWords: 5, DataNodes: 1}
}

func (c *Conversion) validate() error {
	switch {
	case !c.Inst.Is(periph.FamilyADC):
		return errcode.New(errcode.InvalidParams, c.Name(), "not an ADC instance")
	case c.Channels == 0 || c.Channels&^channelMask != 0:
		return errcode.New(errcode.InvalidParams, c.Name(), "channel selection")
	case c.Resolution > Res6:
		return errcode.New(errcode.InvalidParams, c.Name(), "resolution")
	case !smprSMP1.Fits(uint32(c.SampleTime)):
		return errcode.New(errcode.InvalidParams, c.Name(), "sample time")
	case !cfgr1EXTSEL.Fits(uint32(c.ExtTrigger)) || !cfgr1EXTEN.Fits(uint32(c.ExtEdge)):
		return errcode.New(errcode.InvalidParams, c.Name(), "external trigger")
	}
	return nil
}

func (c *Conversion) cfgr1() uint32 {
	var v uint32
	v = cfgr1DMAEN.Flag(v, true)
	v = cfgr1DMACFG.Flag(v, c.Circular)
	v = cfgr1RES.Set(v, uint32(c.Resolution))
	v = cfgr1ALIGN.Flag(v, false)
	v = cfgr1EXTSEL.Set(v, uint32(c.ExtTrigger))
	v = cfgr1EXTEN.Set(v, uint32(c.ExtEdge))
	v = cfgr1OVRMOD.Flag(v, true)
	v = cfgr1CONT.Flag(v, c.Continuous)
	return cfgr1WAIT.Flag(v, false)
}

func (c *Conversion) WriteConfigImage(f *lpbam.Frame) error {
	if err := c.validate(); err != nil {
		return err
	}
	cfgr2 := cfgr2LFTRIG.Flag(0, c.LowFrequency)
	smpr := smprSMP1.Set(0, uint32(c.SampleTime))
	if err := f.WriteRegisters(c.Inst.Reg(regCFGR1), c.cfgr1(), cfgr2, smpr); err != nil {
		return err
	}
	if err := f.WriteRegisters(c.Inst.Reg(regCHSELR), c.Channels); err != nil {
		return err
	}
	return f.WriteRegisters(c.Inst.Reg(regCR), crADSTART.Flag(crADEN.Flag(0, true), true))
}

func (c *Conversion) WriteDataImage(f *lpbam.Frame) error {
	if err := c.validate(); err != nil {
		return err
	}
	if err := lpbam.CheckBuffer(c.Name(), c.Buffer, dma.HalfWord); err != nil {
		return err
	}
	return f.Transfer(dma.Transfer{
		Src:      c.Inst.Reg(regDR),
		Dst:      c.Buffer.Addr,
		SrcWidth: dma.HalfWord,
		DstWidth: dma.HalfWord,
		DstInc:   true,
		Size:     c.Buffer.Size,
		Request:  periph.ReqADC4,
	})
}

// Start sets CR.ADSTART on an already configured ADC.
func Start(inst periph.Instance) lpbam.Operation {
	return &lpbam.Registers{Op: "adc.start", Inst: inst, Family: periph.FamilyADC, Runs: []lpbam.Run{
		{Offset: regCR, Values: []uint32{crADSTART.Flag(crADEN.Flag(0, true), true)}},
	}}
}

// Stop sets CR.ADSTP, halting an ongoing conversion sequence.
func Stop(inst periph.Instance) lpbam.Operation {
	return &lpbam.Registers{Op: "adc.stop", Inst: inst, Family: periph.FamilyADC, Runs: []lpbam.Run{
		{Offset: regCR, Values: []uint32{crADSTP.Flag(crADEN.Flag(0, true), true)}},
	}}
}

func instanceOnly(name string, mk func(periph.Instance) lpbam.Operation) lpbam.Factory {
	return func(p lpbam.Params) (lpbam.Operation, error) {
		inst, err := p.Instance("instance", periph.FamilyADC)
		if err != nil {
			return nil, errcode.Wrap(errcode.InvalidParams, name, err)
		}
		return mk(inst), nil
	}
}

func newConversion(p lpbam.Params) (lpbam.Operation, error) {
	c := &Conversion{}
	var err error
	if c.Inst, err = p.Instance("instance", periph.FamilyADC); err != nil {
		return nil, err
	}
	if c.Channels, err = p.Uint("channels", 0); err != nil {
		return nil, err
	}
	// "channel" is shorthand for a single-bit selection.
	if p.Has("channel") {
		ch, err := p.UintMax("channel", 0, 23)
		if err != nil {
			return nil, err
		}
		c.Channels |= 1 << ch
	}
	bits, err := p.Uint("resolution", 12)
	if err != nil {
		return nil, err
	}
	res, ok := parseResolution(bits)
	if !ok {
		return nil, errcode.New(errcode.InvalidParams, "adc.conversion", "resolution must be 12, 10, 8 or 6")
	}
	c.Resolution = res
	st, err := p.UintMax("sample_time", 0, 7)
	if err != nil {
		return nil, err
	}
	c.SampleTime = uint8(st)
	ext, err := p.UintMax("ext_trigger", 0, 7)
	if err != nil {
		return nil, err
	}
	c.ExtTrigger = uint8(ext)
	edge, err := p.UintMax("ext_edge", 0, 3)
	if err != nil {
		return nil, err
	}
	c.ExtEdge = uint8(edge)
	if c.Continuous, err = p.Bool("continuous", false); err != nil {
		return nil, err
	}
	if c.Circular, err = p.Bool("circular", false); err != nil {
		return nil, err
	}
	if c.LowFrequency, err = p.Bool("low_frequency", false); err != nil {
		return nil, err
	}
	if c.Buffer, err = p.Region("buffer"); err != nil {
		return nil, err
	}
	return c, nil
}

func init() {
	lpbam.Register("adc.conversion", newConversion)
	lpbam.Register("adc.start", instanceOnly("adc.start", Start))
	lpbam.Register("adc.stop", instanceOnly("adc.stop", Stop))
}

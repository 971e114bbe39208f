// Package comp builds comparator sequences for COMP1 and COMP2.
package comp

import (
	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/lpbam"
	"lpbam-go/periph"
	"lpbam-go/x/mathx"
)

// Each comparator is a single CSR at its instance base.
const regCSR = 0x00

var (
	csrEN       = mathx.Bit(0)
	csrINMSEL   = mathx.Field{Shift: 4, Width: 4}
	csrINPSEL   = mathx.Field{Shift: 8, Width: 2}
	csrPOLARITY = mathx.Bit(15)
	csrHYST     = mathx.Field{Shift: 16, Width: 2}
	csrPWRMODE  = mathx.Field{Shift: 18, Width: 2}
	// csrVALUE is the read-only output level.
	csrVALUE = mathx.Bit(30)
)

// Config is the comparator setup shared by every operation.
type Config struct {
	Inst       periph.Instance
	InputPlus  uint8 // INPSEL
	InputMinus uint8 // INMSEL
	Hysteresis uint8
	PowerMode  uint8
	Invert     bool
}

func (c Config) validate(op string) error {
	switch {
	case !c.Inst.Is(periph.FamilyCOMP):
		return errcode.New(errcode.InvalidParams, op, "not a comparator instance")
	case !csrINPSEL.Fits(uint32(c.InputPlus)) || !csrINMSEL.Fits(uint32(c.InputMinus)):
		return errcode.New(errcode.InvalidParams, op, "input selection")
	case !csrHYST.Fits(uint32(c.Hysteresis)) || !csrPWRMODE.Fits(uint32(c.PowerMode)):
		return errcode.New(errcode.InvalidParams, op, "hysteresis or power mode")
	}
	return nil
}

// CSR returns the register image with EN set as given.
func (c Config) CSR(enable bool) uint32 {
	var v uint32
	v = csrINMSEL.Set(v, uint32(c.InputMinus))
	v = csrINPSEL.Set(v, uint32(c.InputPlus))
	v = csrPOLARITY.Flag(v, c.Invert)
	v = csrHYST.Set(v, uint32(c.Hysteresis))
	v = csrPWRMODE.Set(v, uint32(c.PowerMode))
	return csrEN.Flag(v, enable)
}

// Start configures the comparator with EN clear, then enables it in the data
// stage. A trigger gates the enable.
type Start struct{ Config }

func (s *Start) Name() string              { return "comp.start" }
func (s *Start) Instance() periph.Instance { return s.Inst }
func (s *Start) TriggerNode() int          { return 1 }
func (s *Start) Layout() lpbam.Layout {
	return lpbam.Layout{ConfigNodes: 1, ConfigWords: 1, DataNodes: 1, DataWords: 1}
}

func (s *Start) WriteConfigImage(f *lpbam.Frame) error {
	if err := s.validate(s.Name()); err != nil {
		return err
	}
	return f.WriteRegisters(s.Inst.Reg(regCSR), s.CSR(false))
}

func (s *Start) WriteDataImage(f *lpbam.Frame) error {
	if err := s.validate(s.Name()); err != nil {
		return err
	}
	return f.WriteRegisters(s.Inst.Reg(regCSR), s.CSR(true))
}

// Stop writes the configuration back with EN clear.
func Stop(c Config) lpbam.Operation {
	return &lpbam.Registers{Op: "comp.stop", Inst: c.Inst, Family: periph.FamilyCOMP, Runs: []lpbam.Run{
		{Offset: regCSR, Values: []uint32{c.CSR(false)}},
	}}
}

// OutputLevel enables the comparator and samples CSR into Buffer, one word
// per transfer. Bit 30 of every sample is the output level. The data node
// carries the trigger; ModeBurst takes one sample per trigger event.
type OutputLevel struct {
	Config
	Buffer dma.Region
}

func (o *OutputLevel) Name() string              { return "comp.output_level" }
func (o *OutputLevel) Instance() periph.Instance { return o.Inst }
func (o *OutputLevel) TriggerNode() int          { return 1 }
func (o *OutputLevel) Layout() lpbam.Layout {
	return lpbam.Layout{ConfigNodes: 1, ConfigWords: 1, DataNodes: 1}
}

func (o *OutputLevel) WriteConfigImage(f *lpbam.Frame) error {
	if err := o.validate(o.Name()); err != nil {
		return err
	}
	return f.WriteRegisters(o.Inst.Reg(regCSR), o.CSR(true))
}

func (o *OutputLevel) WriteDataImage(f *lpbam.Frame) error {
	if err := o.validate(o.Name()); err != nil {
		return err
	}
	if err := lpbam.CheckBuffer(o.Name(), o.Buffer, dma.Word32); err != nil {
		return err
	}
	return f.Transfer(dma.Transfer{
		Src:      o.Inst.Reg(regCSR),
		Dst:      o.Buffer.Addr,
		SrcWidth: dma.Word32,
		DstWidth: dma.Word32,
		DstInc:   true,
		Size:     o.Buffer.Size,
		Request:  periph.NoRequest,
	})
}

// Level extracts the output level from a sampled CSR word.
func Level(sample uint32) bool { return csrVALUE.On(sample) }

func decodeConfig(p lpbam.Params) (Config, error) {
	var c Config
	var err error
	if c.Inst, err = p.Instance("instance", periph.FamilyCOMP); err != nil {
		return c, err
	}
	fields := []struct {
		key string
		max uint32
		dst *uint8
	}{
		{"input_plus", 3, &c.InputPlus},
		{"input_minus", 15, &c.InputMinus},
		{"hysteresis", 3, &c.Hysteresis},
		{"power_mode", 3, &c.PowerMode},
	}
	for _, fl := range fields {
		v, err := p.UintMax(fl.key, 0, fl.max)
		if err != nil {
			return c, err
		}
		*fl.dst = uint8(v)
	}
	c.Invert, err = p.Bool("invert", false)
	return c, err
}

func init() {
	lpbam.Register("comp.start", func(p lpbam.Params) (lpbam.Operation, error) {
		c, err := decodeConfig(p)
		if err != nil {
			return nil, err
		}
		return &Start{c}, nil
	})
	lpbam.Register("comp.stop", func(p lpbam.Params) (lpbam.Operation, error) {
		c, err := decodeConfig(p)
		if err != nil {
			return nil, err
		}
		return Stop(c), nil
	})
	lpbam.Register("comp.output_level", func(p lpbam.Params) (lpbam.Operation, error) {
		c, err := decodeConfig(p)
		if err != nil {
			return nil, err
		}
		buf, err := p.Region("buffer")
		if err != nil {
			return nil, err
		}
		return &OutputLevel{Config: c, Buffer: buf}, nil
	})
}

// Package opamp builds operational amplifier sequences for OPAMP1 and OPAMP2.
package opamp

import (
	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/lpbam"
	"lpbam-go/periph"
	"lpbam-go/x/mathx"
)

const regCSR = 0x00

var (
	csrOPAEN   = mathx.Bit(0)
	csrOPALPM  = mathx.Bit(1)
	csrOPAMODE = mathx.Field{Shift: 2, Width: 2}
	csrPGAGAIN = mathx.Field{Shift: 4, Width: 2}
	csrVMSEL   = mathx.Field{Shift: 8, Width: 2}
	csrVPSEL   = mathx.Bit(10)
)

// Mode is the OPAMODE code.
type Mode uint8

const (
	Standalone Mode = 0
	PGA        Mode = 2
	Follower   Mode = 3
)

// Config describes one amplifier setup.
type Config struct {
	Inst       periph.Instance
	Mode       Mode
	Gain       uint8 // PGA_GAIN: x2, x4, x8, x16
	InputMinus uint8 // VM_SEL
	// DACInput routes the DAC output to the non-inverting input.
	DACInput bool
	LowPower bool
}

func (c Config) validate(op string) error {
	switch {
	case !c.Inst.Is(periph.FamilyOPAMP):
		return errcode.New(errcode.InvalidParams, op, "not an OPAMP instance")
	case c.Mode != Standalone && c.Mode != PGA && c.Mode != Follower:
		return errcode.New(errcode.InvalidParams, op, "mode")
	case !csrPGAGAIN.Fits(uint32(c.Gain)) || !csrVMSEL.Fits(uint32(c.InputMinus)):
		return errcode.New(errcode.InvalidParams, op, "gain or input selection")
	}
	return nil
}

// CSR returns the register image with OPAEN as given.
func (c Config) CSR(enable bool) uint32 {
	var v uint32
	v = csrOPALPM.Flag(v, c.LowPower)
	v = csrOPAMODE.Set(v, uint32(c.Mode))
	v = csrPGAGAIN.Set(v, uint32(c.Gain))
	v = csrVMSEL.Set(v, uint32(c.InputMinus))
	v = csrVPSEL.Flag(v, c.DACInput)
	return csrOPAEN.Flag(v, enable)
}

// Start writes the mode with OPAEN clear, then enables the amplifier in the
// data stage. A trigger gates the enable.
type Start struct{ Config }

func (s *Start) Name() string              { return "opamp.start" }
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

// Stop writes the configuration back with OPAEN clear.
func Stop(c Config) lpbam.Operation {
	return &lpbam.Registers{Op: "opamp.stop", Inst: c.Inst, Family: periph.FamilyOPAMP, Runs: []lpbam.Run{
		{Offset: regCSR, Values: []uint32{c.CSR(false)}},
	}}
}

// GainSequence copies a buffer of complete CSR images into CSR, one word
// per transfer. With a ModeBurst trigger each event applies the next image.
// It has no config stage.
type GainSequence struct {
	Inst   periph.Instance
	Buffer dma.Region
}

func (g *GainSequence) Name() string              { return "opamp.gain_sequence" }
func (g *GainSequence) Instance() periph.Instance { return g.Inst }
func (g *GainSequence) TriggerNode() int          { return 0 }
func (g *GainSequence) Layout() lpbam.Layout      { return lpbam.Layout{DataNodes: 1} }

func (g *GainSequence) WriteConfigImage(*lpbam.Frame) error { return nil }

func (g *GainSequence) WriteDataImage(f *lpbam.Frame) error {
	if !g.Inst.Is(periph.FamilyOPAMP) {
		return errcode.New(errcode.InvalidParams, g.Name(), "not an OPAMP instance")
	}
	if err := lpbam.CheckBuffer(g.Name(), g.Buffer, dma.Word32); err != nil {
		return err
	}
	return f.Transfer(dma.Transfer{
		Src:      g.Buffer.Addr,
		Dst:      g.Inst.Reg(regCSR),
		SrcWidth: dma.Word32,
		DstWidth: dma.Word32,
		SrcInc:   true,
		Size:     g.Buffer.Size,
		Request:  periph.NoRequest,
	})
}

// GainImages returns the CSR words for stepping c through gains, for
// filling a GainSequence buffer.
func GainImages(c Config, gains ...uint8) []uint32 {
	out := make([]uint32, 0, len(gains))
	for _, g := range gains {
		c.Gain = g
		out = append(out, c.CSR(true))
	}
	return out
}

func decodeConfig(p lpbam.Params) (Config, error) {
	var c Config
	var err error
	if c.Inst, err = p.Instance("instance", periph.FamilyOPAMP); err != nil {
		return c, err
	}
	mode, err := p.String("mode", "standalone")
	if err != nil {
		return c, err
	}
	switch mode {
	case "standalone":
		c.Mode = Standalone
	case "pga":
		c.Mode = PGA
	case "follower":
		c.Mode = Follower
	default:
		return c, errcode.New(errcode.InvalidParams, "opamp", "unknown mode "+mode)
	}
	gain, err := p.UintMax("gain", 0, 3)
	if err != nil {
		return c, err
	}
	c.Gain = uint8(gain)
	vm, err := p.UintMax("input_minus", 0, 3)
	if err != nil {
		return c, err
	}
	c.InputMinus = uint8(vm)
	if c.DACInput, err = p.Bool("dac_input", false); err != nil {
		return c, err
	}
	c.LowPower, err = p.Bool("low_power", false)
	return c, err
}

func init() {
	lpbam.Register("opamp.start", func(p lpbam.Params) (lpbam.Operation, error) {
		c, err := decodeConfig(p)
		if err != nil {
			return nil, err
		}
		return &Start{c}, nil
	})
	lpbam.Register("opamp.stop", func(p lpbam.Params) (lpbam.Operation, error) {
		c, err := decodeConfig(p)
		if err != nil {
			return nil, err
		}
		return Stop(c), nil
	})
	lpbam.Register("opamp.gain_sequence", func(p lpbam.Params) (lpbam.Operation, error) {
		inst, err := p.Instance("instance", periph.FamilyOPAMP)
		if err != nil {
			return nil, err
		}
		buf, err := p.Region("buffer")
		if err != nil {
			return nil, err
		}
		return &GainSequence{Inst: inst, Buffer: buf}, nil
	})
}

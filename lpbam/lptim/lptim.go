package lptim

import (
	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/lpbam"
	"lpbam-go/periph"
)

func checkInstance(op string, inst periph.Instance) error {
	if !inst.Is(periph.FamilyLPTIM) {
		return errcode.New(errcode.InvalidParams, op, "not an LPTIM instance")
	}
	return nil
}

func updateRequest(inst periph.Instance) periph.Request {
	if inst == periph.LPTIM3 {
		return periph.ReqLPTIM3UE
	}
	return periph.ReqLPTIM1UE
}

func captureRequest(inst periph.Instance) periph.Request {
	if inst == periph.LPTIM3 {
		return periph.ReqLPTIM3IC1
	}
	return periph.ReqLPTIM1IC1
}

// Start programs a PWM period and starts counting.
//
// Config stage: CFGR, CR.ENABLE, CCR1 and ARR in one node, RCR.
// Data stage: CR with CNTSTRT, or SNGSTRT for one-shot. A trigger gates the
// start.
type Start struct {
	Inst      periph.Instance
	Prescaler uint8 // PRESC code, divide by 1 << Prescaler
	Period    uint16
	Compare   uint16
	Repeat    uint8
	OneShot   bool
	// Preload updates ARR and CCR1 at the end of the period.
	Preload bool
	Invert  bool
}

func (s *Start) Name() string              { return "lptim.start" }
func (s *Start) Instance() periph.Instance { return s.Inst }
func (s *Start) TriggerNode() int          { return 4 }
func (s *Start) Layout() lpbam.Layout {
	return lpbam.Layout{ConfigNodes: 4, ConfigWords: 5, DataNodes: 1, DataWords: 1}
}

func (s *Start) validate() error {
	if err := checkInstance(s.Name(), s.Inst); err != nil {
		return err
	}
	switch {
	case !cfgrPRESC.Fits(uint32(s.Prescaler)):
		return errcode.New(errcode.InvalidParams, s.Name(), "prescaler")
	case s.Period == 0 || s.Compare > s.Period:
		return errcode.New(errcode.InvalidParams, s.Name(), "compare must not exceed a non-zero period")
	}
	return nil
}

func (s *Start) WriteConfigImage(f *lpbam.Frame) error {
	if err := s.validate(); err != nil {
		return err
	}
	var cfgr uint32
	cfgr = cfgrCKSEL.Flag(cfgr, false)
	cfgr = cfgrPRESC.Set(cfgr, uint32(s.Prescaler))
	cfgr = cfgrPRELOAD.Flag(cfgr, s.Preload)
	cfgr = cfgrWAVPOL.Flag(cfgr, s.Invert)
	if err := f.WriteRegisters(s.Inst.Reg(regCFGR), cfgr); err != nil {
		return err
	}
	if err := f.WriteRegisters(s.Inst.Reg(regCR), crENABLE.Flag(0, true)); err != nil {
		return err
	}
	if err := f.WriteRegisters(s.Inst.Reg(regCCR1), uint32(s.Compare), uint32(s.Period)); err != nil {
		return err
	}
	return f.WriteRegisters(s.Inst.Reg(regRCR), uint32(s.Repeat))
}

func (s *Start) WriteDataImage(f *lpbam.Frame) error {
	if err := s.validate(); err != nil {
		return err
	}
	cr := crENABLE.Flag(0, true)
	if s.OneShot {
		cr = crSNGSTRT.Flag(cr, true)
	} else {
		cr = crCNTSTRT.Flag(cr, true)
	}
	return f.WriteRegisters(s.Inst.Reg(regCR), cr)
}

// Stop clears CR.ENABLE.
func Stop(inst periph.Instance) lpbam.Operation {
	return &lpbam.Registers{Op: "lptim.stop", Inst: inst, Family: periph.FamilyLPTIM, Runs: []lpbam.Run{
		{Offset: regCR, Values: []uint32{0}},
	}}
}

// PWMUpdate loads a new CCR1 value from Buffer at every update event.
//
// Config stage: DIER.UEDE. Data stage: Buffer -> CCR1 paced by the UE
// request.
type PWMUpdate struct {
	Inst   periph.Instance
	Buffer dma.Region
}

func (p *PWMUpdate) Name() string              { return "lptim.pwm_update" }
func (p *PWMUpdate) Instance() periph.Instance { return p.Inst }
func (p *PWMUpdate) TriggerNode() int          { return 1 }
func (p *PWMUpdate) Layout() lpbam.Layout {
	return lpbam.Layout{ConfigNodes: 1, ConfigWords: 1, DataNodes: 1}
}

func (p *PWMUpdate) WriteConfigImage(f *lpbam.Frame) error {
	if err := checkInstance(p.Name(), p.Inst); err != nil {
		return err
	}
	return f.WriteRegisters(p.Inst.Reg(regDIER), dierUEDE.Flag(0, true))
}

func (p *PWMUpdate) WriteDataImage(f *lpbam.Frame) error {
	if err := checkInstance(p.Name(), p.Inst); err != nil {
		return err
	}
	if err := lpbam.CheckBuffer(p.Name(), p.Buffer, dma.HalfWord); err != nil {
		return err
	}
	return f.Transfer(dma.Transfer{
		Src:         p.Buffer.Addr,
		Dst:         p.Inst.Reg(regCCR1),
		SrcWidth:    dma.HalfWord,
		DstWidth:    dma.HalfWord,
		SrcInc:      true,
		Size:        p.Buffer.Size,
		Request:     updateRequest(p.Inst),
		DestRequest: true,
	})
}

// InputCapture stores channel 1 capture values into Buffer.
//
// Config stage: DIER.CC1DE, CCMR1 capture setup. Data stage: CCR1 -> Buffer
// paced by the IC1 request.
type InputCapture struct {
	Inst      periph.Instance
	Edge      uint8 // CC1P: 0 rising, 1 falling, 3 both
	Prescaler uint8
	Filter    uint8
	Buffer    dma.Region
}

func (c *InputCapture) Name() string              { return "lptim.input_capture" }
func (c *InputCapture) Instance() periph.Instance { return c.Inst }
func (c *InputCapture) TriggerNode() int          { return 2 }
func (c *InputCapture) Layout() lpbam.Layout {
	return lpbam.Layout{ConfigNodes: 2, ConfigWords: 2, DataNodes: 1}
}

func (c *InputCapture) WriteConfigImage(f *lpbam.Frame) error {
	if err := checkInstance(c.Name(), c.Inst); err != nil {
		return err
	}
	if !ccmr1CC1P.Fits(uint32(c.Edge)) || !ccmr1IC1PSC.Fits(uint32(c.Prescaler)) || !ccmr1IC1F.Fits(uint32(c.Filter)) {
		return errcode.New(errcode.InvalidParams, c.Name(), "capture setup")
	}
	if err := f.WriteRegisters(c.Inst.Reg(regDIER), dierCC1DE.Flag(0, true)); err != nil {
		return err
	}
	var ccmr uint32
	ccmr = ccmr1CC1SEL.Flag(ccmr, true)
	ccmr = ccmr1CC1E.Flag(ccmr, true)
	ccmr = ccmr1CC1P.Set(ccmr, uint32(c.Edge))
	ccmr = ccmr1IC1PSC.Set(ccmr, uint32(c.Prescaler))
	ccmr = ccmr1IC1F.Set(ccmr, uint32(c.Filter))
	return f.WriteRegisters(c.Inst.Reg(regCCMR1), ccmr)
}

func (c *InputCapture) WriteDataImage(f *lpbam.Frame) error {
	if err := checkInstance(c.Name(), c.Inst); err != nil {
		return err
	}
	if err := lpbam.CheckBuffer(c.Name(), c.Buffer, dma.HalfWord); err != nil {
		return err
	}
	return f.Transfer(dma.Transfer{
		Src:      c.Inst.Reg(regCCR1),
		Dst:      c.Buffer.Addr,
		SrcWidth: dma.HalfWord,
		DstWidth: dma.HalfWord,
		DstInc:   true,
		Size:     c.Buffer.Size,
		Request:  captureRequest(c.Inst),
	})
}

func small(p lpbam.Params, key string, max uint32) (uint8, error) {
	v, err := p.UintMax(key, 0, max)
	return uint8(v), err
}

func init() {
	lpbam.Register("lptim.start", func(p lpbam.Params) (lpbam.Operation, error) {
		s := &Start{}
		var err error
		if s.Inst, err = p.Instance("instance", periph.FamilyLPTIM); err != nil {
			return nil, err
		}
		if s.Prescaler, err = small(p, "prescaler", 7); err != nil {
			return nil, err
		}
		if s.Repeat, err = small(p, "repeat", 0xFF); err != nil {
			return nil, err
		}
		period, err := p.UintMax("period", 0, 0xFFFF)
		if err != nil {
			return nil, err
		}
		compare, err := p.UintMax("compare", 0, 0xFFFF)
		if err != nil {
			return nil, err
		}
		s.Period, s.Compare = uint16(period), uint16(compare)
		if s.OneShot, err = p.Bool("one_shot", false); err != nil {
			return nil, err
		}
		if s.Preload, err = p.Bool("preload", false); err != nil {
			return nil, err
		}
		if s.Invert, err = p.Bool("invert", false); err != nil {
			return nil, err
		}
		return s, nil
	})
	lpbam.Register("lptim.stop", func(p lpbam.Params) (lpbam.Operation, error) {
		inst, err := p.Instance("instance", periph.FamilyLPTIM)
		if err != nil {
			return nil, err
		}
		return Stop(inst), nil
	})
	lpbam.Register("lptim.pwm_update", func(p lpbam.Params) (lpbam.Operation, error) {
		inst, err := p.Instance("instance", periph.FamilyLPTIM)
		if err != nil {
			return nil, err
		}
		buf, err := p.Region("buffer")
		if err != nil {
			return nil, err
		}
		return &PWMUpdate{Inst: inst, Buffer: buf}, nil
	})
	lpbam.Register("lptim.input_capture", func(p lpbam.Params) (lpbam.Operation, error) {
		c := &InputCapture{}
		var err error
		if c.Inst, err = p.Instance("instance", periph.FamilyLPTIM); err != nil {
			return nil, err
		}
		if c.Edge, err = small(p, "edge", 3); err != nil {
			return nil, err
		}
		if c.Prescaler, err = small(p, "prescaler", 3); err != nil {
			return nil, err
		}
		if c.Filter, err = small(p, "filter", 3); err != nil {
			return nil, err
		}
		if c.Buffer, err = p.Region("buffer"); err != nil {
			return nil, err
		}
		return c, nil
	})
}

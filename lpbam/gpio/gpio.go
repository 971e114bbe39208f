// Package gpio builds LPGPIO1 pin sequences.
package gpio

import (
	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/lpbam"
	"lpbam-go/periph"
)

// LPGPIO1 has one MODER bit per pin: 0 input, 1 output.
const (
	regMODER = 0x00
	regIDR   = 0x10
	regODR   = 0x14
	regBSRR  = 0x18
	regBRR   = 0x28
)

// BSRR returns the bit set/reset word that drives set high and reset low.
func BSRR(set, reset uint16) uint32 { return uint32(set) | uint32(reset)<<16 }

func checkInstance(op string, inst periph.Instance) error {
	if !inst.Is(periph.FamilyGPIO) {
		return errcode.New(errcode.InvalidParams, op, "not an LPGPIO instance")
	}
	return nil
}

// WritePins drives pins from a buffer of BSRR words.
//
// Config stage: MODER. Data stage: Buffer -> BSRR, one word per transfer.
// A trigger on the data node paces the pattern (ModeBurst: one word per event).
type WritePins struct {
	Inst periph.Instance
	// Outputs is the MODER image: set bits are outputs.
	Outputs uint16
	Buffer  dma.Region
}

func (w *WritePins) Name() string              { return "gpio.write_pins" }
func (w *WritePins) Instance() periph.Instance { return w.Inst }
func (w *WritePins) TriggerNode() int          { return 1 }
func (w *WritePins) Layout() lpbam.Layout {
	return lpbam.Layout{ConfigNodes: 1, ConfigWords: 1, DataNodes: 1}
}

func (w *WritePins) WriteConfigImage(f *lpbam.Frame) error {
	if err := checkInstance(w.Name(), w.Inst); err != nil {
		return err
	}
	if w.Outputs == 0 {
		return errcode.New(errcode.InvalidParams, w.Name(), "no output pins")
	}
	return f.WriteRegisters(w.Inst.Reg(regMODER), uint32(w.Outputs))
}

func (w *WritePins) WriteDataImage(f *lpbam.Frame) error {
	if err := checkInstance(w.Name(), w.Inst); err != nil {
		return err
	}
	if err := lpbam.CheckBuffer(w.Name(), w.Buffer, dma.Word32); err != nil {
		return err
	}
	return f.Transfer(dma.Transfer{
		Src:      w.Buffer.Addr,
		Dst:      w.Inst.Reg(regBSRR),
		SrcWidth: dma.Word32,
		DstWidth: dma.Word32,
		SrcInc:   true,
		Size:     w.Buffer.Size,
		Request:  periph.NoRequest,
	})
}

// ReadPins samples IDR into a buffer.
//
// Config stage: MODER. Data stage: IDR -> Buffer, one word per transfer.
type ReadPins struct {
	Inst    periph.Instance
	Outputs uint16
	Buffer  dma.Region
}

func (r *ReadPins) Name() string              { return "gpio.read_pins" }
func (r *ReadPins) Instance() periph.Instance { return r.Inst }
func (r *ReadPins) TriggerNode() int          { return 1 }
func (r *ReadPins) Layout() lpbam.Layout {
	return lpbam.Layout{ConfigNodes: 1, ConfigWords: 1, DataNodes: 1}
}

func (r *ReadPins) WriteConfigImage(f *lpbam.Frame) error {
	if err := checkInstance(r.Name(), r.Inst); err != nil {
		return err
	}
	return f.WriteRegisters(r.Inst.Reg(regMODER), uint32(r.Outputs))
}

func (r *ReadPins) WriteDataImage(f *lpbam.Frame) error {
	if err := checkInstance(r.Name(), r.Inst); err != nil {
		return err
	}
	if err := lpbam.CheckBuffer(r.Name(), r.Buffer, dma.Word32); err != nil {
		return err
	}
	return f.Transfer(dma.Transfer{
		Src:      r.Inst.Reg(regIDR),
		Dst:      r.Buffer.Addr,
		SrcWidth: dma.Word32,
		DstWidth: dma.Word32,
		DstInc:   true,
		Size:     r.Buffer.Size,
		Request:  periph.NoRequest,
	})
}

func decode(p lpbam.Params) (periph.Instance, uint16, dma.Region, error) {
	inst, err := p.Instance("instance", periph.FamilyGPIO)
	if err != nil {
		return inst, 0, dma.Region{}, err
	}
	out, err := p.UintMax("outputs", 0, 0xFFFF)
	if err != nil {
		return inst, 0, dma.Region{}, err
	}
	buf, err := p.Region("buffer")
	return inst, uint16(out), buf, err
}

func init() {
	lpbam.Register("gpio.write_pins", func(p lpbam.Params) (lpbam.Operation, error) {
		inst, out, buf, err := decode(p)
		if err != nil {
			return nil, err
		}
		return &WritePins{Inst: inst, Outputs: out, Buffer: buf}, nil
	})
	lpbam.Register("gpio.read_pins", func(p lpbam.Params) (lpbam.Operation, error) {
		inst, out, buf, err := decode(p)
		if err != nil {
			return nil, err
		}
		return &ReadPins{Inst: inst, Outputs: out, Buffer: buf}, nil
	})
}

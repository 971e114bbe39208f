package lpbam

import (
	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/periph"
	"lpbam-go/x/mathx"
)

// Run is a set of values for contiguous registers starting at Offset from the
// peripheral base.
type Run struct {
	Offset uint32
	Values []uint32
}

// Registers is a config-only operation that writes fixed register runs, one
// node per run. Stop operations and raw register pokes use it.
type Registers struct {
	Op   string
	Inst periph.Instance
	// Family, when set, restricts Inst.
	Family periph.Family
	Runs   []Run
}

func (r *Registers) Name() string              { return r.Op }
func (r *Registers) Instance() periph.Instance { return r.Inst }
func (r *Registers) TriggerNode() int          { return 0 }

func (r *Registers) Layout() Layout {
	l := Layout{ConfigNodes: len(r.Runs)}
	for _, run := range r.Runs {
		l.ConfigWords += len(run.Values)
	}
	return l
}

func (r *Registers) WriteConfigImage(f *Frame) error {
	if r.Family != periph.FamilyNone && !r.Inst.Is(r.Family) {
		return errcode.New(errcode.InvalidParams, r.Op, "not a "+r.Family.String()+" instance")
	}
	for _, run := range r.Runs {
		if err := f.WriteRegisters(r.Inst.Reg(run.Offset), run.Values...); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registers) WriteDataImage(*Frame) error { return nil }

// CheckBuffer validates a memory buffer for a transfer of width w.
func CheckBuffer(op string, buf dma.Region, w dma.Width) error {
	switch {
	case buf.Addr == 0:
		return errcode.New(errcode.InvalidParams, op, "null buffer")
	case buf.Size == 0:
		return errcode.New(errcode.InvalidParams, op, "empty buffer")
	case !dma.CBR1BNDT.Fits(buf.Size):
		return errcode.New(errcode.InvalidParams, op, "buffer larger than one block")
	case !mathx.Aligned(buf.Addr, uint32(w)) || !mathx.Aligned(buf.Size, uint32(w)):
		return errcode.New(errcode.InvalidParams, op, "buffer not aligned to the data width")
	}
	return nil
}

func init() {
	// regs.write pokes raw register runs: {instance, runs: [{offset, values}]}.
	Register("regs.write", func(p Params) (Operation, error) {
		name, err := p.String("instance", "")
		if err != nil {
			return nil, err
		}
		inst, ok := periph.ParseInstance(name)
		if !ok {
			return nil, bad("instance", "unknown instance "+name)
		}
		raw, _ := p["runs"].([]any)
		if len(raw) == 0 {
			return nil, bad("runs", "missing")
		}
		op := &Registers{Op: "regs.write", Inst: inst}
		for _, it := range raw {
			m, ok := it.(map[string]any)
			if !ok {
				return nil, bad("runs", "not a map")
			}
			sub := Params(m)
			off, err := sub.Uint("offset", 0)
			if err != nil {
				return nil, err
			}
			vals, err := sub.Uints("values")
			if err != nil {
				return nil, err
			}
			if len(vals) == 0 || !mathx.Aligned(off, 4) {
				return nil, bad("runs", "need an aligned offset and at least one value")
			}
			op.Runs = append(op.Runs, Run{Offset: off, Values: vals})
		}
		return op, nil
	})
}

package scenario

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/marcinbor85/gohex"

	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/lpbam"
	_ "lpbam-go/lpbam/adc"
	_ "lpbam-go/lpbam/comp"
	_ "lpbam-go/lpbam/dac"
	_ "lpbam-go/lpbam/dmastart"
	_ "lpbam-go/lpbam/gpio"
	_ "lpbam-go/lpbam/i2c"
	_ "lpbam-go/lpbam/lptim"
	_ "lpbam-go/lpbam/opamp"
	_ "lpbam-go/lpbam/spi"
)

// BuiltOp records one operation build.
type BuiltOp struct {
	Op     string
	Level  lpbam.Level
	Bundle *dma.Bundle
	// First is the index in the queue of the first node built.
	First int
	Nodes int
}

// Built is a scenario laid out in its arena.
type Built struct {
	Arena   *dma.Arena
	Buffers map[string]dma.Region
	Queues  map[string]*dma.Queue
	Ops     map[string][]BuiltOp
	// Order lists queue names in build order.
	Order []string
}

// Build lays out f: buffers first, then each queue in order. A queue may
// reference queues built before it.
func Build(f *File) (*Built, error) {
	a, err := dma.NewArena(uint32(f.Arena.Base), uint32(f.Arena.Size))
	if err != nil {
		return nil, fmt.Errorf("arena: %w", err)
	}
	b := &Built{
		Arena:   a,
		Buffers: map[string]dma.Region{},
		Queues:  map[string]*dma.Queue{},
		Ops:     map[string][]BuiltOp{},
	}
	for _, bs := range f.Buffers {
		r, err := a.Alloc(uint32(bs.Size), uint32(bs.Align))
		if err != nil {
			return nil, fmt.Errorf("buffer %s: %w", bs.Name, err)
		}
		for i, v := range bs.Init {
			if !a.Write32(r.Addr+uint32(i)*4, uint32(v)) {
				return nil, fmt.Errorf("buffer %s: %w", bs.Name,
					errcode.New(errcode.InvalidParams, "scenario.build", "init needs a word-aligned buffer"))
			}
		}
		b.Buffers[bs.Name] = r
	}
	for _, qs := range f.Queues {
		if err := b.buildQueue(qs); err != nil {
			return nil, fmt.Errorf("queue %s: %w", qs.Name, err)
		}
	}
	return b, nil
}

func (b *Built) buildQueue(qs QueueSpec) error {
	t, ok := dma.ParseNodeType(qs.NodeType)
	if !ok {
		return errcode.New(errcode.InvalidParams, "scenario.build", "unknown node type "+qs.NodeType)
	}
	q, err := dma.NewQueue(b.Arena, t)
	if err != nil {
		return err
	}
	loop := 0
	for i, spec := range qs.Ops {
		if i == qs.LoopFrom {
			loop = q.Len()
		}
		before := q.Len()
		bo, err := b.buildOp(q, spec)
		if err != nil {
			return fmt.Errorf("op %d (%s): %w", i, spec.Op, err)
		}
		bo.First, bo.Nodes = before, q.Len()-before
		b.Ops[qs.Name] = append(b.Ops[qs.Name], bo)
	}
	if qs.Circular {
		if loop >= q.Len() {
			// Empty queue: MakeCircular reports it.
			if err := q.MakeCircular(); err != nil {
				return err
			}
		} else if err := q.MakeCircularFrom(q.Nodes()[loop]); err != nil {
			return err
		}
	}
	b.Queues[qs.Name] = q
	b.Order = append(b.Order, qs.Name)
	return nil
}

func (b *Built) buildOp(q *dma.Queue, spec OpSpec) (BuiltOp, error) {
	const fn = "scenario.build"
	factory, ok := lpbam.Lookup(spec.Op)
	if !ok {
		return BuiltOp{}, errcode.New(errcode.Unsupported, fn, "unknown operation "+spec.Op)
	}
	level, ok := lpbam.ParseLevel(spec.Level)
	if !ok {
		return BuiltOp{}, errcode.New(errcode.InvalidParams, fn, "unknown level "+spec.Level)
	}
	p, err := b.params(spec.Params)
	if err != nil {
		return BuiltOp{}, err
	}
	op, err := factory(p)
	if err != nil {
		return BuiltOp{}, err
	}
	var opts []lpbam.Option
	if spec.Trigger != nil {
		tr, _, err := lpbam.Params{"trigger": spec.Trigger}.Trigger("trigger")
		if err != nil {
			return BuiltOp{}, err
		}
		opts = append(opts, lpbam.WithTrigger(tr))
	}
	if spec.CompleteEvent != "" {
		ev, ok := dma.ParseCompleteEvent(spec.CompleteEvent)
		if !ok {
			return BuiltOp{}, errcode.New(errcode.InvalidParams, fn, "unknown complete event "+spec.CompleteEvent)
		}
		opts = append(opts, lpbam.WithCompleteEvent(ev))
	}
	bundle, err := lpbam.NewBundle(b.Arena, q.Type(), op)
	if err != nil {
		return BuiltOp{}, err
	}
	if err := lpbam.Build(q, bundle, op, level, opts...); err != nil {
		return BuiltOp{}, err
	}
	return BuiltOp{Op: op.Name(), Level: level, Bundle: bundle}, nil
}

// params copies raw and resolves the buffer and queue names it carries.
func (b *Built) params(raw map[string]any) (lpbam.Params, error) {
	p := lpbam.Params{}
	for k, v := range raw {
		p[k] = v
	}
	if name, ok := p["buffer"].(string); ok {
		r, found := b.Buffers[name]
		if !found {
			return nil, errcode.New(errcode.InvalidParams, "scenario.build", "unknown buffer "+name)
		}
		p["buffer"] = r
	}
	if name, ok := p["queue"].(string); ok {
		q, found := b.Queues[name]
		if !found {
			return nil, errcode.New(errcode.InvalidParams, "scenario.build", "queue "+name+" is not built yet")
		}
		p["queue"] = q
	}
	return p, nil
}

// Queue returns the queue built under name.
func (b *Built) Queue(name string) (*dma.Queue, bool) {
	q, ok := b.Queues[name]
	return q, ok
}

// Listing prints every queue node with its decoded transfer.
func (b *Built) Listing(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "arena %#08x size %#x used %#x\n", b.Arena.Base(), b.Arena.Size(), b.Arena.Used())
	for _, name := range b.Order {
		q := b.Queues[name]
		shape := "linear"
		if q.Circular() {
			shape = "circular"
		}
		fmt.Fprintf(tw, "\nqueue %s (%s, %s, %d nodes)\n", name, q.Type(), shape, q.Len())
		fmt.Fprintln(tw, "#\tADDR\tOP\tSRC\tDST\tSIZE\tREQ\tTRIG\tTCEM\tLINK")
		refs := q.Nodes()
		for i, r := range refs {
			n := b.Arena.Node(r)
			tr := dma.DecodeTransfer(n)
			fmt.Fprintf(tw, "%d\t%#08x\t%s\t%#08x/%d\t%#08x/%d\t%d\t%s\t%s\t%s\t%s\n",
				i, b.Arena.Addr(r), b.opAt(name, i),
				tr.Src, tr.SrcWidth, tr.Dst, tr.DstWidth, tr.Size,
				tr.Request, trigger(n), tr.CompleteEvent, b.link(q, n))
		}
	}
	return tw.Flush()
}

func (b *Built) opAt(queue string, i int) string {
	for _, bo := range b.Ops[queue] {
		if i >= bo.First && i < bo.First+bo.Nodes {
			return bo.Op
		}
	}
	return "?"
}

func (b *Built) link(q *dma.Queue, n dma.Node) string {
	next, ok := dma.LinkTarget(q.LinkBase(), n.Link())
	if !ok {
		return "end"
	}
	for name, other := range b.Queues {
		for i, r := range other.Nodes() {
			if b.Arena.Addr(r) == next {
				return fmt.Sprintf("%s#%d", name, i)
			}
		}
	}
	return fmt.Sprintf("%#08x", next)
}

func trigger(n dma.Node) string {
	t, ok := dma.TriggerOf(n.Get(dma.WordCTR2))
	if !ok {
		return "-"
	}
	return t.String()
}

// DumpHex writes the used part of the arena as Intel HEX.
func (b *Built) DumpHex(w io.Writer) error {
	mem := gohex.NewMemory()
	if err := mem.AddBinary(b.Arena.Base(), b.Arena.Bytes()); err != nil {
		return err
	}
	return mem.DumpIntelHex(w, 16)
}

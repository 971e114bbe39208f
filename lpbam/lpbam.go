// Package lpbam turns semantic peripheral operations into descriptor nodes.
//
// Every peripheral operation implements Operation: it knows how many nodes
// and register-content words it needs and writes the image of its
// configuration stage and of its data stage into a Frame. Build stages the
// requested level, applies trigger wiring and only then commits the images
// into the caller's bundle and appends the nodes to the queue.
package lpbam

import (
	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/periph"
)

// Level selects which stages of an operation are built.
type Level uint8

const (
	// Config builds only the peripheral-setup nodes.
	Config Level = iota + 1
	// Data builds only the data-transfer nodes.
	Data
	// Full builds Config then Data into the same bundle.
	Full
)

func (l Level) String() string {
	switch l {
	case Config:
		return "config"
	case Data:
		return "data"
	case Full:
		return "full"
	}
	return "unknown"
}

// ParseLevel resolves a level name; empty means full.
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "", "full":
		return Full, true
	case "config":
		return Config, true
	case "data":
		return Data, true
	}
	return 0, false
}

func (l Level) config() bool { return l == Config || l == Full }
func (l Level) data() bool   { return l == Data || l == Full }

// Layout is the bundle shape an operation needs.
type Layout struct {
	ConfigNodes int
	ConfigWords int
	DataNodes   int
	DataWords   int
}

func (l Layout) Nodes() int { return l.ConfigNodes + l.DataNodes }
func (l Layout) Words() int { return l.ConfigWords + l.DataWords }

// Operation is the per-peripheral capability the generic builder drives.
type Operation interface {
	// Name identifies the operation in errors and listings, e.g. "adc.conversion".
	Name() string
	Instance() periph.Instance
	Layout() Layout
	// WriteConfigImage stages exactly Layout().ConfigNodes nodes.
	WriteConfigImage(f *Frame) error
	// WriteDataImage stages exactly Layout().DataNodes nodes.
	WriteDataImage(f *Frame) error
	// TriggerNode is the index, over config nodes followed by data nodes,
	// of the node whose execution a trigger should gate.
	TriggerNode() int
}

type options struct {
	trigger *dma.Trigger
	event   *dma.CompleteEvent
}

// Option tunes a Build call.
type Option func(*options)

// WithTrigger gates the operation's trigger node on t. When the trigger node
// is not part of the built level, the first built node carries it.
func WithTrigger(t dma.Trigger) Option { return func(o *options) { o.trigger = &t } }

// WithCompleteEvent sets the transfer-complete event mode of every node built.
func WithCompleteEvent(ev dma.CompleteEvent) Option { return func(o *options) { o.event = &ev } }

// NewBundle carves a bundle sized for every stage of op.
func NewBundle(a *dma.Arena, t dma.NodeType, op Operation) (*dma.Bundle, error) {
	if a == nil || op == nil {
		return nil, errcode.New(errcode.InvalidParams, "lpbam.bundle", "nil arena or operation")
	}
	l := op.Layout()
	return a.NewBundle(t, l.Nodes(), l.Words())
}

// Build stages level of op into bundle b and appends the resulting nodes to
// q. On error nothing is written and q is unchanged.
func Build(q *dma.Queue, b *dma.Bundle, op Operation, level Level, opts ...Option) error {
	const fn = "lpbam.build"
	if q == nil || b == nil || op == nil {
		return errcode.New(errcode.InvalidParams, fn, "nil queue, bundle or operation")
	}
	name := op.Name()
	if !op.Instance().Valid() {
		return errcode.New(errcode.InvalidParams, name, "unsupported peripheral instance")
	}
	if !level.config() && !level.data() {
		return errcode.New(errcode.InvalidParams, name, "unknown level")
	}
	if b.Arena() != q.Arena() || b.Type() != q.Type() {
		return errcode.New(errcode.InvalidParams, name, "bundle does not match the queue arena or node type")
	}
	if q.Bound() || q.Circular() {
		return errcode.New(errcode.StateViolation, name, "queue is bound or closed")
	}
	if q.Arena().Pinned() {
		return errcode.New(errcode.StateViolation, name, "arena is bound to hardware")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	lay := op.Layout()
	if b.NodeCount() < lay.Nodes() || b.WordCount() < lay.Words() {
		return errcode.New(errcode.InvalidParams, name, "bundle too small for the operation")
	}
	var frames []*Frame
	if level.config() {
		f := newFrame(b, 0, lay.ConfigNodes, 0, lay.ConfigWords)
		if err := stage(f, op.WriteConfigImage, name, "config"); err != nil {
			return err
		}
		frames = append(frames, f)
	}
	if level.data() {
		f := newFrame(b, lay.ConfigNodes, lay.DataNodes, lay.ConfigWords, lay.DataWords)
		if err := stage(f, op.WriteDataImage, name, "data"); err != nil {
			return err
		}
		frames = append(frames, f)
	}

	var nodes []*dma.Node
	var refs []dma.NodeRef
	for _, f := range frames {
		for i := range f.nodes {
			nodes = append(nodes, &f.nodes[i])
			refs = append(refs, b.Node(f.nodeBase+i))
		}
	}
	if len(nodes) == 0 {
		return errcode.New(errcode.InvalidParams, name, "operation has no "+level.String()+" stage")
	}
	for _, r := range refs {
		if b.Arena().Linked(r) {
			return errcode.New(errcode.StateViolation, name, "bundle already linked into a queue")
		}
	}
	if o.trigger != nil {
		if err := o.trigger.Validate(); err != nil {
			return errcode.Wrap(errcode.InvalidParams, name, err)
		}
		i := triggerIndex(op.TriggerNode(), frames)
		nodes[i].Set(dma.WordCTR2, o.trigger.Apply(nodes[i].Get(dma.WordCTR2)))
	}
	if o.event != nil {
		for _, n := range nodes {
			n.Set(dma.WordCTR2, dma.CTR2TCEM.Set(n.Get(dma.WordCTR2), uint32(*o.event)))
		}
	}

	// Commit. Indices and ownership were checked above so none of these fail.
	for _, f := range frames {
		for i, w := range f.words {
			if err := b.SetWord(f.wordBase+i, w); err != nil {
				return err
			}
		}
		for i, n := range f.nodes {
			if err := b.PutNode(f.nodeBase+i, n); err != nil {
				return err
			}
		}
	}
	return q.Append(refs...)
}

func stage(f *Frame, write func(*Frame) error, name, stageName string) error {
	if f.maxNodes == 0 {
		return nil
	}
	if err := write(f); err != nil {
		return errcode.Wrap(errcode.Of(err), name, err)
	}
	if len(f.nodes) != f.maxNodes || len(f.words) > f.maxWords {
		return errcode.New(errcode.Error, name, stageName+" image does not match its layout")
	}
	return nil
}

// triggerIndex maps the full-layout trigger index onto the staged nodes.
func triggerIndex(full int, frames []*Frame) int {
	off := 0
	for _, f := range frames {
		if full >= f.nodeBase && full < f.nodeBase+len(f.nodes) {
			return off + full - f.nodeBase
		}
		off += len(f.nodes)
	}
	return 0
}

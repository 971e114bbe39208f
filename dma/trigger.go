package dma

import (
	"strings"

	"lpbam-go/errcode"
	"lpbam-go/periph"
)

// Polarity selects the active edge of a trigger (TRIGPOL).
type Polarity uint8

const (
	PolarityNone Polarity = iota
	Rising
	Falling
)

// Mode is the granularity gated by one trigger event (TRIGM).
type Mode uint8

const (
	// ModeBlock gates each block transfer.
	ModeBlock Mode = iota
	// ModeRepeatedBlock gates each repeated block (2D nodes).
	ModeRepeatedBlock
	// ModeNode gates the load of each node.
	ModeNode
	// ModeBurst gates each single burst.
	ModeBurst
)

// Trigger gates a node on an external event instead of the completion of
// the previous node.
type Trigger struct {
	Signal   periph.Signal
	Polarity Polarity
	Mode     Mode
}

// Validate checks the trigger against the closed hardware sets.
func (t Trigger) Validate() error {
	switch {
	case !t.Signal.Valid():
		return errcode.New(errcode.InvalidParams, "dma.trigger", "unknown signal")
	case t.Polarity != Rising && t.Polarity != Falling:
		return errcode.New(errcode.InvalidParams, "dma.trigger", "polarity")
	case t.Mode > ModeBurst:
		return errcode.New(errcode.InvalidParams, "dma.trigger", "mode")
	}
	return nil
}

// Apply returns ctr2 with the trigger sub-fields replaced.
func (t Trigger) Apply(ctr2 uint32) uint32 {
	ctr2 = CTR2TRIGSEL.Set(ctr2, uint32(t.Signal))
	ctr2 = CTR2TRIGPOL.Set(ctr2, uint32(t.Polarity))
	return CTR2TRIGM.Set(ctr2, uint32(t.Mode))
}

// TriggerOf decodes the trigger sub-fields of ctr2. ok is false for an
// ungated node.
func TriggerOf(ctr2 uint32) (Trigger, bool) {
	pol := Polarity(CTR2TRIGPOL.Get(ctr2))
	if pol == PolarityNone {
		return Trigger{}, false
	}
	return Trigger{
		Signal:   periph.Signal(CTR2TRIGSEL.Get(ctr2)),
		Polarity: pol,
		Mode:     Mode(CTR2TRIGM.Get(ctr2)),
	}, true
}

// ClearTriggerFields returns ctr2 without trigger gating.
func ClearTriggerFields(ctr2 uint32) uint32 {
	ctr2 = CTR2TRIGSEL.Set(ctr2, 0)
	ctr2 = CTR2TRIGPOL.Set(ctr2, 0)
	return CTR2TRIGM.Set(ctr2, 0)
}

// SetTrigger rewrites the trigger fields of node r in place. Only CTR2
// changes; the node must already belong to q.
func (q *Queue) SetTrigger(r NodeRef, t Trigger) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return q.rewriteCTR2(r, t.Apply)
}

// ClearTrigger removes trigger gating from node r.
func (q *Queue) ClearTrigger(r NodeRef) error {
	return q.rewriteCTR2(r, ClearTriggerFields)
}

func (q *Queue) rewriteCTR2(r NodeRef, f func(uint32) uint32) error {
	const op = "dma.trigger"
	if q.bound {
		return errcode.New(errcode.StateViolation, op, "queue is bound to a channel")
	}
	if q.arena.Pinned() {
		return errcode.New(errcode.StateViolation, op, "arena is bound to hardware")
	}
	if !q.Contains(r) {
		return errcode.New(errcode.InvalidParams, op, "node is not in the queue")
	}
	n := q.arena.Node(r)
	n.Set(WordCTR2, f(n.Get(WordCTR2)))
	q.arena.putNode(r, n)
	return nil
}

func (t Trigger) String() string {
	return t.Signal.String() + "/" + t.Polarity.String() + "/" + t.Mode.String()
}

func (p Polarity) String() string {
	switch p {
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	}
	return "none"
}

func (m Mode) String() string {
	switch m {
	case ModeBlock:
		return "block"
	case ModeRepeatedBlock:
		return "repeated_block"
	case ModeNode:
		return "node"
	case ModeBurst:
		return "burst"
	}
	return "unknown"
}

// ParsePolarity resolves "rising" or "falling"; empty means rising.
func ParsePolarity(s string) (Polarity, bool) {
	switch strings.ToLower(s) {
	case "", "rising":
		return Rising, true
	case "falling":
		return Falling, true
	}
	return PolarityNone, false
}

// ParseMode resolves a granularity name; empty means block.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(s) {
	case "", "block":
		return ModeBlock, true
	case "repeated_block":
		return ModeRepeatedBlock, true
	case "node", "link":
		return ModeNode, true
	case "burst", "single_burst":
		return ModeBurst, true
	}
	return 0, false
}

// Package sim is a host model of the LPDMA1 linked-list engine and of the
// peripheral register blocks its descriptors touch. It implements the
// register access the channel layer drives, so queues can be built, linked
// and run without hardware.
//
// The model works at node granularity: a node is fetched, waits for its
// trigger if it has one, then moves its whole block in one step.
//
// CCR.EN is set-only as on silicon. Writing EN=0 to an enabled channel is
// ignored; a channel stops at the end of its list, on an error, in link-step
// mode after each node, or through SUSP followed by RESET. A start node
// aimed at a channel that still runs therefore raises USE when it rewrites
// that channel's CLLR.
package sim

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/periph"
	"lpbam-go/x/mathx"
)

// Channels is the number of LPDMA1 channels modelled.
const Channels = 4

// StepKind classifies a trace entry.
type StepKind uint8

const (
	StepStart StepKind = iota
	StepNode
	StepIdle
	StepError
)

func (k StepKind) String() string {
	switch k {
	case StepStart:
		return "start"
	case StepNode:
		return "node"
	case StepIdle:
		return "idle"
	case StepError:
		return "error"
	}
	return "unknown"
}

// Step is one trace entry.
type Step struct {
	Kind    StepKind
	Channel int
	// Node is the address the executed node was fetched from.
	Node      uint32
	Src, Dst  uint32
	Size      uint32
	Triggered bool
	Flags     uint32
}

type channelState struct {
	regs    [dma.ChannelStride / 4]uint32
	node    uint32
	fired   bool
	pending map[periph.Signal]int
}

func (c *channelState) get(off uint32) uint32    { return c.regs[off/4] }
func (c *channelState) put(off uint32, v uint32) { c.regs[off/4] = v }
func (c *channelState) enabled() bool            { return dma.CCREN.On(c.get(dma.RegCCR)) }
func (c *channelState) running() bool {
	ccr := c.get(dma.RegCCR)
	return dma.CCREN.On(ccr) && !dma.CCRSUSP.On(ccr)
}
func (c *channelState) loaded() bool { return dma.CBR1BNDT.Get(c.get(dma.RegCBR1)) != 0 }

// gate reports the trigger the loaded node still waits for.
func (c *channelState) gate() (periph.Signal, bool) {
	if c.fired {
		return 0, false
	}
	t, ok := dma.TriggerOf(c.get(dma.RegCTR2))
	return t.Signal, ok
}

type note struct {
	ch    int
	flags uint32
}

var irqEnables = [...]struct {
	ie   mathx.Field
	flag uint32
}{
	{dma.CCRTCIE, dma.FlagTC},
	{dma.CCRHTIE, dma.FlagHT},
	{dma.CCRDTEIE, dma.FlagDTE},
	{dma.CCRULEIE, dma.FlagULE},
	{dma.CCRUSEIE, dma.FlagUSE},
	{dma.CCRSUSPIE, dma.FlagSUSP},
}

func irqMask(ccr uint32) uint32 {
	var m uint32
	for _, e := range irqEnables {
		if e.ie.On(ccr) {
			m |= e.flag
		}
	}
	return m
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *logrus.Logger) Option { return func(e *Engine) { e.log = l } }

// WithBase places the controller registers at base instead of LPDMA1's.
func WithBase(base uint32) Option { return func(e *Engine) { e.base = base } }

// Engine models one DMA controller and the memory bus it masters.
type Engine struct {
	mu       sync.Mutex
	log      *logrus.Logger
	base     uint32
	devs     []Device
	ch       [Channels]channelState
	handlers [Channels]func(uint32)
	trace    []Step
}

// NewEngine returns an engine with every channel idle and nothing mapped.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{base: periph.LPDMA1.Base()}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = logrus.New()
		e.log.SetOutput(io.Discard)
	}
	for n := range e.ch {
		e.ch[n].put(dma.RegCSR, dma.FlagIDLE)
		e.ch[n].pending = map[periph.Signal]int{}
	}
	return e
}

func (e *Engine) Span() (base, size uint32) {
	return e.base, dma.ChannelBlock + Channels*dma.ChannelStride
}

// Map attaches d to the bus. Spans may not overlap each other or the
// controller registers.
func (e *Engine) Map(d Device) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d == nil {
		return errcode.New(errcode.InvalidParams, "sim.map", "nil device")
	}
	if _, size := d.Span(); size == 0 {
		return errcode.New(errcode.InvalidParams, "sim.map", "empty span")
	}
	if overlaps(d, e) {
		return errcode.New(errcode.InvalidParams, "sim.map", "device overlaps the DMA registers")
	}
	for _, m := range e.devs {
		if overlaps(d, m) {
			return errcode.New(errcode.InvalidParams, "sim.map", "device overlaps a mapped device")
		}
	}
	e.devs = append(e.devs, d)
	return nil
}

func (e *Engine) device(addr uint32, w dma.Width) Device {
	for _, d := range e.devs {
		if covers(d, addr, uint32(w)) {
			return d
		}
	}
	return nil
}

// regAt resolves addr to a channel register.
func (e *Engine) regAt(addr uint32) (ch int, off uint32, ok bool) {
	if !covers(e, addr, 4) || addr-e.base < dma.ChannelBlock {
		return 0, 0, false
	}
	rel := addr - e.base - dma.ChannelBlock
	return int(rel / dma.ChannelStride), rel % dma.ChannelStride, true
}

// read is a bus read on behalf of the engine; e.mu is held.
func (e *Engine) read(addr uint32, w dma.Width) (uint32, bool) {
	if n, off, ok := e.regAt(addr); ok {
		if w != dma.Word32 || !mathx.Aligned(off, 4) {
			return 0, false
		}
		return e.ch[n].get(off), true
	}
	if d := e.device(addr, w); d != nil {
		return d.Read(addr, w)
	}
	return 0, false
}

// write is a bus write on behalf of the engine; e.mu is held.
func (e *Engine) write(addr uint32, w dma.Width, v uint32) (bool, []note) {
	if n, off, ok := e.regAt(addr); ok {
		if w != dma.Word32 || !mathx.Aligned(off, 4) {
			return false, nil
		}
		return true, e.writeReg(n, off, v)
	}
	if d := e.device(addr, w); d != nil {
		return d.Write(addr, w, v), nil
	}
	return false, nil
}

// Read performs a bus read, as the CPU would.
func (e *Engine) Read(addr uint32, w dma.Width) (uint32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.read(addr, w)
}

// Write performs a bus write, as the CPU would.
func (e *Engine) Write(addr uint32, w dma.Width, v uint32) bool {
	e.mu.Lock()
	ok, notes := e.write(addr, w, v)
	e.mu.Unlock()
	e.deliver(notes)
	return ok
}

// Read32 lets dma.Walk follow chains through the simulated bus.
func (e *Engine) Read32(addr uint32) (uint32, bool) { return e.Read(addr, dma.Word32) }

// ReadReg returns channel register off of channel ch.
func (e *Engine) ReadReg(ch int, off uint32) uint32 {
	if ch < 0 || ch >= Channels || off >= dma.ChannelStride {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ch[ch].get(off &^ 3)
}

// WriteReg writes channel register off of channel ch.
func (e *Engine) WriteReg(ch int, off uint32, v uint32) {
	if ch < 0 || ch >= Channels || off >= dma.ChannelStride {
		return
	}
	e.mu.Lock()
	notes := e.writeReg(ch, off&^3, v)
	e.mu.Unlock()
	e.deliver(notes)
}

// SetHandler installs the interrupt handler of channel ch; nil removes it.
func (e *Engine) SetHandler(ch int, h func(flags uint32)) {
	if ch < 0 || ch >= Channels {
		return
	}
	e.mu.Lock()
	e.handlers[ch] = h
	e.mu.Unlock()
}

// deliver calls handlers without holding e.mu; a handler may write
// registers.
func (e *Engine) deliver(notes []note) {
	for _, nt := range notes {
		e.mu.Lock()
		h := e.handlers[nt.ch]
		e.mu.Unlock()
		if h != nil {
			h(nt.flags)
		}
	}
}

func (e *Engine) raise(n int, flags uint32) []note {
	c := &e.ch[n]
	c.put(dma.RegCSR, c.get(dma.RegCSR)|flags)
	if m := flags & irqMask(c.get(dma.RegCCR)); m != 0 {
		return []note{{ch: n, flags: m}}
	}
	return nil
}

func (e *Engine) writeReg(n int, off, v uint32) []note {
	c := &e.ch[n]
	switch off {
	case dma.RegCSR:
		return nil
	case dma.RegCFCR:
		c.put(dma.RegCSR, c.get(dma.RegCSR)&^(v&^dma.FlagIDLE))
		return nil
	case dma.RegCCR:
		return e.writeCCR(n, v)
	case dma.RegCLBAR, dma.RegCTR1, dma.RegCTR2, dma.RegCBR1, dma.RegCSAR, dma.RegCDAR,
		dma.RegCTR3, dma.RegCBR2, dma.RegCLLR:
	default:
		return nil
	}
	if c.running() {
		return e.fail(n, dma.FlagUSE, "register written while the channel runs")
	}
	c.put(off, v)
	return nil
}

func (e *Engine) writeCCR(n int, v uint32) []note {
	c := &e.ch[n]
	if dma.CCRRESET.On(v) {
		clbar := c.get(dma.RegCLBAR)
		c.regs = [dma.ChannelStride / 4]uint32{}
		c.put(dma.RegCLBAR, clbar)
		c.put(dma.RegCCR, v&^(dma.CCRRESET.Mask()|dma.CCREN.Mask()|dma.CCRSUSP.Mask()))
		c.put(dma.RegCSR, dma.FlagIDLE)
		c.fired = false
		clear(c.pending)
		return nil
	}
	old := c.get(dma.RegCCR)
	wasEN, wasSusp := dma.CCREN.On(old), dma.CCRSUSP.On(old)
	if wasEN {
		v = dma.CCREN.Flag(v, true)
	}
	c.put(dma.RegCCR, v)
	if !dma.CCREN.On(v) {
		return nil
	}
	var notes []note
	if !wasEN {
		c.put(dma.RegCSR, c.get(dma.RegCSR)&^dma.FlagIDLE)
		clear(c.pending)
		e.record(Step{Kind: StepStart, Channel: n})
		e.log.WithFields(logrus.Fields{"channel": n, "cllr": c.get(dma.RegCLLR)}).Debug("sim channel enabled")
	}
	switch {
	case dma.CCRSUSP.On(v) && !(wasEN && wasSusp):
		notes = e.raise(n, dma.FlagSUSP|dma.FlagIDLE)
	case !dma.CCRSUSP.On(v) && wasEN && wasSusp:
		c.put(dma.RegCSR, c.get(dma.RegCSR)&^dma.FlagIDLE)
	}
	return notes
}

// stop disables channel n and marks it idle.
func (e *Engine) stop(n int) {
	c := &e.ch[n]
	c.put(dma.RegCCR, dma.CCREN.Flag(c.get(dma.RegCCR), false))
	c.put(dma.RegCSR, c.get(dma.RegCSR)|dma.FlagIDLE)
}

func (e *Engine) fail(n int, flag uint32, why string) []note {
	e.stop(n)
	e.record(Step{Kind: StepError, Channel: n, Node: e.ch[n].node, Flags: flag})
	e.log.WithFields(logrus.Fields{"channel": n, "node": e.ch[n].node}).Warn("sim channel error: " + why)
	return e.raise(n, flag)
}

func (e *Engine) record(s Step) { e.trace = append(e.trace, s) }

// load fetches the node CLLR points at, one word per update bit.
func (e *Engine) load(n int) ([]note, bool) {
	c := &e.ch[n]
	cllr := c.get(dma.RegCLLR)
	addr, _ := dma.LinkTarget(c.get(dma.RegCLBAR), cllr)
	node := addr
	for _, wo := range dma.WireOrder {
		if !wo.Update.On(cllr) {
			continue
		}
		v, ok := e.read(addr, dma.Word32)
		if !ok {
			c.node = node
			return e.fail(n, dma.FlagULE, "link fetch outside mapped memory"), false
		}
		c.put(wo.Reg, v)
		addr += 4
	}
	c.node = node
	c.fired = false
	if !c.loaded() {
		return e.fail(n, dma.FlagUSE, "node has a zero block size"), false
	}
	return nil, true
}

// execute moves the loaded block of channel n and raises its events.
func (e *Engine) execute(n int, triggered bool) []note {
	c := &e.ch[n]
	img := dma.Node{Type: dma.TwoDimNode}
	for _, wo := range dma.WireOrder {
		img.Set(wo.Word, c.get(wo.Reg))
	}
	tr := dma.DecodeTransfer(img)
	src, dst := tr.Src, tr.Dst
	var notes []note
	for b := 0; b <= int(tr.BlockRepeat); b++ {
		for moved := uint32(0); moved < tr.Size; moved += uint32(tr.SrcWidth) {
			v, ok := e.read(src, tr.SrcWidth)
			if !ok {
				return append(notes, e.fail(n, dma.FlagDTE, "source outside mapped memory")...)
			}
			ok, more := e.write(dst, tr.DstWidth, v)
			notes = append(notes, more...)
			if !ok {
				return append(notes, e.fail(n, dma.FlagDTE, "destination outside mapped memory")...)
			}
			if tr.SrcInc {
				src += uint32(tr.SrcWidth)
			}
			if tr.DstInc {
				dst += uint32(tr.DstWidth)
			}
		}
		src += uint32(tr.SrcOffset)
		dst += uint32(tr.DstOffset)
	}
	// A write above may have reset or stopped this very channel.
	if !c.running() {
		return notes
	}
	c.put(dma.RegCSAR, src)
	c.put(dma.RegCDAR, dst)
	c.put(dma.RegCBR1, 0)
	e.record(Step{Kind: StepNode, Channel: n, Node: c.node, Src: tr.Src, Dst: tr.Dst, Size: tr.Size, Triggered: triggered})

	last := c.get(dma.RegCLLR) == 0
	if tr.CompleteEvent != dma.EventLastNode || last {
		notes = append(notes, e.raise(n, dma.FlagTC|dma.FlagHT)...)
		if sig, ok := periph.ChannelTC(n); ok {
			e.signal(sig)
		}
	}
	switch {
	case last:
		e.stop(n)
		e.record(Step{Kind: StepIdle, Channel: n})
		e.log.WithField("channel", n).Debug("sim channel reached end of list")
	case dma.CCRLSM.On(c.get(dma.RegCCR)):
		e.stop(n)
	}
	return notes
}

// signal records an event on every enabled channel.
func (e *Engine) signal(sig periph.Signal) {
	for n := range e.ch {
		if e.ch[n].enabled() {
			e.ch[n].pending[sig]++
		}
	}
}

// Raise delivers a trigger event. Each enabled channel remembers it until a
// node gated on sig consumes it.
func (e *Engine) Raise(sig periph.Signal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.signal(sig)
}

// step advances the lowest runnable channel by one node.
func (e *Engine) step() (executed, progressed bool, notes []note) {
	for n := range e.ch {
		c := &e.ch[n]
		if !c.running() {
			continue
		}
		if !c.loaded() {
			if c.get(dma.RegCLLR) == 0 {
				e.stop(n)
				e.record(Step{Kind: StepIdle, Channel: n})
				return false, true, nil
			}
			more, ok := e.load(n)
			if !ok {
				return false, true, more
			}
			progressed = true
		}
		triggered := false
		if sig, gated := c.gate(); gated {
			if c.pending[sig] == 0 {
				continue
			}
			c.pending[sig]--
			c.fired = true
			triggered = true
		}
		return true, true, e.execute(n, triggered)
	}
	return false, progressed, nil
}

// Run executes up to max nodes, lowest channel index first, re-evaluating
// after every node. It returns early when every channel is idle or waiting
// for a trigger, and reports the number of nodes executed.
func (e *Engine) Run(max int) int {
	done := 0
	for done < max {
		e.mu.Lock()
		executed, progressed, notes := e.step()
		e.mu.Unlock()
		e.deliver(notes)
		if executed {
			done++
		}
		if !progressed {
			break
		}
	}
	return done
}

// Busy reports whether any channel is enabled and not suspended.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for n := range e.ch {
		if e.ch[n].running() {
			return true
		}
	}
	return false
}

// Trace returns the recorded steps in order.
func (e *Engine) Trace() []Step {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Step(nil), e.trace...)
}

// ResetTrace drops the recorded steps.
func (e *Engine) ResetTrace() {
	e.mu.Lock()
	e.trace = nil
	e.mu.Unlock()
}

// Executed returns, in order, the channel of every node executed.
func (e *Engine) Executed() []int {
	var out []int
	for _, s := range e.Trace() {
		if s.Kind == StepNode {
			out = append(out, s.Channel)
		}
	}
	return out
}

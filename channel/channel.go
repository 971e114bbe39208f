// Package channel attaches descriptor queues to LPDMA channels.
//
// A channel moves through Unbound, Bound and Running. Each state is a
// separate value type that only offers the calls legal in that state, and
// every transition invalidates the value it was called on: a stale copy or a
// zero value is rejected with errcode.StateViolation.
package channel

import (
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"lpbam-go/bus"
	"lpbam-go/dma"
	"lpbam-go/errcode"
)

// Driver is register access to the DMA controller. Handlers receive the
// status flags that raised the interrupt.
type Driver interface {
	ReadReg(ch int, off uint32) uint32
	WriteReg(ch int, off uint32, v uint32)
	SetHandler(ch int, h func(flags uint32))
}

// State of a channel slot.
type State uint8

const (
	StateFree State = iota
	StateUnbound
	StateBound
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateRunning:
		return "running"
	}
	return "unknown"
}

// LinkConfig is the channel setup applied when a queue is linked.
type LinkConfig struct {
	// Name labels logs, metrics and events.
	Name     string
	Priority uint8
	// LinkStep stops the channel after every node (CCR.LSM).
	LinkStep bool
	// LinkPort is the AHB port used to fetch nodes (CCR.LAP).
	LinkPort     dma.Port
	HalfComplete bool
	// Notify is called from the interrupt handler for every event.
	Notify func(Event)
}

const (
	defaultChannels     = 4
	defaultPollInterval = time.Millisecond
	defaultStopTimeout  = 100 * time.Millisecond

	allFlags = dma.FlagTC | dma.FlagHT | dma.FlagErrors | dma.FlagSUSP
)

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l *logrus.Logger) Option { return func(c *Controller) { c.log = l } }

// WithBus publishes channel state (retained) and events on b.
func WithBus(b *bus.Bus) Option {
	return func(c *Controller) { c.conn = b.NewConnection("channel") }
}

func WithMetrics(m *Metrics) Option { return func(c *Controller) { c.metrics = m } }

// WithPollInterval sets how often Stop checks a draining linear queue.
func WithPollInterval(d time.Duration) Option { return func(c *Controller) { c.poll = d } }

// WithStopTimeout bounds how long Stop waits for a linear queue to drain.
func WithStopTimeout(d time.Duration) Option { return func(c *Controller) { c.timeout = d } }

// WithChannels sets the number of channels managed.
func WithChannels(n int) Option { return func(c *Controller) { c.count = n } }

type slot struct {
	mu    sync.Mutex
	state State
	gen   uint64
	q     *dma.Queue
	cfg   LinkConfig
	ccr   uint32 // control image without EN
}

// Controller hands out channels of one DMA controller.
type Controller struct {
	drv     Driver
	log     *logrus.Logger
	conn    *bus.Connection
	metrics *Metrics
	poll    time.Duration
	timeout time.Duration
	count   int
	slots   []*slot
}

// New returns a controller driving drv.
func New(drv Driver, opts ...Option) *Controller {
	c := &Controller{drv: drv, poll: defaultPollInterval, timeout: defaultStopTimeout, count: defaultChannels}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = logrus.New()
		c.log.SetOutput(io.Discard)
	}
	if c.poll <= 0 {
		c.poll = defaultPollInterval
	}
	c.slots = make([]*slot, c.count)
	for i := range c.slots {
		c.slots[i] = &slot{}
	}
	return c
}

// State returns the current state of channel n.
func (c *Controller) State(n int) State {
	if n < 0 || n >= len(c.slots) {
		return StateFree
	}
	s := c.slots[n]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Claim reserves channel n.
func (c *Controller) Claim(n int) (Unbound, error) {
	if n < 0 || n >= len(c.slots) {
		return Unbound{}, errcode.New(errcode.InvalidParams, "channel.claim", "channel out of range")
	}
	s := c.slots[n]
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFree {
		return Unbound{}, errcode.New(errcode.Busy, "channel.claim", "channel "+strconv.Itoa(n)+" already claimed")
	}
	return Unbound{c: c, n: n, gen: c.advance(s, n, StateUnbound)}, nil
}

// acquire locks slot n if gen and state still match.
func acquire(c *Controller, op string, n int, gen uint64, want State) (*slot, error) {
	if c == nil {
		return nil, errcode.New(errcode.StateViolation, "channel."+op, "zero channel handle")
	}
	s := c.slots[n]
	s.mu.Lock()
	if s.gen != gen || s.state != want {
		s.mu.Unlock()
		c.metrics.violation(op)
		c.log.WithFields(logrus.Fields{"channel": n, "op": op, "state": s.state}).Warn("stale channel handle")
		return nil, errcode.New(errcode.StateViolation, "channel."+op, "stale channel handle")
	}
	return s, nil
}

func (c *Controller) advance(s *slot, n int, to State) uint64 {
	s.gen++
	s.state = to
	c.metrics.transition(strconv.Itoa(n), to)
	c.log.WithFields(logrus.Fields{"channel": n, "queue": s.cfg.Name, "state": to}).Debug("channel state")
	if c.conn != nil {
		c.conn.Publish(&bus.Message{Topic: bus.T("dma", n, "state"), Payload: to.String(), Retained: true})
	}
	return s.gen
}

func (c *Controller) handler(n int, cfg LinkConfig) func(uint32) {
	ch := strconv.Itoa(n)
	return func(flags uint32) {
		c.drv.WriteReg(n, dma.RegCFCR, flags)
		ev := Event{Channel: n, Queue: cfg.Name, Flags: flags}
		for _, k := range ev.Kinds() {
			c.metrics.event(ch, k)
		}
		entry := c.log.WithFields(logrus.Fields{"channel": n, "queue": cfg.Name})
		if err := ev.Err(); err != nil {
			entry.WithError(err).Warn("channel error")
		} else {
			entry.WithField("kinds", ev.Kinds()).Debug("channel event")
		}
		if cfg.Notify != nil {
			cfg.Notify(ev)
		}
		if c.conn != nil {
			c.conn.Publish(&bus.Message{Topic: bus.T("dma", n, "event"), Payload: ev})
		}
	}
}

// program points channel n at the head of q with EN clear.
func (c *Controller) program(n int, s *slot) {
	c.drv.WriteReg(n, dma.RegCCR, s.ccr)
	c.drv.WriteReg(n, dma.RegCFCR, allFlags)
	c.drv.WriteReg(n, dma.RegCLBAR, s.q.LinkBase())
	c.drv.WriteReg(n, dma.RegCBR1, 0)
	c.drv.WriteReg(n, dma.RegCLLR, s.q.HeadLink())
}

func (c *Controller) idle(n int) bool {
	return c.drv.ReadReg(n, dma.RegCSR)&dma.FlagIDLE != 0
}

// abort suspends channel n, waits for SUSPF and resets it.
func (c *Controller) abort(n int, s *slot) {
	c.drv.WriteReg(n, dma.RegCCR, dma.CCRSUSP.Flag(dma.CCREN.Flag(s.ccr, true), true))
	deadline := time.Now().Add(c.timeout)
	for c.drv.ReadReg(n, dma.RegCSR)&(dma.FlagSUSP|dma.FlagIDLE) == 0 && time.Now().Before(deadline) {
		time.Sleep(c.poll)
	}
	c.drv.WriteReg(n, dma.RegCCR, dma.CCRRESET.Flag(s.ccr, true))
	c.drv.WriteReg(n, dma.RegCFCR, allFlags)
	c.log.WithFields(logrus.Fields{"channel": n, "queue": s.cfg.Name}).Debug("channel aborted")
}

// waitIdle polls CSR.IDLEF until it sets, the stop timeout passes or ctx ends.
func (c *Controller) waitIdle(ctx context.Context, n int) bool {
	if c.idle(n) {
		return true
	}
	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()
	tick := time.NewTimer(c.poll)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return c.idle(n)
		case <-tick.C:
			if c.idle(n) {
				return true
			}
			resetTimer(tick, c.poll)
		}
	}
}

// Unbound is a claimed channel with no queue.
type Unbound struct {
	c   *Controller
	n   int
	gen uint64
}

func (u Unbound) Channel() int { return u.n }

// Link binds q to the channel and pins q's arena. The channel is programmed
// but not enabled.
func (u Unbound) Link(q *dma.Queue, cfg LinkConfig) (Bound, error) {
	s, err := acquire(u.c, "link", u.n, u.gen, StateUnbound)
	if err != nil {
		return Bound{}, err
	}
	defer s.mu.Unlock()
	switch {
	case q == nil || q.Len() == 0:
		return Bound{}, errcode.New(errcode.InvalidParams, "channel.link", "empty queue")
	case !dma.CCRPRIO.Fits(uint32(cfg.Priority)):
		return Bound{}, errcode.New(errcode.InvalidParams, "channel.link", "priority")
	}
	if err := q.Pin(); err != nil {
		return Bound{}, err
	}

	ccr := dma.CCRPRIO.Set(0, uint32(cfg.Priority))
	ccr = dma.CCRLSM.Flag(ccr, cfg.LinkStep)
	ccr = dma.CCRLAP.Flag(ccr, cfg.LinkPort == dma.Port1)
	ccr = dma.CCRTCIE.Flag(ccr, true)
	ccr = dma.CCRHTIE.Flag(ccr, cfg.HalfComplete)
	ccr = dma.CCRDTEIE.Flag(ccr, true)
	ccr = dma.CCRULEIE.Flag(ccr, true)
	ccr = dma.CCRUSEIE.Flag(ccr, true)
	s.q, s.cfg, s.ccr = q, cfg, ccr
	u.c.program(u.n, s)
	u.c.drv.SetHandler(u.n, u.c.handler(u.n, cfg))
	return Bound{c: u.c, n: u.n, gen: u.c.advance(s, u.n, StateBound)}, nil
}

// Release returns the channel to the controller.
func (u Unbound) Release() error {
	s, err := acquire(u.c, "release", u.n, u.gen, StateUnbound)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()
	u.c.advance(s, u.n, StateFree)
	return nil
}

// Bound is a channel with a linked queue, not running.
type Bound struct {
	c   *Controller
	n   int
	gen uint64
}

func (b Bound) Channel() int { return b.n }

// Queue returns the linked queue, nil for a zero or stale value.
func (b Bound) Queue() *dma.Queue {
	if b.c == nil {
		return nil
	}
	s := b.c.slots[b.n]
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != b.gen {
		return nil
	}
	return s.q
}

// Start enables the channel at the head of the linked queue.
func (b Bound) Start() (Running, error) {
	s, err := acquire(b.c, "start", b.n, b.gen, StateBound)
	if err != nil {
		return Running{}, err
	}
	defer s.mu.Unlock()
	b.c.program(b.n, s)
	b.c.drv.WriteReg(b.n, dma.RegCCR, dma.CCREN.Flag(s.ccr, true))
	return Running{c: b.c, n: b.n, gen: b.c.advance(s, b.n, StateRunning)}, nil
}

// Unlink detaches the queue and unpins its arena. Node memory is left as is.
func (b Bound) Unlink() (Unbound, error) {
	s, err := acquire(b.c, "unlink", b.n, b.gen, StateBound)
	if err != nil {
		return Unbound{}, err
	}
	defer s.mu.Unlock()
	b.c.drv.WriteReg(b.n, dma.RegCCR, 0)
	b.c.drv.WriteReg(b.n, dma.RegCLLR, 0)
	b.c.drv.SetHandler(b.n, nil)
	s.q.Unpin()
	gen := b.c.advance(s, b.n, StateUnbound)
	s.q, s.cfg, s.ccr = nil, LinkConfig{}, 0
	return Unbound{c: b.c, n: b.n, gen: gen}, nil
}

// Running is an enabled channel.
type Running struct {
	c   *Controller
	n   int
	gen uint64
}

func (r Running) Channel() int { return r.n }

// Idle reports whether the hardware has finished the queue.
func (r Running) Idle() bool {
	if r.c == nil {
		return false
	}
	return r.c.idle(r.n)
}

// Stop halts the channel. A circular queue never drains, so it is aborted
// at once. A linear queue is given until the stop timeout or ctx to reach
// its end; past that it is aborted and Stop returns the Bound state with a
// Timeout error.
func (r Running) Stop(ctx context.Context) (Bound, error) {
	s, err := acquire(r.c, "stop", r.n, r.gen, StateRunning)
	if err != nil {
		return Bound{}, err
	}
	defer s.mu.Unlock()
	var stopErr error
	switch {
	case s.q.Circular():
		r.c.abort(r.n, s)
	case !r.c.waitIdle(ctx, r.n):
		r.c.abort(r.n, s)
		stopErr = errcode.New(errcode.Timeout, "channel.stop", "queue did not drain")
		r.c.log.WithFields(logrus.Fields{"channel": r.n, "queue": s.cfg.Name}).Warn("stop timed out, channel aborted")
	}
	r.c.drv.WriteReg(r.n, dma.RegCCR, s.ccr)
	return Bound{c: r.c, n: r.n, gen: r.c.advance(s, r.n, StateBound)}, stopErr
}

package scenario

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/armon/go-radix"
	"github.com/google/shlex"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"lpbam-go/bus"
	"lpbam-go/channel"
	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/periph"
	"lpbam-go/sim"
	"lpbam-go/x/mathx"
)

const (
	defaultRunSteps = 1000
	maxRunSteps     = 1 << 20
)

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

func WithLogger(l *logrus.Logger) RunnerOption { return func(r *Runner) { r.log = l } }

// WithRegisterer exports channel metrics to reg.
func WithRegisterer(reg prometheus.Registerer) RunnerOption {
	return func(r *Runner) { r.reg = reg }
}

// WithOutput sets where print and trace write.
func WithOutput(w io.Writer) RunnerOption { return func(r *Runner) { r.out = w } }

// Runner drives a built scenario on a simulated board through the channel
// layer, one script command at a time.
type Runner struct {
	built *Built
	board *sim.Board
	ctrl  *channel.Controller
	log   *logrus.Logger
	reg   prometheus.Registerer
	out   io.Writer
	sub   *bus.Subscription

	i2c *byteTarget
	spi *byteTarget

	mu      sync.Mutex
	handles map[int]any
	events  map[int]map[string]int
}

// NewRunner maps b's arena on a fresh board and opens a channel controller
// on it.
func NewRunner(f *File, b *Built, opts ...RunnerOption) (*Runner, error) {
	r := &Runner{
		built:   b,
		out:     io.Discard,
		i2c:     newByteTarget(f.Sim.I2CReply),
		spi:     newByteTarget(f.Sim.SPIReply),
		handles: map[int]any{},
		events:  map[int]map[string]int{},
	}
	for _, o := range opts {
		o(r)
	}
	if r.log == nil {
		r.log = logrus.New()
		r.log.SetOutput(io.Discard)
	}
	cfg := sim.BoardConfig{I2C: i2cTarget{r.i2c}, SPI: spiTarget{r.spi}}
	if len(f.Sim.Samples) > 0 {
		vals := make([]uint16, len(f.Sim.Samples))
		for i, v := range f.Sim.Samples {
			vals[i] = uint16(v)
		}
		cfg.Samples = sim.Sequence(vals...)
	}
	board, err := sim.NewBoard(cfg, sim.WithLogger(r.log))
	if err != nil {
		return nil, err
	}
	if err := board.Map(b.Arena); err != nil {
		return nil, fmt.Errorf("map arena: %w", err)
	}
	r.board = board

	events := bus.NewBus(256)
	r.sub = events.NewConnection("scenario").Subscribe(bus.T("dma", "#"))
	copts := []channel.Option{channel.WithLogger(r.log), channel.WithBus(events), channel.WithChannels(sim.Channels)}
	if r.reg != nil {
		copts = append(copts, channel.WithMetrics(channel.NewMetrics(r.reg)))
	}
	r.ctrl = channel.New(board, copts...)
	return r, nil
}

// Board exposes the simulated board.
func (r *Runner) Board() *sim.Board { return r.board }

// Events returns how many events of kind channel n reported.
func (r *Runner) Events(n int, kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[n][kind]
}

// Exec runs script, one command per line. "#" starts a comment. It stops at
// the first failing command.
func (r *Runner) Exec(ctx context.Context, script string) error {
	sc := bufio.NewScanner(strings.NewReader(script))
	for line := 1; sc.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		args, err := shlex.Split(sc.Text())
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if len(args) == 0 {
			continue
		}
		err = r.dispatch(ctx, args)
		r.drain()
		if err != nil {
			return fmt.Errorf("line %d: %s: %w", line, args[0], err)
		}
	}
	return sc.Err()
}

type command struct {
	usage string
	args  int
	run   func(r *Runner, ctx context.Context, args []string) error
}

var commands = radix.New()

func init() {
	for name, c := range map[string]*command{
		"claim":   {"claim <ch>", 1, (*Runner).claim},
		"link":    {"link <ch> <queue> [prio=N] [link_step] [half] [port1]", 2, (*Runner).link},
		"start":   {"start <ch>", 1, (*Runner).start},
		"stop":    {"stop <ch>", 1, (*Runner).stop},
		"unlink":  {"unlink <ch>", 1, (*Runner).unlink},
		"release": {"release <ch>", 1, (*Runner).release},
		"raise":   {"raise <signal> [count]", 1, (*Runner).raise},
		"run":     {"run [max]", 0, (*Runner).run},
		"level":   {"level <COMPn> <0|1>", 2, (*Runner).level},
		"inputs":  {"inputs <value>", 1, (*Runner).inputs},
		"expect":  {"expect <what> ...", 1, (*Runner).expect},
		"print":   {"print <addr|buffer[+off]> [words]", 1, (*Runner).print},
		"trace":   {"trace [reset]", 0, (*Runner).trace},
		"help":    {"help", 0, (*Runner).help},
	} {
		commands.Insert(name, c)
	}
}

// lookupCommand resolves an exact name first, then a unique prefix.
func lookupCommand(name string) (*command, error) {
	if v, ok := commands.Get(name); ok {
		return v.(*command), nil
	}
	matches := matchCommand(name)
	switch len(matches) {
	case 0:
		return nil, errcode.New(errcode.Unsupported, "scenario.exec", "did not understand "+name)
	case 1:
		v, _ := commands.Get(matches[0])
		return v.(*command), nil
	default:
		return nil, errcode.New(errcode.InvalidParams, "scenario.exec",
			fmt.Sprintf("ambiguous %s: %s", name, strings.Join(matches, ", ")))
	}
}

func matchCommand(prefix string) []string {
	var names []string
	commands.WalkPrefix(prefix, func(found string, _ any) bool {
		names = append(names, found)
		return false
	})
	sort.Strings(names)
	return names
}

func (r *Runner) dispatch(ctx context.Context, args []string) error {
	c, err := lookupCommand(args[0])
	if err != nil {
		return err
	}
	if len(args)-1 < c.args {
		return errcode.New(errcode.InvalidParams, "scenario.exec", "usage: "+c.usage)
	}
	r.log.WithField("cmd", strings.Join(args, " ")).Debug("scenario command")
	return c.run(r, ctx, args[1:])
}

func (r *Runner) help(_ context.Context, _ []string) error {
	commands.Walk(func(_ string, v any) bool {
		fmt.Fprintln(r.out, v.(*command).usage)
		return false
	})
	return nil
}

// drain logs whatever the channel layer published since the last command.
func (r *Runner) drain() {
	for {
		select {
		case m := <-r.sub.Channel():
			r.log.WithFields(logrus.Fields{"topic": m.Topic, "payload": m.Payload}).Debug("bus")
		default:
			return
		}
	}
}

func (r *Runner) channel(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n >= sim.Channels {
		return 0, errcode.New(errcode.InvalidParams, "scenario.exec", "bad channel "+s)
	}
	return n, nil
}

func (r *Runner) claim(_ context.Context, args []string) error {
	n, err := r.channel(args[0])
	if err != nil {
		return err
	}
	u, err := r.ctrl.Claim(n)
	if err != nil {
		return err
	}
	r.handles[n] = u
	return nil
}

func (r *Runner) link(_ context.Context, args []string) error {
	n, err := r.channel(args[0])
	if err != nil {
		return err
	}
	q, ok := r.built.Queue(args[1])
	if !ok {
		return errcode.New(errcode.InvalidParams, "scenario.link", "unknown queue "+args[1])
	}
	cfg := channel.LinkConfig{Name: args[1], Notify: r.count}
	for _, opt := range args[2:] {
		switch {
		case strings.HasPrefix(opt, "prio="):
			p, err := parseNumber(strings.TrimPrefix(opt, "prio="))
			if err != nil || p > 3 {
				return errcode.New(errcode.InvalidParams, "scenario.link", "priority "+opt)
			}
			cfg.Priority = uint8(p)
		case opt == "link_step":
			cfg.LinkStep = true
		case opt == "half":
			cfg.HalfComplete = true
		case opt == "port1":
			cfg.LinkPort = dma.Port1
		default:
			return errcode.New(errcode.InvalidParams, "scenario.link", "unknown option "+opt)
		}
	}
	u, _ := r.handles[n].(channel.Unbound)
	b, err := u.Link(q, cfg)
	if err != nil {
		return err
	}
	r.handles[n] = b
	return nil
}

func (r *Runner) start(_ context.Context, args []string) error {
	n, err := r.channel(args[0])
	if err != nil {
		return err
	}
	b, _ := r.handles[n].(channel.Bound)
	run, err := b.Start()
	if err != nil {
		return err
	}
	r.handles[n] = run
	return nil
}

func (r *Runner) stop(ctx context.Context, args []string) error {
	n, err := r.channel(args[0])
	if err != nil {
		return err
	}
	run, _ := r.handles[n].(channel.Running)
	b, err := run.Stop(ctx)
	if errcode.Of(err) == errcode.Timeout {
		r.handles[n] = b
		r.log.WithField("channel", n).Warn("stop timed out")
		return nil
	}
	if err != nil {
		return err
	}
	r.handles[n] = b
	return nil
}

func (r *Runner) unlink(_ context.Context, args []string) error {
	n, err := r.channel(args[0])
	if err != nil {
		return err
	}
	b, _ := r.handles[n].(channel.Bound)
	u, err := b.Unlink()
	if err != nil {
		return err
	}
	r.handles[n] = u
	return nil
}

func (r *Runner) release(_ context.Context, args []string) error {
	n, err := r.channel(args[0])
	if err != nil {
		return err
	}
	u, _ := r.handles[n].(channel.Unbound)
	if err := u.Release(); err != nil {
		return err
	}
	delete(r.handles, n)
	return nil
}

func (r *Runner) count(ev channel.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.events[ev.Channel]
	if m == nil {
		m = map[string]int{}
		r.events[ev.Channel] = m
	}
	for _, k := range ev.Kinds() {
		m[k]++
	}
}

func (r *Runner) raise(_ context.Context, args []string) error {
	sig, ok := periph.ParseSignal(args[0])
	if !ok {
		return errcode.New(errcode.InvalidParams, "scenario.raise", "unknown signal "+args[0])
	}
	times := uint32(1)
	if len(args) > 1 {
		var err error
		if times, err = parseNumber(args[1]); err != nil {
			return err
		}
	}
	for i := uint32(0); i < times; i++ {
		r.board.Raise(sig)
	}
	return nil
}

func (r *Runner) run(_ context.Context, args []string) error {
	steps := uint32(defaultRunSteps)
	if len(args) > 0 {
		var err error
		if steps, err = parseNumber(args[0]); err != nil {
			return err
		}
	}
	done := r.board.Run(int(mathx.Clamp(steps, 1, maxRunSteps)))
	r.log.WithField("nodes", done).Debug("engine ran")
	return nil
}

func (r *Runner) level(_ context.Context, args []string) error {
	inst, ok := periph.ParseInstance(args[0])
	c := r.board.COMP[inst]
	if !ok || c == nil {
		return errcode.New(errcode.InvalidParams, "scenario.level", "not a comparator: "+args[0])
	}
	c.SetOutput(args[1] == "1" || args[1] == "high")
	return nil
}

func (r *Runner) inputs(_ context.Context, args []string) error {
	v, err := parseNumber(args[0])
	if err != nil || v > 0xFFFF {
		return errcode.New(errcode.InvalidParams, "scenario.inputs", "bad pin value "+args[0])
	}
	r.board.GPIO.SetInputs(uint16(v))
	return nil
}

func (r *Runner) print(_ context.Context, args []string) error {
	addr, err := r.address(args[0])
	if err != nil {
		return err
	}
	words := uint32(1)
	if len(args) > 1 {
		if words, err = parseNumber(args[1]); err != nil {
			return err
		}
	}
	for i := uint32(0); i < words; i++ {
		a := addr + 4*i
		v, ok := r.board.Read32(a)
		if !ok {
			return errcode.New(errcode.InvalidParams, "scenario.print", fmt.Sprintf("%#08x is not mapped", a))
		}
		fmt.Fprintf(r.out, "%#08x: %#08x\n", a, v)
	}
	return nil
}

func (r *Runner) trace(_ context.Context, args []string) error {
	if len(args) > 0 && args[0] == "reset" {
		r.board.ResetTrace()
		return nil
	}
	for _, s := range r.board.Trace() {
		fmt.Fprintf(r.out, "ch%d %-5s node=%#08x src=%#08x dst=%#08x size=%d triggered=%t flags=%#x\n",
			s.Channel, s.Kind, s.Node, s.Src, s.Dst, s.Size, s.Triggered, s.Flags)
	}
	return nil
}

// address resolves a number or a buffer name with an optional "+offset".
func (r *Runner) address(s string) (uint32, error) {
	name, off, hasOff := strings.Cut(s, "+")
	if reg, ok := r.built.Buffers[name]; ok {
		if !hasOff {
			return reg.Addr, nil
		}
		o, err := parseNumber(off)
		if err != nil {
			return 0, err
		}
		return reg.Addr + o, nil
	}
	return parseNumber(s)
}

func parseNumber(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 0, 32)
	if err != nil {
		return 0, errcode.New(errcode.InvalidParams, "scenario", "not a number: "+s)
	}
	return uint32(v), nil
}

// byteTarget stands in for a device on I2C3 or SPI3: it records what was
// written and answers reads from a repeating reply.
type byteTarget struct {
	mu      sync.Mutex
	reply   []byte
	pos     int
	written []byte
}

func newByteTarget(reply []Number) *byteTarget {
	t := &byteTarget{}
	for _, v := range reply {
		t.reply = append(t.reply, byte(v))
	}
	return t
}

func (t *byteTarget) next() byte {
	if len(t.reply) == 0 {
		return 0
	}
	b := t.reply[t.pos%len(t.reply)]
	t.pos++
	return b
}

func (t *byteTarget) exchange(w, rd []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written = append(t.written, w...)
	for i := range rd {
		rd[i] = t.next()
	}
}

// Written returns every byte the target received.
func (t *byteTarget) Written() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.written...)
}

// i2cTarget and spiTarget adapt byteTarget to the two bus shapes.
type i2cTarget struct{ t *byteTarget }

func (d i2cTarget) Tx(addr uint16, w, rd []byte) error {
	d.t.exchange(w, rd)
	return nil
}

type spiTarget struct{ t *byteTarget }

func (d spiTarget) Tx(w, rd []byte) error {
	d.t.exchange(w, rd)
	return nil
}

func (d spiTarget) Transfer(b byte) (byte, error) {
	out := []byte{0}
	d.t.exchange([]byte{b}, out)
	return out[0], nil
}

package scenario

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/periph"
)

type check struct {
	usage string
	args  int
	run   func(r *Runner, args []string) error
}

var checks = map[string]check{
	"state":       {"state <ch> <free|unbound|bound|running>", 2, (*Runner).expectState},
	"idle":        {"idle <ch>", 1, (*Runner).expectIdle},
	"events":      {"events <ch> <kind> <n>", 3, (*Runner).expectEvents},
	"word":        {"word <addr> <value>", 2, (*Runner).expectWord},
	"half":        {"half <addr> <value>", 2, (*Runner).expectHalf},
	"reg":         {"reg <instance> <offset> <value>", 3, (*Runner).expectReg},
	"writes":      {"writes <instance> <offset> <n>", 3, (*Runner).expectWrites},
	"odr":         {"odr <value>", 1, (*Runner).expectODR},
	"nodes":       {"nodes <n>", 1, (*Runner).expectNodes},
	"order":       {"order <ch,ch,...>", 1, (*Runner).expectOrder},
	"conversions": {"conversions <n>", 1, (*Runner).expectConversions},
	"written":     {"written <i2c|spi> <hex>", 2, (*Runner).expectWritten},
}

func mismatch(what string, got, want any) error {
	return errcode.New(errcode.Error, "scenario.expect", fmt.Sprintf("%s: got %v, want %v", what, got, want))
}

func (r *Runner) expect(_ context.Context, args []string) error {
	c, ok := checks[args[0]]
	if !ok {
		return errcode.New(errcode.Unsupported, "scenario.expect", "unknown check "+args[0])
	}
	if len(args)-1 < c.args {
		return errcode.New(errcode.InvalidParams, "scenario.expect", "usage: expect "+c.usage)
	}
	return c.run(r, args[1:])
}

func (r *Runner) expectState(args []string) error {
	n, err := r.channel(args[0])
	if err != nil {
		return err
	}
	if got := r.ctrl.State(n).String(); got != args[1] {
		return mismatch("channel "+args[0]+" state", got, args[1])
	}
	return nil
}

func (r *Runner) expectIdle(args []string) error {
	n, err := r.channel(args[0])
	if err != nil {
		return err
	}
	if r.board.ReadReg(n, dma.RegCSR)&dma.FlagIDLE == 0 {
		return mismatch("channel "+args[0]+" idle", false, true)
	}
	return nil
}

func (r *Runner) expectEvents(args []string) error {
	n, err := r.channel(args[0])
	if err != nil {
		return err
	}
	want, err := parseNumber(args[2])
	if err != nil {
		return err
	}
	if got := r.Events(n, args[1]); got != int(want) {
		return mismatch("channel "+args[0]+" "+args[1]+" events", got, want)
	}
	return nil
}

func (r *Runner) expectMemory(args []string, w dma.Width) error {
	addr, err := r.address(args[0])
	if err != nil {
		return err
	}
	want, err := parseNumber(args[1])
	if err != nil {
		return err
	}
	got, ok := r.board.Read(addr, w)
	if !ok {
		return errcode.New(errcode.InvalidParams, "scenario.expect", fmt.Sprintf("%#08x is not readable", addr))
	}
	if got != want {
		return mismatch(fmt.Sprintf("value at %#08x", addr), fmt.Sprintf("%#x", got), fmt.Sprintf("%#x", want))
	}
	return nil
}

func (r *Runner) expectWord(args []string) error { return r.expectMemory(args, dma.Word32) }
func (r *Runner) expectHalf(args []string) error { return r.expectMemory(args, dma.HalfWord) }

func (r *Runner) peripheral(name string) (periph.Instance, error) {
	inst, ok := periph.ParseInstance(name)
	if !ok || r.board.Block(inst) == nil {
		return periph.InstanceNone, errcode.New(errcode.InvalidParams, "scenario.expect", "unknown peripheral "+name)
	}
	return inst, nil
}

func (r *Runner) expectReg(args []string) error {
	inst, err := r.peripheral(args[0])
	if err != nil {
		return err
	}
	off, err := parseNumber(args[1])
	if err != nil {
		return err
	}
	want, err := parseNumber(args[2])
	if err != nil {
		return err
	}
	if got := r.board.Block(inst).Reg(off); got != want {
		return mismatch(fmt.Sprintf("%s+%#x", inst, off), fmt.Sprintf("%#x", got), fmt.Sprintf("%#x", want))
	}
	return nil
}

func (r *Runner) expectWrites(args []string) error {
	inst, err := r.peripheral(args[0])
	if err != nil {
		return err
	}
	off, err := parseNumber(args[1])
	if err != nil {
		return err
	}
	want, err := parseNumber(args[2])
	if err != nil {
		return err
	}
	if got := len(r.board.Block(inst).WritesTo(off)); got != int(want) {
		return mismatch(fmt.Sprintf("writes to %s+%#x", inst, off), got, want)
	}
	return nil
}

func (r *Runner) expectODR(args []string) error {
	want, err := parseNumber(args[0])
	if err != nil {
		return err
	}
	if got := r.board.GPIO.ODR(); uint32(got) != want {
		return mismatch("ODR", fmt.Sprintf("%#x", got), fmt.Sprintf("%#x", want))
	}
	return nil
}

func (r *Runner) expectNodes(args []string) error {
	want, err := parseNumber(args[0])
	if err != nil {
		return err
	}
	if got := len(r.board.Executed()); got != int(want) {
		return mismatch("executed nodes", got, want)
	}
	return nil
}

// expectOrder compares the channels that executed nodes, consecutive
// repeats collapsed.
func (r *Runner) expectOrder(args []string) error {
	var got []string
	for _, c := range r.board.Executed() {
		s := strconv.Itoa(c)
		if len(got) == 0 || got[len(got)-1] != s {
			got = append(got, s)
		}
	}
	if g := strings.Join(got, ","); g != args[0] {
		return mismatch("channel order", g, args[0])
	}
	return nil
}

func (r *Runner) expectConversions(args []string) error {
	want, err := parseNumber(args[0])
	if err != nil {
		return err
	}
	if got := r.board.ADC.Conversions(); got != int(want) {
		return mismatch("ADC conversions", got, want)
	}
	return nil
}

func (r *Runner) expectWritten(args []string) error {
	var t *byteTarget
	switch args[0] {
	case "i2c":
		t = r.i2c
	case "spi":
		t = r.spi
	default:
		return errcode.New(errcode.InvalidParams, "scenario.expect", "unknown bus "+args[0])
	}
	if got := fmt.Sprintf("%x", t.Written()); got != strings.ToLower(args[1]) {
		return mismatch(args[0]+" bytes written", got, args[1])
	}
	return nil
}

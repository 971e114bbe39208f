// Package dmastart builds nodes that program and start another LPDMA1
// channel, so one queue can launch another without the CPU.
package dmastart

import (
	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/lpbam"
	"lpbam-go/periph"
)

// Channels is the number of LPDMA1 channels.
const Channels = 4

// StartQueue points a channel at the head of Target and enables it.
//
// Config stage: CLBAR with the target's link base, CCR without EN.
// Data stage: CLLR with the target head's link word, CCR with EN.
// A trigger gates the CLLR node, so the target starts on the event.
//
// Target must be non-empty when the operation is built and must stay in
// place while the starting queue can run; the caller pins it.
//
// The started channel must be idle when the CLLR node runs: CCR.EN cannot be
// cleared by software and rewriting CLLR of a running channel is a setting
// error. To run queues back to back on one channel, build the first start
// Full and gate every later Data start on periph.ChannelTC of that channel.
type StartQueue struct {
	Channel  int
	Target   *dma.Queue
	Priority uint8
	// Interrupts selects the CCR interrupt enables of the started channel
	// (TCIE, DTEIE, ULEIE, USEIE bits as in dma.CCR*).
	Interrupts uint32
	// LinkStep sets CCR.LSM: the channel stops after each node.
	LinkStep bool
}

func (s *StartQueue) Name() string              { return "dma.start_queue" }
func (s *StartQueue) Instance() periph.Instance { return periph.LPDMA1 }
func (s *StartQueue) TriggerNode() int          { return 2 }
func (s *StartQueue) Layout() lpbam.Layout {
	return lpbam.Layout{ConfigNodes: 2, ConfigWords: 2, DataNodes: 2, DataWords: 2}
}

var interruptMask = dma.CCRTCIE.Mask() | dma.CCRHTIE.Mask() | dma.CCRDTEIE.Mask() |
	dma.CCRULEIE.Mask() | dma.CCRUSEIE.Mask() | dma.CCRSUSPIE.Mask()

func (s *StartQueue) validate() error {
	switch {
	case s.Channel < 0 || s.Channel >= Channels:
		return errcode.New(errcode.InvalidParams, s.Name(), "channel out of range")
	case s.Target == nil:
		return errcode.New(errcode.InvalidParams, s.Name(), "no target queue")
	case s.Target.Len() == 0:
		return errcode.New(errcode.InvalidParams, s.Name(), "target queue is empty")
	case !dma.CCRPRIO.Fits(uint32(s.Priority)):
		return errcode.New(errcode.InvalidParams, s.Name(), "priority")
	case s.Interrupts&^interruptMask != 0:
		return errcode.New(errcode.InvalidParams, s.Name(), "interrupt enables")
	}
	return nil
}

func (s *StartQueue) reg(off uint32) uint32 {
	return dma.ChannelBase(periph.LPDMA1.Base(), s.Channel) + off
}

// CCR returns the control image of the started channel.
func (s *StartQueue) CCR(enable bool) uint32 {
	v := dma.CCRPRIO.Set(s.Interrupts, uint32(s.Priority))
	v = dma.CCRLSM.Flag(v, s.LinkStep)
	return dma.CCREN.Flag(v, enable)
}

func (s *StartQueue) WriteConfigImage(f *lpbam.Frame) error {
	if err := s.validate(); err != nil {
		return err
	}
	if err := f.WriteRegisters(s.reg(dma.RegCLBAR), s.Target.LinkBase()); err != nil {
		return err
	}
	return f.WriteRegisters(s.reg(dma.RegCCR), s.CCR(false))
}

func (s *StartQueue) WriteDataImage(f *lpbam.Frame) error {
	if err := s.validate(); err != nil {
		return err
	}
	if err := f.WriteRegisters(s.reg(dma.RegCLLR), s.Target.HeadLink()); err != nil {
		return err
	}
	return f.WriteRegisters(s.reg(dma.RegCCR), s.CCR(true))
}

func init() {
	lpbam.Register("dma.start_queue", func(p lpbam.Params) (lpbam.Operation, error) {
		s := &StartQueue{}
		ch, err := p.UintMax("channel", 0, Channels-1)
		if err != nil {
			return nil, err
		}
		s.Channel = int(ch)
		if s.Target, err = p.Queue("queue"); err != nil {
			return nil, err
		}
		prio, err := p.UintMax("priority", 0, 3)
		if err != nil {
			return nil, err
		}
		s.Priority = uint8(prio)
		if s.LinkStep, err = p.Bool("link_step", false); err != nil {
			return nil, err
		}
		notify, err := p.Bool("notify", false)
		if err != nil {
			return nil, err
		}
		if notify {
			s.Interrupts = dma.CCRTCIE.Mask() | dma.CCRDTEIE.Mask() | dma.CCRULEIE.Mask() | dma.CCRUSEIE.Mask()
		}
		return s, nil
	})
}

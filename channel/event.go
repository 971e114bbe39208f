package channel

import (
	"lpbam-go/dma"
	"lpbam-go/errcode"
)

// Event is one notification raised by a channel interrupt.
type Event struct {
	Channel int
	Queue   string
	Flags   uint32
}

func (e Event) Complete() bool     { return e.Flags&dma.FlagTC != 0 }
func (e Event) HalfComplete() bool { return e.Flags&dma.FlagHT != 0 }
func (e Event) Suspended() bool    { return e.Flags&dma.FlagSUSP != 0 }

var flagKinds = []struct {
	flag uint32
	kind string
}{
	{dma.FlagTC, "complete"},
	{dma.FlagHT, "half_complete"},
	{dma.FlagDTE, "transfer_error"},
	{dma.FlagULE, "link_error"},
	{dma.FlagUSE, "setting_error"},
	{dma.FlagSUSP, "suspended"},
}

// Kinds names every flag carried by e.
func (e Event) Kinds() []string {
	var out []string
	for _, fk := range flagKinds {
		if e.Flags&fk.flag != 0 {
			out = append(out, fk.kind)
		}
	}
	return out
}

// Err reports the first error flag of e, nil when there is none.
func (e Event) Err() error {
	switch {
	case e.Flags&dma.FlagDTE != 0:
		return errcode.New(errcode.Error, "channel", "data transfer error")
	case e.Flags&dma.FlagULE != 0:
		return errcode.New(errcode.Error, "channel", "link transfer error")
	case e.Flags&dma.FlagUSE != 0:
		return errcode.New(errcode.Error, "channel", "user setting error")
	}
	return nil
}

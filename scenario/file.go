// Package scenario loads descriptor-queue layouts from YAML, builds them into
// an arena and runs control scripts against the simulator.
package scenario

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"lpbam-go/errcode"
)

// Number is an unsigned scalar that accepts base prefixes and underscores
// ("0x2800_0000", "0b101", "4096").
type Number uint32

func (n *Number) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", node.Line)
	}
	v, err := strconv.ParseUint(strings.ReplaceAll(node.Value, "_", ""), 0, 32)
	if err != nil {
		return fmt.Errorf("line %d: %q is not an unsigned 32-bit number", node.Line, node.Value)
	}
	*n = Number(v)
	return nil
}

// File is the YAML form of a scenario.
type File struct {
	Arena   ArenaSpec    `yaml:"arena"`
	Buffers []BufferSpec `yaml:"buffers"`
	Queues  []QueueSpec  `yaml:"queues"`
	Sim     SimSpec      `yaml:"sim"`
	// Script is the control script Runner executes.
	Script string `yaml:"script"`
}

type ArenaSpec struct {
	Base Number `yaml:"base"`
	Size Number `yaml:"size"`
}

// BufferSpec names a data buffer carved from the arena. Init preloads
// words from its start.
type BufferSpec struct {
	Name  string   `yaml:"name"`
	Size  Number   `yaml:"size"`
	Align Number   `yaml:"align"`
	Init  []Number `yaml:"init"`
}

// QueueSpec is a queue and the operations built into it, in order.
type QueueSpec struct {
	Name     string `yaml:"name"`
	NodeType string `yaml:"node_type"`
	Circular bool   `yaml:"circular"`
	// LoopFrom is the index of the operation whose first node the tail
	// links back to; earlier operations run once.
	LoopFrom int      `yaml:"loop_from"`
	Ops      []OpSpec `yaml:"ops"`
}

// OpSpec is one operation build. Params are handed to the registered
// factory after "buffer" and "queue" names are resolved.
type OpSpec struct {
	Op            string         `yaml:"op"`
	Level         string         `yaml:"level"`
	Params        map[string]any `yaml:"params"`
	Trigger       map[string]any `yaml:"trigger"`
	CompleteEvent string         `yaml:"complete_event"`
}

// SimSpec configures the simulated peripherals.
type SimSpec struct {
	// Samples is the ADC4 conversion sequence, repeated.
	Samples []Number `yaml:"samples"`
	// I2CReply and SPIReply are the bytes the simulated targets on I2C3
	// and SPI3 answer with, repeated.
	I2CReply []Number `yaml:"i2c_reply"`
	SPIReply []Number `yaml:"spi_reply"`
}

// Load decodes a scenario. Unknown keys are rejected.
func Load(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, errcode.New(errcode.InvalidParams, "scenario.load", "empty scenario")
		}
		return nil, errcode.Wrap(errcode.InvalidParams, "scenario.load", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile reads and decodes the scenario at path.
func LoadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Load(fh)
}

func (f *File) validate() error {
	const op = "scenario.load"
	if f.Arena.Size == 0 {
		return errcode.New(errcode.InvalidParams, op, "arena size missing")
	}
	names := map[string]string{}
	claim := func(kind, name string) error {
		if name == "" {
			return errcode.New(errcode.InvalidParams, op, kind+" without a name")
		}
		if prev, ok := names[name]; ok {
			return errcode.New(errcode.InvalidParams, op, fmt.Sprintf("%s %q clashes with %s of the same name", kind, name, prev))
		}
		names[name] = kind
		return nil
	}
	for _, b := range f.Buffers {
		if err := claim("buffer", b.Name); err != nil {
			return err
		}
		if uint64(len(b.Init))*4 > uint64(b.Size) {
			return errcode.New(errcode.InvalidParams, op, "buffer "+b.Name+": init longer than the buffer")
		}
	}
	for _, q := range f.Queues {
		if err := claim("queue", q.Name); err != nil {
			return err
		}
		if len(q.Ops) == 0 {
			return errcode.New(errcode.InvalidParams, op, "queue "+q.Name+" has no operations")
		}
		if q.LoopFrom < 0 || q.LoopFrom >= len(q.Ops) || (q.LoopFrom > 0 && !q.Circular) {
			return errcode.New(errcode.InvalidParams, op, "queue "+q.Name+": loop_from")
		}
	}
	return nil
}

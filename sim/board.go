package sim

import (
	"tinygo.org/x/drivers"

	"lpbam-go/dma"
	"lpbam-go/periph"
)

// BoardConfig selects what a Board wires to its models.
type BoardConfig struct {
	// RAM is the data memory mapped next to the peripherals; a zero size
	// maps none.
	RAM dma.Region
	// Samples feeds ADC4 conversions; nil yields zeros.
	Samples func() uint16
	// I2C and SPI receive the traffic of I2C3 and SPI3; nil buses accept
	// writes and read zeros.
	I2C drivers.I2C
	SPI drivers.SPI
}

// Board is an engine with RAM and every autonomous peripheral mapped.
type Board struct {
	*Engine
	RAM    *RAM
	ADC    *ADC
	GPIO   *GPIO
	I2C    *I2C
	SPI    *SPI
	COMP   map[periph.Instance]*COMP
	Blocks map[periph.Instance]*RegisterBlock
}

// NewBoard maps the peripheral set on a fresh engine.
func NewBoard(cfg BoardConfig, opts ...Option) (*Board, error) {
	if cfg.Samples == nil {
		cfg.Samples = Sequence(0)
	}
	if cfg.I2C == nil {
		cfg.I2C = nullI2C{}
	}
	if cfg.SPI == nil {
		cfg.SPI = nullSPI{}
	}
	b := &Board{
		Engine: NewEngine(opts...),
		ADC:    NewADC(cfg.Samples),
		GPIO:   NewGPIO(),
		I2C:    NewI2C(cfg.I2C),
		SPI:    NewSPI(cfg.SPI),
		COMP:   map[periph.Instance]*COMP{},
		Blocks: map[periph.Instance]*RegisterBlock{},
	}
	b.Blocks[periph.ADC4] = b.ADC.RegisterBlock
	b.Blocks[periph.LPGPIO1] = b.GPIO.RegisterBlock
	b.Blocks[periph.I2C3] = b.I2C.RegisterBlock
	b.Blocks[periph.SPI3] = b.SPI.RegisterBlock
	for _, inst := range periph.Instances(periph.FamilyCOMP) {
		c := NewCOMP(inst)
		b.COMP[inst] = c
		b.Blocks[inst] = c.RegisterBlock
	}
	for _, f := range []periph.Family{periph.FamilyDAC, periph.FamilyOPAMP, periph.FamilyLPTIM} {
		for _, inst := range periph.Instances(f) {
			b.Blocks[inst] = NewPeripheral(inst, blockSize(f))
		}
	}
	for _, inst := range sortedInstances(b.Blocks) {
		if err := b.Map(b.Blocks[inst]); err != nil {
			return nil, err
		}
	}
	if cfg.RAM.Size > 0 {
		b.RAM = NewRAM(cfg.RAM.Addr, cfg.RAM.Size)
		if err := b.Map(b.RAM); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Block returns the register block of inst, nil if it is not modelled.
func (b *Board) Block(inst periph.Instance) *RegisterBlock { return b.Blocks[inst] }

func sortedInstances(m map[periph.Instance]*RegisterBlock) []periph.Instance {
	var out []periph.Instance
	for inst := periph.ADC4; inst.Valid(); inst++ {
		if _, ok := m[inst]; ok {
			out = append(out, inst)
		}
	}
	return out
}

// nullI2C and nullSPI accept every transfer and read zeros.
type nullI2C struct{}

func (nullI2C) Tx(addr uint16, w, r []byte) error {
	clear(r)
	return nil
}

type nullSPI struct{}

func (nullSPI) Tx(w, r []byte) error {
	clear(r)
	return nil
}

func (nullSPI) Transfer(b byte) (byte, error) { return 0, nil }

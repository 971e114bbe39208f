// Package periph enumerates the peripheral instances, DMA request lines and
// trigger signals that descriptor queues can target. The sets are closed and
// follow the STM32U5 SRD domain (LPDMA1 and the autonomous peripherals).
package periph

import "strings"

// Family groups instances that share a register layout.
type Family uint8

const (
	FamilyNone Family = iota
	FamilyADC
	FamilyCOMP
	FamilyDAC
	FamilyOPAMP
	FamilyGPIO
	FamilyLPTIM
	FamilySPI
	FamilyI2C
	FamilyDMA
)

var familyNames = [...]string{
	FamilyNone:  "none",
	FamilyADC:   "adc",
	FamilyCOMP:  "comp",
	FamilyDAC:   "dac",
	FamilyOPAMP: "opamp",
	FamilyGPIO:  "gpio",
	FamilyLPTIM: "lptim",
	FamilySPI:   "spi",
	FamilyI2C:   "i2c",
	FamilyDMA:   "dma",
}

func (f Family) String() string {
	if int(f) < len(familyNames) {
		return familyNames[f]
	}
	return "unknown"
}

// Instance identifies one physical peripheral.
type Instance uint8

const (
	InstanceNone Instance = iota
	ADC4
	COMP1
	COMP2
	DAC1
	OPAMP1
	OPAMP2
	LPGPIO1
	LPTIM1
	LPTIM3
	SPI3
	I2C3
	LPDMA1
	instanceCount
)

type instanceInfo struct {
	name   string
	family Family
	base   uint32
}

// Non-secure register block addresses.
var instances = [instanceCount]instanceInfo{
	InstanceNone: {"none", FamilyNone, 0},
	ADC4:         {"ADC4", FamilyADC, 0x4602_1000},
	COMP1:        {"COMP1", FamilyCOMP, 0x4600_5400},
	COMP2:        {"COMP2", FamilyCOMP, 0x4600_5404},
	DAC1:         {"DAC1", FamilyDAC, 0x4602_1800},
	OPAMP1:       {"OPAMP1", FamilyOPAMP, 0x4000_3400},
	OPAMP2:       {"OPAMP2", FamilyOPAMP, 0x4000_3410},
	LPGPIO1:      {"LPGPIO1", FamilyGPIO, 0x4602_0000},
	LPTIM1:       {"LPTIM1", FamilyLPTIM, 0x4600_4400},
	LPTIM3:       {"LPTIM3", FamilyLPTIM, 0x4600_4800},
	SPI3:         {"SPI3", FamilySPI, 0x4600_2000},
	I2C3:         {"I2C3", FamilyI2C, 0x4600_2800},
	LPDMA1:       {"LPDMA1", FamilyDMA, 0x4602_5000},
}

// Valid reports whether i names a real instance.
func (i Instance) Valid() bool { return i > InstanceNone && i < instanceCount }

func (i Instance) String() string {
	if i < instanceCount {
		return instances[i].name
	}
	return "unknown"
}

// Family returns the register-layout family of i.
func (i Instance) Family() Family {
	if i < instanceCount {
		return instances[i].family
	}
	return FamilyNone
}

// Base returns the register block address of i, 0 for invalid instances.
func (i Instance) Base() uint32 {
	if i < instanceCount {
		return instances[i].base
	}
	return 0
}

// Reg returns the address of the register at off within i's block.
func (i Instance) Reg(off uint32) uint32 { return i.Base() + off }

// Is reports whether i is valid and belongs to f.
func (i Instance) Is(f Family) bool { return i.Valid() && i.Family() == f }

// ParseInstance resolves a case-insensitive instance name.
func ParseInstance(s string) (Instance, bool) {
	for i := ADC4; i < instanceCount; i++ {
		if strings.EqualFold(instances[i].name, s) {
			return i, true
		}
	}
	return InstanceNone, false
}

// Instances returns every valid instance of f in declaration order.
func Instances(f Family) []Instance {
	var out []Instance
	for i := ADC4; i < instanceCount; i++ {
		if instances[i].family == f {
			out = append(out, i)
		}
	}
	return out
}

// Package adc builds ADC4 conversion sequences.
package adc

import "lpbam-go/x/mathx"

// ADC4 register offsets.
const (
	regISR    = 0x00
	regCR     = 0x08
	regCFGR1  = 0x0C
	regCFGR2  = 0x10
	regSMPR   = 0x14
	regCHSELR = 0x28
	regDR     = 0x40
)

// CR: ADEN and ADSTART are set-only, writing zero has no effect.
var (
	crADEN    = mathx.Bit(0)
	crADSTART = mathx.Bit(2)
	crADSTP   = mathx.Bit(4)
)

// CFGR1
var (
	cfgr1DMAEN  = mathx.Bit(0)
	cfgr1DMACFG = mathx.Bit(1)
	cfgr1RES    = mathx.Field{Shift: 2, Width: 2}
	cfgr1ALIGN  = mathx.Bit(5)
	cfgr1EXTSEL = mathx.Field{Shift: 6, Width: 3}
	cfgr1EXTEN  = mathx.Field{Shift: 10, Width: 2}
	cfgr1OVRMOD = mathx.Bit(12)
	cfgr1CONT   = mathx.Bit(13)
	cfgr1WAIT   = mathx.Bit(14)
)

// CFGR2
var (
	cfgr2LFTRIG = mathx.Bit(29)
)

// SMPR: SMP1 applies to channels whose SMPSEL bit is clear.
var (
	smprSMP1 = mathx.Field{Shift: 0, Width: 3}
)

// Channels are 0..23 in CHSELR bitmap mode.
const channelMask = 0x00FF_FFFF

// Package lptim builds LPTIM1 and LPTIM3 timer sequences.
package lptim

import "lpbam-go/x/mathx"

const (
	regDIER  = 0x08
	regCFGR  = 0x0C
	regCR    = 0x10
	regCCR1  = 0x14
	regARR   = 0x18
	regRCR   = 0x28
	regCCMR1 = 0x2C
)

// CR
var (
	crENABLE  = mathx.Bit(0)
	crSNGSTRT = mathx.Bit(1)
	crCNTSTRT = mathx.Bit(2)
)

// CFGR
var (
	cfgrCKSEL   = mathx.Bit(0)
	cfgrPRESC   = mathx.Field{Shift: 9, Width: 3}
	cfgrTRIGSEL = mathx.Field{Shift: 13, Width: 3}
	cfgrTRIGEN  = mathx.Field{Shift: 17, Width: 2}
	cfgrWAVPOL  = mathx.Bit(21)
	cfgrPRELOAD = mathx.Bit(22)
)

// DIER DMA request enables.
var (
	dierCC1DE = mathx.Bit(9)
	dierUEDE  = mathx.Bit(23)
)

// CCMR1 channel 1 input capture.
var (
	ccmr1CC1SEL = mathx.Bit(0)
	ccmr1CC1E   = mathx.Bit(1)
	ccmr1CC1P   = mathx.Field{Shift: 2, Width: 2}
	ccmr1IC1PSC = mathx.Field{Shift: 8, Width: 2}
	ccmr1IC1F   = mathx.Field{Shift: 12, Width: 2}
)

// Package dma holds the linked-list descriptor format of the LPDMA/GPDMA
// engine: node images, the arena they live in, queues built from them and
// the trigger sub-fields that gate node execution.
package dma

import "lpbam-go/x/mathx"

// Channel register offsets from the channel base.
const (
	RegCLBAR = 0x00
	RegCFCR  = 0x0C
	RegCSR   = 0x10
	RegCCR   = 0x14
	RegCTR1  = 0x40
	RegCTR2  = 0x44
	RegCBR1  = 0x48
	RegCSAR  = 0x4C
	RegCDAR  = 0x50
	RegCTR3  = 0x54
	RegCBR2  = 0x58
	RegCLLR  = 0x7C

	// ChannelBlock is the first channel's offset inside the controller block.
	ChannelBlock = 0x50
	// ChannelStride separates consecutive channels.
	ChannelStride = 0x80
)

// ChannelBase returns the register base of channel n of the controller at base.
func ChannelBase(base uint32, n int) uint32 {
	return base + ChannelBlock + uint32(n)*ChannelStride
}

// CTR1: transfer register 1.
var (
	CTR1SDW  = mathx.Field{Shift: 0, Width: 2}
	CTR1SINC = mathx.Bit(3)
	CTR1SBL  = mathx.Field{Shift: 4, Width: 6}
	CTR1PAM  = mathx.Field{Shift: 11, Width: 2}
	CTR1SAP  = mathx.Bit(14)
	CTR1DDW  = mathx.Field{Shift: 16, Width: 2}
	CTR1DINC = mathx.Bit(19)
	CTR1DBL  = mathx.Field{Shift: 20, Width: 6}
	CTR1DAP  = mathx.Bit(30)
)

// CTR2: request, trigger and completion event selection.
var (
	CTR2REQSEL  = mathx.Field{Shift: 0, Width: 7}
	CTR2SWREQ   = mathx.Bit(9)
	CTR2DREQ    = mathx.Bit(10)
	CTR2BREQ    = mathx.Bit(11)
	CTR2TRIGM   = mathx.Field{Shift: 14, Width: 2}
	CTR2TRIGSEL = mathx.Field{Shift: 16, Width: 7}
	CTR2TRIGPOL = mathx.Field{Shift: 24, Width: 2}
	CTR2TCEM    = mathx.Field{Shift: 30, Width: 2}
)

// CBR1: block size and repeat count.
var (
	CBR1BNDT = mathx.Field{Shift: 0, Width: 16}
	CBR1BRC  = mathx.Field{Shift: 16, Width: 11}
)

// CTR3 / CBR2: 2D addressing offsets.
var (
	CTR3SAO   = mathx.Field{Shift: 0, Width: 13}
	CTR3DAO   = mathx.Field{Shift: 16, Width: 13}
	CBR2BRSAO = mathx.Field{Shift: 0, Width: 16}
	CBR2BRDAO = mathx.Field{Shift: 16, Width: 16}
)

// CLLR: link register. The update bits describe the next node's words.
var (
	CLLRLA  = mathx.Field{Shift: 2, Width: 14}
	CLLRULL = mathx.Bit(16)
	CLLRUB2 = mathx.Bit(25)
	CLLRUT3 = mathx.Bit(26)
	CLLRUDA = mathx.Bit(27)
	CLLRUSA = mathx.Bit(28)
	CLLRUB1 = mathx.Bit(29)
	CLLRUT2 = mathx.Bit(30)
	CLLRUT1 = mathx.Bit(31)
)

// CCR: channel control.
var (
	CCREN     = mathx.Bit(0)
	CCRRESET  = mathx.Bit(1)
	CCRSUSP   = mathx.Bit(2)
	CCRTCIE   = mathx.Bit(8)
	CCRHTIE   = mathx.Bit(9)
	CCRDTEIE  = mathx.Bit(10)
	CCRULEIE  = mathx.Bit(11)
	CCRUSEIE  = mathx.Bit(12)
	CCRSUSPIE = mathx.Bit(13)
	CCRLSM    = mathx.Bit(16)
	CCRLAP    = mathx.Bit(17)
	CCRPRIO   = mathx.Field{Shift: 22, Width: 2}
)

// CSR / CFCR status flags.
const (
	FlagIDLE uint32 = 1 << 0
	FlagTC   uint32 = 1 << 8
	FlagHT   uint32 = 1 << 9
	FlagDTE  uint32 = 1 << 10
	FlagULE  uint32 = 1 << 11
	FlagUSE  uint32 = 1 << 12
	FlagSUSP uint32 = 1 << 13

	// FlagErrors groups the error flags.
	FlagErrors = FlagDTE | FlagULE | FlagUSE
)

// CLBAR holds the upper half of every link address.
const CLBARLBAMask uint32 = 0xFFFF_0000

// Package spi builds SPI3 master transfers.
package spi

import "lpbam-go/x/mathx"

const (
	regCR1  = 0x00
	regCR2  = 0x04
	regCFG1 = 0x08
	regCFG2 = 0x0C
	regTXDR = 0x20
	regRXDR = 0x30
)

// CR1
var (
	cr1SPE    = mathx.Bit(0)
	cr1CSTART = mathx.Bit(9)
)

// CR2
var cr2TSIZE = mathx.Field{Shift: 0, Width: 16}

// CFG1
var (
	cfg1DSIZE   = mathx.Field{Shift: 0, Width: 5}
	cfg1RXDMAEN = mathx.Bit(14)
	cfg1TXDMAEN = mathx.Bit(15)
	cfg1MBR     = mathx.Field{Shift: 28, Width: 3}
)

// CFG2
var (
	cfg2COMM    = mathx.Field{Shift: 17, Width: 2}
	cfg2MASTER  = mathx.Bit(22)
	cfg2LSBFRST = mathx.Bit(23)
	cfg2CPHA    = mathx.Bit(24)
	cfg2CPOL    = mathx.Bit(25)
	cfg2SSM     = mathx.Bit(26)
	cfg2SSOE    = mathx.Bit(29)
)

// COMM values.
const (
	commTransmit = 1
	commReceive  = 2
)

package periph

import "strings"

// Request is a hardware DMA request line (LPDMA1 REQSEL value).
type Request uint8

// NoRequest marks a memory-to-memory transfer paced by software (SWREQ).
const NoRequest Request = 0xFF

const (
	ReqLPUART1RX Request = iota
	ReqLPUART1TX
	ReqSPI3RX
	ReqSPI3TX
	ReqI2C3RX
	ReqI2C3TX
	ReqI2C3EVC
	ReqADC4
	ReqDAC1CH1
	ReqDAC1CH2
	ReqADF1FLT0
	ReqLPTIM1IC1
	ReqLPTIM1IC2
	ReqLPTIM1UE
	ReqLPTIM3IC1
	ReqLPTIM3IC2
	ReqLPTIM3UE
	requestCount
)

var requestNames = [requestCount]string{
	"LPUART1_RX", "LPUART1_TX", "SPI3_RX", "SPI3_TX", "I2C3_RX", "I2C3_TX", "I2C3_EVC",
	"ADC4", "DAC1_CH1", "DAC1_CH2", "ADF1_FLT0", "LPTIM1_IC1", "LPTIM1_IC2", "LPTIM1_UE",
	"LPTIM3_IC1", "LPTIM3_IC2", "LPTIM3_UE",
}

// Valid reports whether r is a known request line or NoRequest.
func (r Request) Valid() bool { return r < requestCount || r == NoRequest }

func (r Request) String() string {
	if r == NoRequest {
		return "none"
	}
	if r < requestCount {
		return requestNames[r]
	}
	return "unknown"
}

// ParseRequest resolves a request name ("none" yields NoRequest).
func ParseRequest(s string) (Request, bool) {
	if strings.EqualFold(s, "none") || s == "" {
		return NoRequest, true
	}
	for i, n := range requestNames {
		if strings.EqualFold(n, s) {
			return Request(i), true
		}
	}
	return NoRequest, false
}

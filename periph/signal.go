package periph

import "strings"

// Signal is a hardware trigger source (LPDMA1 TRIGSEL value).
//
// The table follows the LPDMA1 trigger selection of the STM32U5 reference
// manual. Other parts route different events; check before reusing.
type Signal uint8

const (
	SigEXTI0 Signal = iota
	SigEXTI1
	SigEXTI2
	SigEXTI3
	SigEXTI4
	SigTAMPTRG1
	SigTAMPTRG2
	SigTAMPTRG3
	SigLPTIM1CH1
	SigLPTIM1CH2
	SigLPTIM3CH1
	SigLPTIM4OUT
	SigCOMP1OUT
	SigCOMP2OUT
	SigRTCALRA
	SigRTCALRB
	SigRTCWUT
	SigADC4AWD1
	SigLPDMA1CH0TC
	SigLPDMA1CH1TC
	SigLPDMA1CH2TC
	SigLPDMA1CH3TC
	signalCount
)

var signalNames = [signalCount]string{
	"EXTI0", "EXTI1", "EXTI2", "EXTI3", "EXTI4", "TAMP_TRG1", "TAMP_TRG2", "TAMP_TRG3",
	"LPTIM1_CH1", "LPTIM1_CH2", "LPTIM3_CH1", "LPTIM4_OUT", "COMP1_OUT", "COMP2_OUT",
	"RTC_ALRA_TRG", "RTC_ALRB_TRG", "RTC_WUT_TRG", "ADC4_AWD1",
	"LPDMA1_CH0_TC", "LPDMA1_CH1_TC", "LPDMA1_CH2_TC", "LPDMA1_CH3_TC",
}

// Valid reports whether s is part of the trigger set.
func (s Signal) Valid() bool { return s < signalCount }

func (s Signal) String() string {
	if s < signalCount {
		return signalNames[s]
	}
	return "unknown"
}

// ParseSignal resolves a signal name.
func ParseSignal(s string) (Signal, bool) {
	for i, n := range signalNames {
		if strings.EqualFold(n, s) {
			return Signal(i), true
		}
	}
	return 0, false
}

// ChannelTC returns the transfer-complete signal of LPDMA1 channel n.
func ChannelTC(n int) (Signal, bool) {
	if n < 0 || n > 3 {
		return 0, false
	}
	return SigLPDMA1CH0TC + Signal(n), true
}

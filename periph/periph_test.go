package periph

import "testing"

func TestInstanceTable(t *testing.T) {
	if InstanceNone.Valid() || instanceCount.Valid() {
		t.Fatal("sentinels must not be valid")
	}
	for i := ADC4; i < instanceCount; i++ {
		if i.Base() == 0 || i.Family() == FamilyNone {
			t.Fatalf("%v missing base or family", i)
		}
		got, ok := ParseInstance(i.String())
		if !ok || got != i {
			t.Fatalf("ParseInstance(%q)=%v,%v", i.String(), got, ok)
		}
	}
	if i, ok := ParseInstance("adc4"); !ok || i != ADC4 {
		t.Fatal("names are case-insensitive")
	}
	if _, ok := ParseInstance("ADC1"); ok {
		t.Fatal("ADC1 is not in the autonomous domain")
	}
	if SPI3.Reg(0x20) != 0x46002020 {
		t.Fatalf("SPI3 TXDR=%#x", SPI3.Reg(0x20))
	}
	if got := Instances(FamilyCOMP); len(got) != 2 || got[0] != COMP1 || got[1] != COMP2 {
		t.Fatalf("comp instances=%v", got)
	}
}

func TestRequestsAndSignals(t *testing.T) {
	if r, ok := ParseRequest("adc4"); !ok || r != ReqADC4 {
		t.Fatalf("ADC4 request=%d", r)
	}
	if r, ok := ParseRequest(""); !ok || r != NoRequest {
		t.Fatal("empty request is none")
	}
	if Request(40).Valid() {
		t.Fatal("out of table request is invalid")
	}
	s, ok := ChannelTC(2)
	if !ok || s.String() != "LPDMA1_CH2_TC" {
		t.Fatalf("ChannelTC(2)=%v", s)
	}
	if _, ok := ChannelTC(4); ok {
		t.Fatal("LPDMA1 has four channels")
	}
	if s, ok := ParseSignal("lptim1_ch1"); !ok || s != SigLPTIM1CH1 {
		t.Fatal("ParseSignal")
	}
}

package current

import "fmt"

// ADS1256 registers.
const (
	regStatus = 0x00
	regMux    = 0x01
	regADCON  = 0x02
	regDRATE  = 0x03
)

// ADS1256 commands.
const (
	cmdWakeup  = 0x00
	cmdRDATA   = 0x01
	cmdSDATAC  = 0x0F
	cmdRREG    = 0x10
	cmdWREG    = 0x50
	cmdSelfCal = 0xF0
	cmdSync    = 0xFC
	cmdReset   = 0xFE
)

const (
	ads1256ChipID = 3
	fullScale     = 0x7FFFFF
	vref          = 5.0
	// muxNegAINCOM selects AINCOM as the negative input (single-ended).
	muxNegAINCOM = 0x08
)

var gainCodes = map[int]byte{1: 0, 2: 1, 4: 2, 8: 3, 16: 4, 32: 5, 64: 6}

var drateCodes = map[int]byte{
	30000: 0xF0, 15000: 0xE0, 7500: 0xD0, 3750: 0xC0, 2000: 0xB0,
	1000: 0xA1, 500: 0x92, 100: 0x82, 60: 0x72, 50: 0x63,
	30: 0x53, 25: 0x43, 15: 0x33, 10: 0x23, 5: 0x13,
}

func gainCode(gain int) (byte, error) {
	c, ok := gainCodes[gain]
	if !ok {
		return 0, fmt.Errorf("ads1256: unsupported gain %d", gain)
	}
	return c, nil
}

func drateCode(sps int) (byte, error) {
	c, ok := drateCodes[sps]
	if !ok {
		return 0, fmt.Errorf("ads1256: unsupported data rate %d SPS", sps)
	}
	return c, nil
}

func muxFor(channel int) (byte, error) {
	if channel < 0 || channel > 7 {
		return 0, fmt.Errorf("ads1256: channel %d out of range 0..7", channel)
	}
	return byte(channel<<4) | muxNegAINCOM, nil
}

// decodeSample converts the 24-bit two's complement conversion result into volts.
func decodeSample(b []byte, gain int) float64 {
	raw := int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
	if raw&0x800000 != 0 {
		raw -= 0x1000000
	}
	return float64(raw) / fullScale * vref / float64(gain)
}

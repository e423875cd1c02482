// Package co2 reads the MH-Z19C NDIR CO2 sensor over its UART.
package co2

import (
	"errors"
	"fmt"
)

// FrameLen is the length of every command and response frame.
const FrameLen = 9

// ReadCommand requests the gas concentration.
var ReadCommand = []byte{0xFF, 0x01, 0x86, 0x00, 0x00, 0x00, 0x00, 0x00, 0x79}

var (
	ErrShortFrame = errors.New("co2: short frame")
	ErrBadHeader  = errors.New("co2: unexpected frame header")
	ErrChecksum   = errors.New("co2: checksum mismatch")
)

// Reading is one decoded sensor response.
type Reading struct {
	PPM         int
	Temperature int // °C, coarse internal sensor
}

// Checksum computes the MH-Z19 checksum over bytes 1..7 of a frame.
func Checksum(frame []byte) byte {
	var sum byte
	for _, b := range frame[1:8] {
		sum += b
	}
	return 0xFF - sum + 1
}

// ParseResponse decodes a read-concentration response.
func ParseResponse(frame []byte) (Reading, error) {
	if len(frame) < FrameLen {
		return Reading{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(frame))
	}
	if frame[0] != 0xFF || frame[1] != 0x86 {
		return Reading{}, fmt.Errorf("%w: % x", ErrBadHeader, frame[:2])
	}
	if want := Checksum(frame); frame[8] != want {
		return Reading{}, fmt.Errorf("%w: got %#02x, want %#02x", ErrChecksum, frame[8], want)
	}
	return Reading{
		PPM:         int(frame[2])<<8 | int(frame[3]),
		Temperature: int(frame[4]) - 40,
	}, nil
}

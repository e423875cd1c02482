//go:build linux

package current

import (
	"fmt"
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
)

// Waveshare High-Precision AD/DA board wiring (BCM numbering).
const (
	PinCS   = 22
	PinDRDY = 17
	PinRST  = 18
)

const (
	spiSpeed     = 1_000_000
	drdyTimeout  = time.Second
	drdyPoll     = 100 * time.Microsecond
	rdataSettle  = 10 * time.Microsecond
	resetPulse   = 200 * time.Millisecond
	selfCalDelay = 100 * time.Millisecond
)

// ADS1256 reads single-ended voltages from the ADS1256 over SPI0. Channel
// switching and conversion are serialized; all channels share one converter.
type ADS1256 struct {
	mu   sync.Mutex
	gain int
	cs   rpio.Pin
	drdy rpio.Pin
	rst  rpio.Pin
}

// NewADS1256 opens the GPIO memory map and SPI0, resets the converter,
// checks its chip ID and programs gain and data rate.
func NewADS1256(gain, sampleRate int) (*ADS1256, error) {
	gc, err := gainCode(gain)
	if err != nil {
		return nil, err
	}
	dc, err := drateCode(sampleRate)
	if err != nil {
		return nil, err
	}

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio memory: %w", err)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		rpio.Close()
		return nil, fmt.Errorf("begin spi0: %w", err)
	}
	rpio.SpiSpeed(spiSpeed)
	rpio.SpiMode(0, 1)

	a := &ADS1256{
		gain: gain,
		cs:   rpio.Pin(PinCS),
		drdy: rpio.Pin(PinDRDY),
		rst:  rpio.Pin(PinRST),
	}
	a.cs.Output()
	a.cs.High()
	a.rst.Output()
	a.drdy.Input()
	a.drdy.PullUp()

	if err := a.init(gc, dc); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *ADS1256) init(gc, dc byte) error {
	a.rst.High()
	time.Sleep(resetPulse)
	a.rst.Low()
	time.Sleep(resetPulse)
	a.rst.High()
	time.Sleep(resetPulse)

	if err := a.waitDRDY(); err != nil {
		return err
	}
	id := a.readReg(regStatus) >> 4
	if id != ads1256ChipID {
		return fmt.Errorf("ads1256: unexpected chip id %d", id)
	}

	a.command(cmdSDATAC)
	a.writeReg(regStatus, 0x06) // auto-calibrate, buffer enabled
	a.writeReg(regMux, muxNegAINCOM)
	a.writeReg(regADCON, gc)
	a.writeReg(regDRATE, dc)

	a.command(cmdSelfCal)
	time.Sleep(selfCalDelay)
	return a.waitDRDY()
}

// ReadVoltage selects channel, waits for a fresh conversion and returns it in volts.
func (a *ADS1256) ReadVoltage(channel int) (float64, error) {
	mux, err := muxFor(channel)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.waitDRDY(); err != nil {
		return 0, err
	}
	a.writeReg(regMux, mux)
	a.command(cmdSync)
	a.command(cmdWakeup)
	if err := a.waitDRDY(); err != nil {
		return 0, err
	}

	a.cs.Low()
	rpio.SpiTransmit(cmdRDATA)
	time.Sleep(rdataSettle)
	data := rpio.SpiReceive(3)
	a.cs.High()

	return decodeSample(data, a.gain), nil
}

func (a *ADS1256) waitDRDY() error {
	deadline := time.Now().Add(drdyTimeout)
	for a.drdy.Read() != rpio.Low {
		if time.Now().After(deadline) {
			return fmt.Errorf("ads1256: DRDY timeout after %s", drdyTimeout)
		}
		time.Sleep(drdyPoll)
	}
	return nil
}

func (a *ADS1256) command(cmd byte) {
	a.cs.Low()
	rpio.SpiTransmit(cmd)
	a.cs.High()
}

func (a *ADS1256) writeReg(reg, value byte) {
	a.cs.Low()
	rpio.SpiTransmit(cmdWREG|reg, 0x00, value)
	a.cs.High()
}

func (a *ADS1256) readReg(reg byte) byte {
	a.cs.Low()
	rpio.SpiTransmit(cmdRREG|reg, 0x00)
	time.Sleep(rdataSettle)
	data := rpio.SpiReceive(1)
	a.cs.High()
	return data[0]
}

// Close releases SPI and the GPIO memory map.
func (a *ADS1256) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cs.High()
	rpio.SpiEnd(rpio.Spi0)
	return rpio.Close()
}

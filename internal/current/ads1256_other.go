//go:build !linux

package current

import "errors"

// ADS1256 is not available on non-Linux platforms.
type ADS1256 struct{}

// NewADS1256 returns an error on non-Linux platforms.
func NewADS1256(gain, sampleRate int) (*ADS1256, error) {
	return nil, errors.New("ads1256: not supported on this platform (requires Linux)")
}

// ReadVoltage is not implemented on non-Linux platforms.
func (a *ADS1256) ReadVoltage(channel int) (float64, error) {
	return 0, errors.New("ads1256: not supported")
}

// Close is a no-op on non-Linux platforms.
func (a *ADS1256) Close() error {
	return nil
}

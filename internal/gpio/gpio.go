// Package gpio provides GPIO input reading and PWM/relay output with
// hardware abstraction.
// The real implementation uses the Linux GPIO character device for digital
// lines and the BCM2835 PWM peripheral for the fan outputs.
// The fake implementations allow testing without hardware.
package gpio

// Reader reads named digital inputs.
type Reader interface {
	// Read returns the logical state of every configured input.
	Read() (map[string]bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Writer drives the ventilation unit.
type Writer interface {
	// SetDuty sets the PWM duty cycle (0..100) of a logical channel.
	SetDuty(channel string, duty int) error

	// SetBypass switches the bypass valve relay.
	SetBypass(on bool) error

	// Close drives every output to 0 and releases resources.
	Close() error
}

// Logical PWM channel names.
const (
	ChannelGpio18 = "gpio18"
	ChannelGpio19 = "gpio19"
)

// Pin definitions (BCM numbering). BCM 17 and 18 are taken by the AD/DA
// board, so the logical channels are moved to the other hardware PWM pins.
const (
	PinPWM18  = 12
	PinPWM19  = 13
	PinBypass = 5
)

// PWMFrequency is the fan control frequency in Hz.
const PWMFrequency = 2000

// Input configures one digital input line.
type Input struct {
	Name      string
	Line      int
	ActiveLow bool
}

// PWMPins maps logical channel names to BCM pins.
func PWMPins() map[string]int {
	return map[string]int{ChannelGpio18: PinPWM18, ChannelGpio19: PinPWM19}
}

func clampDuty(duty int) int {
	if duty < 0 {
		return 0
	}
	if duty > 100 {
		return 100
	}
	return duty
}

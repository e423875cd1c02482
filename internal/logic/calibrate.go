package logic

import (
	"math"

	"github.com/sweeney/hrv-controller/internal/calibration"
)

// CalibrateChannel converts a linear target level (percent of full output)
// into the duty cycle that produces it on this channel's hardware.
//
// TEST and empty tables pass the target through so an operator can probe
// raw duty cycles. OFF is always 0.
func CalibrateChannel(target int, source GpioSource, table calibration.Table) int {
	if source == SourceOff {
		return 0
	}
	target = clampPercent(target)
	if source == SourceTest || table.Empty() {
		return target
	}

	desired := float64(target) / 100 * table.MaxVoltage()
	duty := table.DutyFor(desired)
	return clampPercent(int(math.Round(duty)))
}

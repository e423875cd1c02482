package logic

// Intake/exhaust adjustment limits, in percent of base power.
const (
	MinIntakeExhaustRatio = -10
	MaxIntakeExhaustRatio = 10
)

// CalculateIntakeExhaust splits base power between the intake and exhaust
// motors. A positive ratio raises intake (overpressure), a negative ratio
// raises exhaust (underpressure); the other motor stays at base.
func CalculateIntakeExhaust(base, ratio int) (intake, exhaust int) {
	base = clampPercent(base)
	if ratio < MinIntakeExhaustRatio {
		ratio = MinIntakeExhaustRatio
	} else if ratio > MaxIntakeExhaustRatio {
		ratio = MaxIntakeExhaustRatio
	}

	adjusted := clampPercent(base + ratio*base/100)
	switch {
	case ratio > 0:
		return adjusted, base
	case ratio < 0:
		return base, adjusted
	default:
		return base, base
	}
}

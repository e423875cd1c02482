package logic

// LogicalOutputs are the quantities a GPIO channel can be routed to.
type LogicalOutputs struct {
	Power   int
	Intake  int
	Exhaust int
	Test    int
}

// MapGpio returns the level for a channel fed by source. OFF and unknown
// sources yield 0.
func MapGpio(source GpioSource, v LogicalOutputs) int {
	switch source {
	case SourcePower:
		return v.Power
	case SourceIntake:
		return v.Intake
	case SourceExhaust:
		return v.Exhaust
	case SourceTest:
		return v.Test
	default:
		return 0
	}
}

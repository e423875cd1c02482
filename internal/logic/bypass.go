package logic

// BypassInput is what the bypass valve decision looks at.
type BypassInput struct {
	ManualMode           bool
	TemporaryManualMode  bool
	InsideTemperature    float64
	OutsideTemperature   float64
	PreferredTemperature float64
	Hysteresis           float64
	Current              bool
}

// CalculateBypass returns the next bypass valve state (true = OPEN).
//
// Manual modes freeze the valve. Otherwise the valve opens when the house is
// warmer than both the preference and the outside air by more than half the
// hysteresis, and closes when it is cooler than either by more than half.
// Between the two bands the current state is kept.
func CalculateBypass(in BypassInput) bool {
	if in.ManualMode || in.TemporaryManualMode {
		return in.Current
	}

	half := in.Hysteresis / 2
	inside := in.InsideTemperature

	if inside > in.PreferredTemperature+half && inside > in.OutsideTemperature+half {
		return true
	}
	if inside < in.PreferredTemperature-half || inside < in.OutsideTemperature-half {
		return false
	}
	return in.Current
}

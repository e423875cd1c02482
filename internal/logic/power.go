package logic

// PowerRule names the decision that produced a base power level.
type PowerRule string

const (
	RuleManual   PowerRule = "MANUAL"
	RuleBoost    PowerRule = "BOOST"
	RuleGas      PowerRule = "GAS"
	RuleSmoke    PowerRule = "SMOKE"
	RuleHumidity PowerRule = "HUMIDITY"
	RuleCO2High  PowerRule = "CO2_HIGH"
	RuleCO2Mid   PowerRule = "CO2_MID"
	RuleCO2Low   PowerRule = "CO2_LOW"
	RuleDefault  PowerRule = "DEFAULT"
)

// CalculatePower returns the base ventilation power in 0..100.
func CalculatePower(env EnvironmentalSnapshot, modes ControlModes, th Thresholds) int {
	p, _ := DecidePower(env, modes, th)
	return p
}

// DecidePower evaluates the priority rules in order and reports which one
// fired. The first match wins.
func DecidePower(env EnvironmentalSnapshot, modes ControlModes, th Thresholds) (int, PowerRule) {
	switch {
	case modes.ManualMode || modes.TemporaryManualMode:
		return clampPercent(th.ManualPower), RuleManual
	case modes.TemporaryBoostMode:
		return clampPercent(th.PowerHigh), RuleBoost
	case env.Gas:
		return clampPercent(th.PowerHigh), RuleGas
	case env.Smoke:
		// Hard off: do not pull smoke in from outside.
		return 0, RuleSmoke
	case env.AirHumidity >= th.HumidityThreshold:
		return clampPercent(th.PowerHigh), RuleHumidity
	case env.CO2 >= th.CO2ThresholdHigh:
		return clampPercent(th.PowerHigh), RuleCO2High
	case env.CO2 >= th.CO2ThresholdMid:
		return clampPercent(th.PowerMid), RuleCO2Mid
	case env.CO2 >= th.CO2ThresholdLow:
		return clampPercent(th.PowerLow), RuleCO2Low
	default:
		return clampPercent(th.PowerLow), RuleDefault
	}
}

package logic

// Evaluate runs the full control pipeline over one input snapshot:
// power, intake/exhaust balance, bypass, GPIO routing, then calibration.
func Evaluate(in Input) OutputSnapshot {
	power := CalculatePower(in.Env, in.Modes, in.Thresholds)

	intake, exhaust := power, power
	if in.Modes.DualMotorMode {
		intake, exhaust = CalculateIntakeExhaust(power, in.Modes.IntakeExhaustRatio)
	}

	bypass := CalculateBypass(BypassInput{
		ManualMode:           in.Modes.ManualMode,
		TemporaryManualMode:  in.Modes.TemporaryManualMode,
		InsideTemperature:    in.Env.InsideTemperature,
		OutsideTemperature:   in.Env.OutsideTemperature,
		PreferredTemperature: in.Thresholds.PreferredTemperature,
		Hysteresis:           in.Thresholds.BypassHysteresis,
		Current:              in.Modes.Bypass,
	})

	test := clampPercent(in.TestOutput)
	levels := LogicalOutputs{Power: power, Intake: intake, Exhaust: exhaust, Test: test}

	return OutputSnapshot{
		Power:   power,
		Intake:  intake,
		Exhaust: exhaust,
		Test:    test,
		Gpio18:  CalibrateChannel(MapGpio(in.Gpio18.Source, levels), in.Gpio18.Source, in.Gpio18.Calibration),
		Gpio19:  CalibrateChannel(MapGpio(in.Gpio19.Source, levels), in.Gpio19.Source, in.Gpio19.Calibration),
		Bypass:  bypass,
	}
}

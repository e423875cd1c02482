package logic

import "testing"

func bypassAt(inside, outside float64, current bool) BypassInput {
	return BypassInput{
		InsideTemperature:    inside,
		OutsideTemperature:   outside,
		PreferredTemperature: 22,
		Hysteresis:           2,
		Current:              current,
	}
}

func TestCalculateBypass(t *testing.T) {
	tests := []struct {
		name string
		in   BypassInput
		want bool
	}{
		{"warm inside, cool outside opens", bypassAt(24, 15, false), true},
		{"warm inside, warmer outside stays closed", bypassAt(24, 26, false), false},
		{"warm inside, warmer outside closes", bypassAt(24, 26, true), false},
		{"cold inside closes", bypassAt(20, 10, true), false},
		{"dead zone keeps open", bypassAt(22.5, 15, true), true},
		{"dead zone keeps closed", bypassAt(22.5, 15, false), false},
		{"upper edge is not above", bypassAt(23, 15, false), false},
		{"lower edge is not below", bypassAt(21, 15, true), true},
		{"outside within hysteresis keeps state", bypassAt(24, 23.5, false), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateBypass(tt.in); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateBypassManualOverride(t *testing.T) {
	for _, current := range []bool{false, true} {
		in := bypassAt(30, 10, current)
		in.ManualMode = true
		if got := CalculateBypass(in); got != current {
			t.Errorf("manual, current=%v: got %v", current, got)
		}

		in = bypassAt(15, 10, current)
		in.TemporaryManualMode = true
		if got := CalculateBypass(in); got != current {
			t.Errorf("temporary manual, current=%v: got %v", current, got)
		}
	}
}

func TestCalculateBypassIdempotentInDeadZone(t *testing.T) {
	for _, start := range []bool{false, true} {
		state := start
		for i := 0; i < 10; i++ {
			state = CalculateBypass(bypassAt(22.4, 18, state))
		}
		if state != start {
			t.Errorf("start=%v: drifted to %v", start, state)
		}
	}
}

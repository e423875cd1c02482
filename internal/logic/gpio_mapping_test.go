package logic

import "testing"

func TestMapGpio(t *testing.T) {
	v := LogicalOutputs{Power: 50, Intake: 55, Exhaust: 45, Test: 77}
	tests := []struct {
		source GpioSource
		want   int
	}{
		{SourcePower, 50},
		{SourceIntake, 55},
		{SourceExhaust, 45},
		{SourceTest, 77},
		{SourceOff, 0},
		{GpioSource("BOGUS"), 0},
	}
	for _, tt := range tests {
		if got := MapGpio(tt.source, v); got != tt.want {
			t.Errorf("MapGpio(%s): got %d, want %d", tt.source, got, tt.want)
		}
	}
}

func TestParseGpioSource(t *testing.T) {
	tests := []struct {
		in      string
		want    GpioSource
		wantErr bool
	}{
		{"POWER", SourcePower, false},
		{"intake", SourceIntake, false},
		{" Exhaust ", SourceExhaust, false},
		{"test", SourceTest, false},
		{"Off", SourceOff, false},
		{"", "", true},
		{"FAN", "", true},
	}
	for _, tt := range tests {
		got, err := ParseGpioSource(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseGpioSource(%q) err: got %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseGpioSource(%q): got %s, want %s", tt.in, got, tt.want)
		}
	}
}

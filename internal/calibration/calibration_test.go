package calibration

import (
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const measured = `{"0":0.0,"10":1.48,"20":2.63,"30":3.71,"40":4.69,"50":5.6,"60":6.5,"70":7.35,"80":8.2,"90":9.1,"100":10.0}`

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		points  int
		wantErr error
	}{
		{"blank", "", 0, nil},
		{"empty object", "{}", 0, nil},
		{"linear", `{"0":0,"100":10}`, 2, nil},
		{"measured", measured, 11, nil},
		{"unsorted keys sort by duty", `{"100":10,"0":0,"50":5}`, 3, nil},
		{"non numeric key", `{"abc":1}`, 0, ErrInvalidPoint},
		{"duty above 100", `{"0":0,"120":10}`, 0, ErrInvalidPoint},
		{"negative voltage", `{"0":-1,"100":10}`, 0, ErrInvalidPoint},
		{"decreasing voltage", `{"0":0,"50":6,"100":5}`, 0, ErrNotMonotonic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := Parse([]byte(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err: got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(tbl.Points) != tt.points {
				t.Errorf("points: got %d, want %d", len(tbl.Points), tt.points)
			}
			for i := 1; i < len(tbl.Points); i++ {
				if tbl.Points[i].Duty <= tbl.Points[i-1].Duty {
					t.Errorf("points not sorted at %d: %v", i, tbl.Points)
				}
			}
		})
	}
}

func TestParseMalformedJSON(t *testing.T) {
	if _, err := Parse([]byte(`{"0":`)); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestParseOrEmptyLogsWarning(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"non-monotonic", `{"0":5,"100":1}`},
		{"truncated json", `{"0":0,"100":`},
		{"duty out of range", `{"0":0,"150":10}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			tbl := ParseOrEmpty("gpio18", []byte(tt.data), zap.New(core))

			if !tbl.Empty() {
				t.Errorf("table: got %v, want empty", tbl.Points)
			}
			if logs.Len() != 1 {
				t.Fatalf("warnings: got %d, want 1", logs.Len())
			}
			if ch := logs.All()[0].ContextMap()["channel"]; ch != "gpio18" {
				t.Errorf("channel field: got %v, want gpio18", ch)
			}
		})
	}
}

func TestEmpty(t *testing.T) {
	single, _ := Parse([]byte(`{"50":5}`))
	if !single.Empty() {
		t.Error("single point table should be empty")
	}
	if (Table{}).MaxVoltage() != 0 {
		t.Error("empty MaxVoltage should be 0")
	}
}

func TestVoltageAt(t *testing.T) {
	tbl, err := Parse([]byte(measured))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		duty float64
		want float64
	}{
		{0, 0},
		{10, 1.48},
		{15, 2.055},
		{100, 10},
		{-5, 0},
		{150, 10},
	}
	for _, tt := range tests {
		if got := tbl.VoltageAt(tt.duty); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("VoltageAt(%v): got %v, want %v", tt.duty, got, tt.want)
		}
	}
}

func TestDutyForInvertsVoltageAt(t *testing.T) {
	tbl, err := Parse([]byte(measured))
	if err != nil {
		t.Fatal(err)
	}
	for duty := 0.0; duty <= 100; duty += 2.5 {
		v := tbl.VoltageAt(duty)
		if got := tbl.DutyFor(v); math.Abs(got-duty) > 1e-9 {
			t.Errorf("DutyFor(VoltageAt(%v)): got %v", duty, got)
		}
	}
}

func TestDutyForClampsToEndpoints(t *testing.T) {
	tbl, _ := Parse([]byte(`{"20":2,"80":8}`))
	if got := tbl.DutyFor(0.5); got != 20 {
		t.Errorf("below range: got %v, want 20", got)
	}
	if got := tbl.DutyFor(9.5); got != 80 {
		t.Errorf("above range: got %v, want 80", got)
	}
}

func TestDutyForFlatSegment(t *testing.T) {
	tbl, _ := Parse([]byte(`{"0":0,"10":0,"100":10}`))
	if got := tbl.DutyFor(0); got != 0 {
		t.Errorf("flat start: got %v, want 0", got)
	}
}

func TestString(t *testing.T) {
	tbl, _ := Parse([]byte(`{"100":10,"0":0,"50":5.5}`))
	want := `{"0":0,"50":5.5,"100":10}`
	if got := tbl.String(); got != want {
		t.Errorf("String: got %s, want %s", got, want)
	}
	if got := (Table{}).String(); got != "{}" {
		t.Errorf("empty String: got %s, want {}", got)
	}
}

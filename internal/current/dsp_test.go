package current

import (
	"math"
	"testing"
	"time"
)

func TestPercentileFilter(t *testing.T) {
	short := []float64{5, 1, 3}
	if got := PercentileFilter(short); len(got) != 3 || got[0] != 5 {
		t.Errorf("short window should be returned unchanged, got %v", got)
	}

	tests := []struct {
		n    int
		want int
	}{
		{10, 8},
		{19, 17},
		{20, 16},
		{400, 320},
	}
	for _, tt := range tests {
		in := make([]float64, tt.n)
		for i := range in {
			in[i] = float64(tt.n - i)
		}
		got := PercentileFilter(in)
		if len(got) != tt.want {
			t.Errorf("n=%d: kept %d, want %d", tt.n, len(got), tt.want)
		}
		for i := 1; i < len(got); i++ {
			if got[i] < got[i-1] {
				t.Fatalf("n=%d: result not sorted", tt.n)
			}
		}
		if in[0] != float64(tt.n) {
			t.Errorf("n=%d: input was modified", tt.n)
		}
	}
}

func TestACRMSRemovesBias(t *testing.T) {
	got := ACRMS(SquareWave(100, 2.5, 0.2))
	if math.Abs(got-0.2) > 1e-9 {
		t.Errorf("got %v, want 0.2", got)
	}
	if ACRMS(nil) != 0 {
		t.Error("empty window should be 0")
	}
}

func TestPower(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name      string
		amplitude float64
		factor    float64
		want      float64
	}{
		{"nominal", 0.1, 1, 115},
		{"calibrated factor", 0.1, 0.5, 57.5},
		{"below noise floor", 2.0 / 1150, 1, 0},
		{"above ceiling", 600.0 / 1150, 1, 0},
		{"flat line", 0, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := SquareWave(cfg.SamplesPerMeasurement(), 2.5, tt.amplitude)
			if got := cfg.Power(samples, tt.factor); math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigWindows(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.SamplesPerMeasurement(); got != 400 {
		t.Errorf("samples per measurement: got %d, want 400", got)
	}
	if got := cfg.MeasurementsPerPublish(); got != 5 {
		t.Errorf("measurements per publish: got %d, want 5", got)
	}
	if got := cfg.SampleInterval(); got != 500*time.Microsecond {
		t.Errorf("sample interval: got %v, want 500µs", got)
	}
}

func TestMedianTakesUpperMiddle(t *testing.T) {
	if got := median([]int{4, 1, 3, 2}); got != 3 {
		t.Errorf("got %d, want 3", got)
	}
	if got := median([]int{9, 1, 5}); got != 5 {
		t.Errorf("got %d, want 5", got)
	}
}

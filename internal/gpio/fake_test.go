package gpio

import (
	"errors"
	"testing"
)

func TestFakeReaderRead(t *testing.T) {
	f := NewFakeReader(
		map[string]bool{"smoke": true, "gas": false},
		map[string]bool{"smoke": false, "gas": true},
	)

	tests := []struct {
		smoke, gas bool
	}{
		{true, false},
		{false, true},
		{false, true}, // last sample repeats
	}
	for i, tt := range tests {
		got, err := f.Read()
		if err != nil {
			t.Fatalf("read %d: unexpected error: %v", i, err)
		}
		if got["smoke"] != tt.smoke || got["gas"] != tt.gas {
			t.Errorf("read %d: expected smoke=%v gas=%v, got %v", i, tt.smoke, tt.gas, got)
		}
	}
}

func TestFakeReaderReturnsCopy(t *testing.T) {
	f := NewFakeReader(map[string]bool{"smoke": true})
	got, _ := f.Read()
	got["smoke"] = false

	again, _ := f.Read()
	if !again["smoke"] {
		t.Error("mutating a result changed the scripted sample")
	}
}

func TestFakeReaderNoSamples(t *testing.T) {
	f := NewFakeReader()
	if _, err := f.Read(); err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader(map[string]bool{"smoke": true})
	f.ReadError = errors.New("simulated error")

	_, err := f.Read()
	if err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeReaderCloseAndReset(t *testing.T) {
	f := NewFakeReader(map[string]bool{"gas": true}, map[string]bool{"gas": false})
	f.Read()
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Reset()
	if f.Closed {
		t.Error("Reset should clear Closed")
	}
	got, _ := f.Read()
	if !got["gas"] {
		t.Error("after reset: expected first sample again")
	}
}

func TestFakeWriter(t *testing.T) {
	w := NewFakeWriter()

	if err := w.SetDuty(ChannelGpio18, 42); err != nil {
		t.Fatal(err)
	}
	if err := w.SetDuty(ChannelGpio19, 130); err != nil {
		t.Fatal(err)
	}
	if err := w.SetDuty("gpio20", 10); err == nil {
		t.Error("expected error for unknown channel")
	}
	if err := w.SetBypass(true); err != nil {
		t.Fatal(err)
	}

	if w.Duty(ChannelGpio18) != 42 {
		t.Errorf("gpio18: got %d, want 42", w.Duty(ChannelGpio18))
	}
	if w.Duty(ChannelGpio19) != 100 {
		t.Errorf("gpio19 should clamp to 100, got %d", w.Duty(ChannelGpio19))
	}
	if !w.Bypass() {
		t.Error("bypass should be on")
	}
	if n := len(w.Calls()); n != 3 {
		t.Errorf("calls: got %d, want 3", n)
	}

	w.Close()
	if w.Duty(ChannelGpio18) != 0 || w.Bypass() || !w.Closed {
		t.Error("Close should zero every output")
	}
}

func TestFakeWriterError(t *testing.T) {
	w := NewFakeWriter()
	w.WriteError = errors.New("EBUSY")
	if err := w.SetBypass(true); err == nil {
		t.Error("expected error")
	}
	if len(w.Calls()) != 0 {
		t.Error("failed call should not be recorded")
	}
}

func TestPWMPins(t *testing.T) {
	pins := PWMPins()
	if pins[ChannelGpio18] != 12 || pins[ChannelGpio19] != 13 {
		t.Errorf("unexpected pin map %v", pins)
	}
}

package co2

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestReadCommandChecksum(t *testing.T) {
	if got := Checksum(ReadCommand); got != ReadCommand[8] {
		t.Errorf("checksum: got %#02x, want %#02x", got, ReadCommand[8])
	}
}

func TestParseResponse(t *testing.T) {
	valid := []byte{0xFF, 0x86, 0x02, 0x60, 0x47, 0x00, 0x00, 0x00, 0x00}
	valid[8] = Checksum(valid)

	corrupt := append([]byte(nil), valid...)
	corrupt[3]++

	tests := []struct {
		name    string
		in      []byte
		want    Reading
		wantErr error
	}{
		{"valid", valid, Reading{PPM: 608, Temperature: 31}, nil},
		{"built frame", Frame(1234, 22), Reading{PPM: 1234, Temperature: 22}, nil},
		{"short", valid[:5], Reading{}, ErrShortFrame},
		{"bad header", append([]byte{0xFE}, valid[1:]...), Reading{}, ErrBadHeader},
		{"checksum", corrupt, Reading{}, ErrChecksum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err: got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSensorRead(t *testing.T) {
	port := &FakePort{Responses: [][]byte{Frame(850, 25)}}
	s := NewSensor(port)

	r, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	if r.PPM != 850 {
		t.Errorf("ppm: got %d, want 850", r.PPM)
	}
	if len(port.Written) != 1 || string(port.Written[0]) != string(ReadCommand) {
		t.Errorf("written: % x", port.Written)
	}
}

func TestSensorReadTimeout(t *testing.T) {
	port := &FakePort{}
	s := NewSensor(port)
	now := time.Unix(0, 0)
	s.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	if _, err := s.Read(); !errors.Is(err, ErrShortFrame) {
		t.Errorf("err: got %v, want ErrShortFrame", err)
	}
}

func TestSensorWriteError(t *testing.T) {
	s := NewSensor(&FakePort{WriteError: errors.New("EIO")})
	if _, err := s.Read(); err == nil {
		t.Error("expected error")
	}
}

type scripted struct {
	mu    sync.Mutex
	out   []Reading
	errs  []error
	calls int
}

func (s *scripted) Read() (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return Reading{}, s.errs[i]
	}
	if i < len(s.out) {
		return s.out[i], nil
	}
	return Reading{PPM: 400}, nil
}

func TestPollerSkipsFailedReads(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	src := &scripted{
		errs: []error{ErrChecksum},
		out:  []Reading{{}, {PPM: 700}},
	}

	got := make(chan Reading, 4)
	p := NewPoller(src, 5*time.Millisecond, func(r Reading) { got <- r }, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	select {
	case r := <-got:
		if r.PPM != 700 {
			t.Errorf("first delivered reading: got %d, want 700", r.PPM)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reading delivered")
	}
	if logs.FilterMessage("co2 read failed").Len() != 1 {
		t.Errorf("expected one warning, got %d", logs.Len())
	}
}

func TestNewPollerDefaultInterval(t *testing.T) {
	p := NewPoller(&scripted{}, 0, func(Reading) {}, zap.NewNop())
	if p.interval != DefaultInterval {
		t.Errorf("interval: got %v", p.interval)
	}
}

package co2

import (
	"bytes"
	"errors"
)

// FakePort is an in-memory Port. Responses are queued and each Write of a
// command releases the next one.
type FakePort struct {
	Responses [][]byte
	Written   [][]byte
	Closed    bool
	// WriteError, if set, fails every write.
	WriteError error

	pending bytes.Buffer
}

// Write records p and queues the next scripted response.
func (f *FakePort) Write(p []byte) (int, error) {
	if f.WriteError != nil {
		return 0, f.WriteError
	}
	f.Written = append(f.Written, append([]byte(nil), p...))
	if len(f.Responses) > 0 {
		f.pending.Write(f.Responses[0])
		f.Responses = f.Responses[1:]
	}
	return len(p), nil
}

// Read returns up to three bytes of the pending response per call, like a
// slow UART. An empty buffer reads as a timeout (0, nil).
func (f *FakePort) Read(p []byte) (int, error) {
	if f.pending.Len() == 0 {
		return 0, nil
	}
	if len(p) > 3 {
		p = p[:3]
	}
	return f.pending.Read(p)
}

// ResetInputBuffer drops anything not yet read.
func (f *FakePort) ResetInputBuffer() error {
	f.pending.Reset()
	return nil
}

// Close marks the port closed.
func (f *FakePort) Close() error {
	if f.Closed {
		return errors.New("already closed")
	}
	f.Closed = true
	return nil
}

// Frame builds a valid response for ppm and temperature.
func Frame(ppm, temperature int) []byte {
	f := []byte{0xFF, 0x86, byte(ppm >> 8), byte(ppm), byte(temperature + 40), 0, 0, 0, 0}
	f[8] = Checksum(f)
	return f
}

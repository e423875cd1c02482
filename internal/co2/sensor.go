package co2

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// DefaultPort is the Raspberry Pi primary UART.
const DefaultPort = "/dev/serial0"

const readTimeout = 2 * time.Second

// Port is the subset of serial.Port the sensor needs.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ResetInputBuffer() error
	Close() error
}

// Sensor issues read commands on a port and decodes the responses.
type Sensor struct {
	mu   sync.Mutex
	port Port
	now  func() time.Time
}

// Open opens device at 9600 8N1.
func Open(device string) (*Sensor, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", device, err)
	}
	return NewSensor(port), nil
}

// NewSensor wraps an already open port.
func NewSensor(port Port) *Sensor {
	return &Sensor{port: port, now: time.Now}
}

// Read requests one measurement.
func (s *Sensor) Read() (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.port.ResetInputBuffer(); err != nil {
		return Reading{}, fmt.Errorf("reset input: %w", err)
	}
	if _, err := s.port.Write(ReadCommand); err != nil {
		return Reading{}, fmt.Errorf("write read command: %w", err)
	}

	frame := make([]byte, 0, FrameLen)
	buf := make([]byte, FrameLen)
	deadline := s.now().Add(readTimeout)
	for len(frame) < FrameLen {
		n, err := s.port.Read(buf[:FrameLen-len(frame)])
		if err != nil {
			return Reading{}, fmt.Errorf("read response: %w", err)
		}
		frame = append(frame, buf[:n]...)
		if n == 0 && s.now().After(deadline) {
			break
		}
	}
	return ParseResponse(frame)
}

// Close closes the port.
func (s *Sensor) Close() error {
	return s.port.Close()
}

// Package onewire reads DS18B20 temperature sensors exposed by the w1-therm
// kernel driver.
package onewire

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DefaultDevicesPath is where the kernel lists 1-Wire slaves.
const DefaultDevicesPath = "/sys/bus/w1/devices"

// Bus tracks the sensors found under a devices directory.
type Bus struct {
	mu      sync.Mutex
	dir     string
	sensors map[string]string // device id -> temperature file
	logger  *zap.Logger
}

// NewBus scans dir for DS18B20 sensors (family code 28).
func NewBus(dir string, logger *zap.Logger) *Bus {
	b := &Bus{dir: dir, logger: logger}
	b.Rescan()
	return b
}

// Rescan refreshes the sensor list.
func (b *Bus) Rescan() {
	matches, _ := filepath.Glob(filepath.Join(b.dir, "28-*", "temperature"))

	sensors := make(map[string]string, len(matches))
	for _, path := range matches {
		sensors[filepath.Base(filepath.Dir(path))] = path
	}

	b.mu.Lock()
	b.sensors = sensors
	b.mu.Unlock()

	if len(sensors) == 0 {
		b.logger.Warn("no 1-Wire temperature sensors found", zap.String("dir", b.dir))
		return
	}
	b.logger.Info("1-Wire sensors found", zap.Strings("ids", b.IDs()))
}

// IDs returns the known sensor ids, sorted.
func (b *Bus) IDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.sensors))
	for id := range b.sensors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ReadAll returns °C per sensor, rounded to 0.1. Sensors that fail to read
// are logged and omitted.
func (b *Bus) ReadAll() map[string]float64 {
	b.mu.Lock()
	sensors := make(map[string]string, len(b.sensors))
	for id, p := range b.sensors {
		sensors[id] = p
	}
	b.mu.Unlock()

	out := make(map[string]float64, len(sensors))
	for id, path := range sensors {
		t, err := readTemperature(path)
		if err != nil {
			b.logger.Error("1-Wire read failed", zap.String("id", id), zap.Error(err))
			continue
		}
		out[id] = t
	}
	return out
}

func readTemperature(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return math.Round(float64(milli)/100) / 10, nil
}

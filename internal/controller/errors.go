package controller

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sweeney/hrv-controller/internal/logic"
)

// ConfigurationError reports an output sink whose names do not match the
// output snapshot fields.
type ConfigurationError struct {
	Missing []string
	Extra   []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "unexpected "+strings.Join(e.Extra, ", "))
	}
	return "output sink mismatch: " + strings.Join(parts, "; ")
}

// ValidateSink checks that names is exactly the set of output fields.
func ValidateSink(names []string) error {
	want := make(map[string]bool, len(logic.OutputFields))
	for _, f := range logic.OutputFields {
		want[f] = true
	}
	have := make(map[string]bool, len(names))
	e := &ConfigurationError{}
	for _, n := range names {
		if have[n] {
			continue
		}
		have[n] = true
		if !want[n] {
			e.Extra = append(e.Extra, n)
		}
	}
	for _, f := range logic.OutputFields {
		if !have[f] {
			e.Missing = append(e.Missing, f)
		}
	}
	if len(e.Missing) == 0 && len(e.Extra) == 0 {
		return nil
	}
	sort.Strings(e.Extra)
	return e
}

var (
	// ErrUnknownCommand is returned for command names outside the accepted set.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrInvalidPayload is returned when a command payload cannot be parsed.
	ErrInvalidPayload = errors.New("invalid command payload")

	// ErrBusy is returned when the command queue is full.
	ErrBusy = errors.New("command queue full")
)

func invalidPayload(name, payload string) error {
	return fmt.Errorf("%w for %s: %q", ErrInvalidPayload, name, payload)
}

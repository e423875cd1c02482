package logic

import "time"

// State is the debounced logical state of a digital input.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// ChannelState tracks debounce state for a single input.
type ChannelState struct {
	// Current stable (debounced) state
	Stable State
	// Pending state during debounce
	Pending State
	// Time when pending state was first observed
	PendingSince time.Time
	// Whether we have established a baseline
	Baselined bool
}

// Transition is a debounced change of one named input.
type Transition struct {
	Timestamp time.Time
	Channel   string
	State     State
	// Baseline marks the first stable reading after startup.
	Baseline bool
}

// Debouncer filters contact bounce on named digital inputs such as the smoke
// and gas detector relays.
type Debouncer struct {
	duration  time.Duration
	names     []string
	channels  map[string]*ChannelState
	baselined bool
	counts    map[string]int
}

// NewDebouncer creates a debouncer for the given input names. Transitions
// are reported in the order of names.
func NewDebouncer(duration time.Duration, names []string) *Debouncer {
	d := &Debouncer{
		duration: duration,
		names:    append([]string(nil), names...),
		channels: make(map[string]*ChannelState, len(names)),
		counts:   make(map[string]int, len(names)),
	}
	for _, n := range names {
		d.channels[n] = &ChannelState{}
	}
	return d
}

// Process takes one sample of every input and returns debounced transitions.
// Nothing is reported until every input has a baseline; at that moment one
// Baseline transition per input is returned so consumers learn the initial state.
// Inputs missing from values are treated as unchanged.
func (d *Debouncer) Process(values map[string]bool, now time.Time) []Transition {
	var changed []string
	for _, name := range d.names {
		v, ok := values[name]
		if !ok {
			continue
		}
		if d.processChannel(d.channels[name], boolToState(v), now) {
			changed = append(changed, name)
		}
	}

	if !d.baselined {
		for _, name := range d.names {
			if !d.channels[name].Baselined {
				return nil
			}
		}
		d.baselined = true
		out := make([]Transition, 0, len(d.names))
		for _, name := range d.names {
			out = append(out, Transition{Timestamp: now, Channel: name, State: d.channels[name].Stable, Baseline: true})
		}
		return out
	}

	var out []Transition
	for _, name := range changed {
		d.counts[name]++
		out = append(out, Transition{Timestamp: now, Channel: name, State: d.channels[name].Stable})
	}
	return out
}

// processChannel handles debounce logic for a single input.
// Returns true if a baselined input changed its stable state.
func (d *Debouncer) processChannel(ch *ChannelState, newState State, now time.Time) bool {
	if !ch.Baselined {
		if ch.Pending != newState {
			// First sample, or state changed during baseline: restart
			ch.Pending = newState
			ch.PendingSince = now
			return false
		}
		if now.Sub(ch.PendingSince) >= d.duration {
			ch.Stable = newState
			ch.Baselined = true
			ch.Pending = ""
		}
		return false
	}

	if newState == ch.Stable {
		ch.Pending = ""
		return false
	}

	if ch.Pending != newState {
		ch.Pending = newState
		ch.PendingSince = now
		return false
	}

	if now.Sub(ch.PendingSince) >= d.duration {
		ch.Stable = newState
		ch.Pending = ""
		return true
	}
	return false
}

// IsBaselined returns whether every input has a stable baseline.
func (d *Debouncer) IsBaselined() bool {
	return d.baselined
}

// StateOf returns the stable state of name, or "" before its baseline.
func (d *Debouncer) StateOf(name string) State {
	ch, ok := d.channels[name]
	if !ok {
		return ""
	}
	return ch.Stable
}

// Counts returns a copy of per-input transition counts since startup.
func (d *Debouncer) Counts() map[string]int {
	out := make(map[string]int, len(d.counts))
	for k, v := range d.counts {
		out[k] = v
	}
	return out
}

func boolToState(b bool) State {
	if b {
		return StateOn
	}
	return StateOff
}

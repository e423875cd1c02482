package mqtt

import (
	"errors"
	"fmt"
	"sort"
)

// Sink writes output snapshots as retained messages, one topic per output name.
type Sink struct {
	pub    Publisher
	topics map[string]string
}

// NewSink creates a sink publishing output name -> topic.
func NewSink(pub Publisher, topics map[string]string) *Sink {
	t := make(map[string]string, len(topics))
	for k, v := range topics {
		t[k] = v
	}
	return &Sink{pub: pub, topics: t}
}

// Names returns the output names this sink exposes, sorted.
func (s *Sink) Names() []string {
	names := make([]string, 0, len(s.topics))
	for n := range s.topics {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Write publishes every value that has a topic. Failures do not stop the
// remaining writes; they are joined into the returned error.
func (s *Sink) Write(values map[string]string) error {
	var errs []error
	for _, name := range s.Names() {
		v, ok := values[name]
		if !ok {
			continue
		}
		if err := s.pub.Publish(s.topics[name], []byte(v), true); err != nil {
			errs = append(errs, fmt.Errorf("output %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

package mqtt

import "go.uber.org/zap"

// message is an outbound publish held for replay after reconnection.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer holds outbound messages while the broker is unreachable. When
// full, the oldest message is overwritten. Not safe for concurrent use.
type ringBuffer struct {
	slots   []message
	next    int // next write position
	size    int
	dropped int // overwritten since last drain
	logger  *zap.Logger
}

func newRingBuffer(capacity int, logger *zap.Logger) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{slots: make([]message, capacity), logger: logger}
}

func (r *ringBuffer) push(msg message) {
	if r.size == len(r.slots) {
		if r.dropped == 0 {
			r.logger.Warn("mqtt offline buffer full, dropping oldest",
				zap.Int("capacity", len(r.slots)))
		}
		r.dropped++
	} else {
		r.size++
	}
	r.slots[r.next] = msg
	r.next = (r.next + 1) % len(r.slots)
}

// drain returns the buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drain() []message {
	if r.size == 0 {
		return nil
	}
	out := make([]message, r.size)
	start := (r.next - r.size + len(r.slots)) % len(r.slots)
	for i := range out {
		out[i] = r.slots[(start+i)%len(r.slots)]
	}
	if r.dropped > 0 {
		r.logger.Warn("mqtt offline buffer overflowed", zap.Int("dropped", r.dropped))
	}
	r.size, r.next, r.dropped = 0, 0, 0
	return out
}

func (r *ringBuffer) len() int {
	return r.size
}

package mqtt

// message is a serialized publish held for replay.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable. When full
// the oldest message is discarded. Callers synchronize.
type outbox struct {
	max     int
	queue   []message
	dropped int // discarded since the last take
}

func newOutbox(max int) *outbox {
	if max < 1 {
		max = 1
	}
	return &outbox{max: max, queue: make([]message, 0, max)}
}

// add queues m and reports whether this is the first discard since the last take.
func (o *outbox) add(m message) bool {
	if len(o.queue) < o.max {
		o.queue = append(o.queue, m)
		return false
	}
	copy(o.queue, o.queue[1:])
	o.queue[len(o.queue)-1] = m
	o.dropped++
	return o.dropped == 1
}

// take empties the outbox, oldest first, and returns how many were discarded.
func (o *outbox) take() ([]message, int) {
	if len(o.queue) == 0 {
		return nil, 0
	}
	out := make([]message, len(o.queue))
	copy(out, o.queue)
	dropped := o.dropped
	o.queue = o.queue[:0]
	o.dropped = 0
	return out, dropped
}

func (o *outbox) size() int {
	return len(o.queue)
}

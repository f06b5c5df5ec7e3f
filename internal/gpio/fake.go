package gpio

// FakeLine is a test double that records every level it is driven to.
type FakeLine struct {
	// On is the current level.
	On bool

	// History contains every value passed to Set, in order.
	History []bool

	// SetError, if set, is returned by Set and the level is unchanged.
	SetError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeLine creates a FakeLine that starts off.
func NewFakeLine() *FakeLine {
	return &FakeLine{}
}

// Set records the requested level.
func (f *FakeLine) Set(on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.On = on
	f.History = append(f.History, on)
	return nil
}

// Close marks the line as closed and drives it off.
func (f *FakeLine) Close() error {
	f.On = false
	f.Closed = true
	return nil
}

// Pulses returns how many off-to-on transitions were recorded.
func (f *FakeLine) Pulses() int {
	n := 0
	prev := false
	for _, on := range f.History {
		if on && !prev {
			n++
		}
		prev = on
	}
	return n
}

// Reset clears recorded history.
func (f *FakeLine) Reset() {
	f.On = false
	f.History = nil
	f.SetError = nil
	f.Closed = false
}

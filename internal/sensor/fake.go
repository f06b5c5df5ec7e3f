package sensor

import "errors"

// ErrFakeRead is the default error for a scripted failure.
var ErrFakeRead = errors.New("fake read failure")

// FakeStep is one scripted device response.
type FakeStep struct {
	Raw Raw
	Err error
}

// FakeDevice replays scripted responses. Once the script is exhausted the
// last step repeats.
type FakeDevice struct {
	Steps []FakeStep
	Reads int
}

// NewFakeDevice returns a device that always reads raw.
func NewFakeDevice(raw Raw) *FakeDevice {
	return &FakeDevice{Steps: []FakeStep{{Raw: raw}}}
}

// Script appends responses.
func (f *FakeDevice) Script(steps ...FakeStep) *FakeDevice {
	f.Steps = append(f.Steps, steps...)
	return f
}

// Read returns the next scripted response.
func (f *FakeDevice) Read() (Raw, error) {
	if len(f.Steps) == 0 {
		f.Reads++
		return Raw{}, ErrFakeRead
	}
	i := f.Reads
	if i >= len(f.Steps) {
		i = len(f.Steps) - 1
	}
	f.Reads++
	step := f.Steps[i]
	return step.Raw, step.Err
}

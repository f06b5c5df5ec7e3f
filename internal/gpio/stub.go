//go:build !linux

package gpio

// RealLine is unavailable off Linux; every call fails with ErrUnsupported.
type RealLine struct{}

func NewRealLine(chip string, pin int) (*RealLine, error) {
	return nil, ErrUnsupported
}

func (r *RealLine) Set(on bool) error { return ErrUnsupported }

func (r *RealLine) Close() error { return nil }

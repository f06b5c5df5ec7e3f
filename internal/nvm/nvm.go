// Package nvm provides byte-addressable non-volatile storage.
// Every backend behaves like an erased EEPROM: unwritten cells read as 0xFF.
package nvm

import (
	"errors"
	"fmt"
)

// Erased is the value of a cell that has never been written.
const Erased byte = 0xFF

// DefaultSize is a 1 KiB EEPROM.
const DefaultSize = 1024

// ErrOutOfRange is returned for addresses outside [0, Size()).
var ErrOutOfRange = errors.New("nvm: address out of range")

// Store reads and writes single bytes at integer offsets.
type Store interface {
	// ByteAt returns the byte stored at addr.
	ByteAt(addr int) (byte, error)

	// SetByte stores b at addr. The write is durable when SetByte returns.
	SetByte(addr int, b byte) error

	// Size returns the number of addressable bytes.
	Size() int

	// Close releases the underlying resources.
	Close() error
}

// Open returns a Store for the named backend ("memory", "file" or "bolt").
func Open(backend, path string, size int) (Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	var (
		s   Store
		err error
	)
	switch backend {
	case "memory":
		s = NewMemory(size)
	case "file":
		s, err = OpenFile(path, size)
	case "bolt":
		s, err = OpenBolt(path, size)
	default:
		return nil, fmt.Errorf("nvm: unknown backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func checkAddr(addr, size int) error {
	if addr < 0 || addr >= size {
		return fmt.Errorf("%w: %d (size %d)", ErrOutOfRange, addr, size)
	}
	return nil
}

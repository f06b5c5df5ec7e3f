// Package counter keeps the log rotation iteration in non-volatile storage.
//
// Layout (big endian, contiguous):
//
//	offset 0  marker     uint32  must equal Magic
//	offset 4  iteration  uint64
//
// A store whose marker does not match is treated as never initialized.
package counter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sweeney/greenhouse-sensor/internal/nvm"
)

const (
	// Magic marks an initialized record ("GHC1").
	Magic uint32 = 0x47484331

	MarkerOffset  = 0
	CounterOffset = 4
	RecordSize    = 12

	// IterationsPerFile is one day of records at a five minute interval.
	IterationsPerFile = 288

	indexWidth = 5
)

// ErrShortRecord is returned when decoding fewer than RecordSize bytes.
var ErrShortRecord = errors.New("counter: short record")

// Record is the fixed-layout persistent record.
type Record struct {
	Marker    uint32
	Iteration uint64
}

// Initialized reports whether the marker matches Magic.
func (r Record) Initialized() bool {
	return r.Marker == Magic
}

// MarshalBinary encodes the record in its on-storage layout.
func (r Record) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordSize)
	binary.BigEndian.PutUint32(buf[MarkerOffset:], r.Marker)
	binary.BigEndian.PutUint64(buf[CounterOffset:], r.Iteration)
	return buf, nil
}

// UnmarshalBinary decodes a record from its on-storage layout.
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) < RecordSize {
		return fmt.Errorf("%w: %d bytes", ErrShortRecord, len(data))
	}
	r.Marker = binary.BigEndian.Uint32(data[MarkerOffset:])
	r.Iteration = binary.BigEndian.Uint64(data[CounterOffset:])
	return nil
}

// Counter reads and advances the iteration held in a Store.
type Counter struct {
	store   nvm.Store
	perFile uint64
}

// New creates a Counter over store using IterationsPerFile.
func New(store nvm.Store) *Counter {
	return NewWithPeriod(store, IterationsPerFile)
}

// NewWithPeriod creates a Counter that rotates every perFile iterations.
func NewWithPeriod(store nvm.Store, perFile uint64) *Counter {
	if perFile == 0 {
		perFile = IterationsPerFile
	}
	return &Counter{store: store, perFile: perFile}
}

// readBytes reads n consecutive bytes starting at offset.
func (c *Counter) readBytes(offset, n int) ([]byte, error) {
	buf := make([]byte, n)
	for i := range buf {
		b, err := c.store.ByteAt(offset + i)
		if err != nil {
			return nil, err
		}
		buf[i] = b
	}
	return buf, nil
}

// writeBytes writes buf one byte at a time, most significant first.
func (c *Counter) writeBytes(offset int, buf []byte) error {
	for i, b := range buf {
		if err := c.store.SetByte(offset+i, b); err != nil {
			return err
		}
	}
	return nil
}

func (c *Counter) readMarker() (uint32, error) {
	buf, err := c.readBytes(MarkerOffset, 4)
	if err != nil {
		return 0, fmt.Errorf("read marker: %w", err)
	}
	return binary.BigEndian.Uint32(buf), nil
}

func (c *Counter) readCounter() (uint64, error) {
	buf, err := c.readBytes(CounterOffset, 8)
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return binary.BigEndian.Uint64(buf), nil
}

func (c *Counter) writeMarker(v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	if err := c.writeBytes(MarkerOffset, buf[:]); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}

func (c *Counter) writeCounter(v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	if err := c.writeBytes(CounterOffset, buf[:]); err != nil {
		return fmt.Errorf("write counter: %w", err)
	}
	return nil
}

// Load reads the whole record without initializing it.
func (c *Counter) Load() (Record, error) {
	var r Record
	buf, err := c.readBytes(MarkerOffset, RecordSize)
	if err != nil {
		return r, fmt.Errorf("load record: %w", err)
	}
	err = r.UnmarshalBinary(buf)
	return r, err
}

// Store writes the whole record.
func (c *Counter) Store(r Record) error {
	buf, err := r.MarshalBinary()
	if err != nil {
		return err
	}
	if err := c.writeBytes(MarkerOffset, buf); err != nil {
		return fmt.Errorf("store record: %w", err)
	}
	return nil
}

// CurrentIteration returns the stored iteration. An uninitialized store is
// written with Magic and a zero counter, and 0 is returned.
func (c *Counter) CurrentIteration() (uint64, error) {
	marker, err := c.readMarker()
	if err != nil {
		return 0, err
	}
	if marker == Magic {
		return c.readCounter()
	}

	if err := c.writeMarker(Magic); err != nil {
		return 0, err
	}
	if err := c.writeCounter(0); err != nil {
		return 0, err
	}
	return 0, nil
}

// Advance increments the stored iteration and returns the new value.
func (c *Counter) Advance() (uint64, error) {
	iter, err := c.CurrentIteration()
	if err != nil {
		return 0, err
	}
	iter++
	if err := c.writeCounter(iter); err != nil {
		return 0, err
	}
	return iter, nil
}

// FileIndex returns the rotation index for the current iteration.
func (c *Counter) FileIndex() (uint64, error) {
	iter, err := c.CurrentIteration()
	if err != nil {
		return 0, err
	}
	return iter / c.perFile, nil
}

// FileName returns the log file for the current rotation index.
func (c *Counter) FileName(dir, prefix string) (string, error) {
	idx, err := c.FileIndex()
	if err != nil {
		return "", err
	}
	return FileName(dir, prefix, idx), nil
}

// FileName builds dir/prefixNNNNN.csv with the index zero padded so names
// sort in rotation order.
func FileName(dir, prefix string, index uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%s%0*d.csv", prefix, indexWidth, index))
}

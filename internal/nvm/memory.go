package nvm

import "sync"

// Memory is an in-process Store. Contents are lost on exit.
type Memory struct {
	mu    sync.Mutex
	cells []byte

	// Writes counts SetByte calls, for tests that check write granularity.
	Writes int
}

// NewMemory creates an erased Memory of the given size.
func NewMemory(size int) *Memory {
	cells := make([]byte, size)
	for i := range cells {
		cells[i] = Erased
	}
	return &Memory{cells: cells}
}

// ByteAt returns the byte at addr.
func (m *Memory) ByteAt(addr int) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkAddr(addr, len(m.cells)); err != nil {
		return 0, err
	}
	return m.cells[addr], nil
}

// SetByte stores b at addr.
func (m *Memory) SetByte(addr int, b byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkAddr(addr, len(m.cells)); err != nil {
		return err
	}
	m.cells[addr] = b
	m.Writes++
	return nil
}

// Size returns the number of cells.
func (m *Memory) Size() int {
	return len(m.cells)
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

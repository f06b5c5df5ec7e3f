package nvm

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File keeps the store as a fixed-size image file, one byte per cell.
type File struct {
	mu   sync.Mutex
	f    *os.File
	size int
}

// OpenFile opens or creates an image file at path. A new or short file is
// padded with erased cells up to size.
func OpenFile(path string, size int) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create nvm directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open nvm image: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat nvm image: %w", err)
	}
	if have := int(info.Size()); have < size {
		pad := bytes.Repeat([]byte{Erased}, size-have)
		if _, err := f.WriteAt(pad, int64(have)); err != nil {
			f.Close()
			return nil, fmt.Errorf("pad nvm image: %w", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, fmt.Errorf("sync nvm image: %w", err)
		}
	}

	return &File{f: f, size: size}, nil
}

// ByteAt reads the byte at addr.
func (s *File) ByteAt(addr int) (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkAddr(addr, s.size); err != nil {
		return 0, err
	}
	var buf [1]byte
	if _, err := s.f.ReadAt(buf[:], int64(addr)); err != nil {
		return 0, fmt.Errorf("read nvm byte %d: %w", addr, err)
	}
	return buf[0], nil
}

// SetByte writes b at addr and syncs the file.
func (s *File) SetByte(addr int, b byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkAddr(addr, s.size); err != nil {
		return err
	}
	if _, err := s.f.WriteAt([]byte{b}, int64(addr)); err != nil {
		return fmt.Errorf("write nvm byte %d: %w", addr, err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync nvm image: %w", err)
	}
	return nil
}

// Size returns the number of cells.
func (s *File) Size() int {
	return s.size
}

// Close closes the image file.
func (s *File) Close() error {
	return s.f.Close()
}

package nvm

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// cellsBucket holds one key per written cell, keyed by big-endian address.
const cellsBucket = "nvm"

// Bolt is a Store backed by a bbolt database. Cells that were never written
// have no key and read as Erased.
type Bolt struct {
	db   *bbolt.DB
	size int
}

// OpenBolt opens or creates the database at path.
func OpenBolt(path string, size int) (*Bolt, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(cellsBucket)); err != nil {
			return fmt.Errorf("failed to create nvm bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Bolt{db: db, size: size}, nil
}

func cellKey(addr int) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], uint32(addr))
	return k[:]
}

// ByteAt returns the byte at addr.
func (s *Bolt) ByteAt(addr int) (byte, error) {
	if err := checkAddr(addr, s.size); err != nil {
		return 0, err
	}
	b := Erased
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(cellsBucket))
		if bucket == nil {
			return fmt.Errorf("nvm bucket not found")
		}
		if v := bucket.Get(cellKey(addr)); len(v) == 1 {
			b = v[0]
		}
		return nil
	})
	return b, err
}

// SetByte stores b at addr in its own transaction.
func (s *Bolt) SetByte(addr int, b byte) error {
	if err := checkAddr(addr, s.size); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(cellsBucket))
		if bucket == nil {
			return fmt.Errorf("nvm bucket not found")
		}
		return bucket.Put(cellKey(addr), []byte{b})
	})
}

// Size returns the number of addressable cells.
func (s *Bolt) Size() int {
	return s.size
}

// Close closes the database.
func (s *Bolt) Close() error {
	return s.db.Close()
}

// Package mem defines the guest physical memory that the address translation
// path reads page tables from and that translated accesses land in.
package mem

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Units of memory sizes.
const (
	KB uint64 = 1 << 10
	MB uint64 = 1 << 20
	GB uint64 = 1 << 30
)

// ErrAddressOutOfRange is returned when an access touches bytes beyond the
// capacity of a Storage.
var ErrAddressOutOfRange = errors.New("address out of range")

// A Storage is a flat, byte-addressable, little-endian physical memory.
type Storage struct {
	data []byte
}

// NewStorage creates a zero-filled storage of the given number of bytes.
func NewStorage(capacity uint64) *Storage {
	return &Storage{
		data: make([]byte, capacity),
	}
}

// Capacity returns the number of bytes the storage holds.
func (s *Storage) Capacity() uint64 {
	return uint64(len(s.data))
}

func (s *Storage) mustBeInRange(addr, byteSize uint64) error {
	end := addr + byteSize
	if end < addr || end > uint64(len(s.data)) {
		return fmt.Errorf("%w: 0x%x+%d (capacity 0x%x)",
			ErrAddressOutOfRange, addr, byteSize, len(s.data))
	}

	return nil
}

// Read returns a copy of byteSize bytes starting at addr.
func (s *Storage) Read(addr, byteSize uint64) ([]byte, error) {
	if err := s.mustBeInRange(addr, byteSize); err != nil {
		return nil, err
	}

	buf := make([]byte, byteSize)
	copy(buf, s.data[addr:addr+byteSize])

	return buf, nil
}

// Write copies data into the storage starting at addr.
func (s *Storage) Write(addr uint64, data []byte) error {
	if err := s.mustBeInRange(addr, uint64(len(data))); err != nil {
		return err
	}

	copy(s.data[addr:], data)

	return nil
}

// ReadUint32 reads a little-endian 32-bit word.
func (s *Storage) ReadUint32(addr uint64) (uint32, error) {
	if err := s.mustBeInRange(addr, 4); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(s.data[addr:]), nil
}

// WriteUint32 writes a little-endian 32-bit word.
func (s *Storage) WriteUint32(addr uint64, value uint32) error {
	if err := s.mustBeInRange(addr, 4); err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(s.data[addr:], value)

	return nil
}

// Zero clears byteSize bytes starting at addr.
func (s *Storage) Zero(addr, byteSize uint64) error {
	if err := s.mustBeInRange(addr, byteSize); err != nil {
		return err
	}

	clear(s.data[addr : addr+byteSize])

	return nil
}
